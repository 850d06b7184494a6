// Package catalog persists a record of every SHM segment shm-server
// has created, across restarts, via an embedded BoltDB database.
// Adapted from the teacher's boltdb metrics store
// (internal/infrastructure/persistence/storage/boltdb): same
// single-writer-transaction, gob-encoded-value shape, narrowed to one
// bucket since a segment catalog has no time-series dimension to
// bucket by.
package catalog

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSegments = []byte("segments")

const dbFileMode = 0o600

// Record describes one SHM segment shm-server has created.
type Record struct {
	Name      string
	SizeBytes int64
	CreatedAt time.Time
}

// Store is a BoltDB-backed segment catalog. The zero value is not
// usable; construct one with Open.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the catalog database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, dbFileMode, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("catalog: open boltdb: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSegments)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put records (or overwrites) a segment's entry.
func (s *Store) Put(r Record) error {
	value, err := encodeRecord(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSegments).Put([]byte(r.Name), value)
	})
}

// Get returns the recorded entry for name, or (Record{}, false) if
// none exists.
func (s *Store) Get(name string) (Record, bool, error) {
	var rec Record
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSegments).Get([]byte(name))
		if v == nil {
			return nil
		}
		found = true
		return decodeRecord(v, &rec)
	})
	return rec, found, err
}

// Delete removes name's entry, if any.
func (s *Store) Delete(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSegments).Delete([]byte(name))
	})
}

// List returns every recorded segment.
func (s *Store) List() ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSegments).ForEach(func(k, v []byte) error {
			var rec Record
			if err := decodeRecord(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

func encodeRecord(r Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("catalog: encode record: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte, dest *Record) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(dest)
}

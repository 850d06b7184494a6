// Package shm implements a process-shared key/value registry backed
// by a memory-mapped file under /dev/shm, standing in for the
// original's boost::interprocess managed_shared_memory segment. Go has
// no shared-memory allocator, so the registry is a fixed-size slot
// directory instead of a growable heap: Create pre-sizes the backing
// file for Config.MaxSlots entries of up to Config.SlotCapacity bytes
// each (cmd/shm-server alone calls it); every other process attaches
// with Open, and FindOrConstruct claims a free slot rather than
// allocating one.
//
// Per-entry reader/writer locking uses flock(2) against a companion
// lock file per slot, the process-shared equivalent of the original's
// interprocess_sharable_mutex.
package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/hongxinliu/shame-go/internal/logging"
)

// ErrPayloadTooLarge is returned by Entry.Put when data exceeds the
// registry's configured SlotCapacity.
var ErrPayloadTooLarge = errors.New("shm: payload exceeds slot capacity")

// ErrRegistryFull is returned by FindOrConstruct when every slot is
// already occupied by a different key.
var ErrRegistryFull = errors.New("shm: no free slot")

// Shm is an open handle to a shared-memory registry. The zero value
// is not usable; construct one with Open (attach to an existing
// segment) or Create (cmd/shm-server only).
type Shm struct {
	name string
	cfg  Config
	log  logging.Logger

	file     *os.File
	data     []byte // mmap'd region: MaxSlots * slotSize bytes
	slotSize int

	lockDir string
	dirLock *os.File // guards slot allocation across processes

	mu      sync.Mutex // guards entries cache within this process
	entries map[string]*Entry
}

// Open opens the backing file for an existing segment name under
// cfg.Dir and maps it into this process. It never creates the
// segment — a missing segment, or one whose size doesn't match cfg,
// is a fatal error the caller must surface (the bus has no business
// constructing shared memory; only cmd/shm-server does, via Create).
// Multiple processes opening the same name share the same slots.
func Open(name string, cfg Config, log logging.Logger) (*Shm, error) {
	cfg = cfg.withDefaults()
	slotSize, totalSize := segmentSize(cfg)

	path := filepath.Join(cfg.Dir, name)
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: open backing file (has cmd/shm-server created %q?): %w", name, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shm: stat backing file: %w", err)
	}
	if info.Size() != totalSize {
		file.Close()
		return nil, fmt.Errorf("shm: backing file %q is %d bytes, want %d for MaxSlots=%d/SlotCapacity=%d — segment was created with a different config", path, info.Size(), totalSize, cfg.MaxSlots, cfg.SlotCapacity)
	}

	lockDir := filepath.Join(cfg.Dir, name+".locks")
	if _, err := os.Stat(lockDir); err != nil {
		file.Close()
		return nil, fmt.Errorf("shm: lock directory missing, segment %q was not created by cmd/shm-server: %w", name, err)
	}

	dirLockPath := filepath.Join(cfg.Dir, name+".dir.lock")
	dirLock, err := os.OpenFile(dirLockPath, os.O_RDWR, 0)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shm: open directory lock: %w", err)
	}

	return mapAndWrap(name, cfg, log, file, dirLock, lockDir, slotSize, totalSize)
}

// Create creates (or re-creates) the backing file for name under
// cfg.Dir, sized for cfg, and maps it into this process. Only
// cmd/shm-server calls Create — it alone owns the segment's
// lifecycle; every other process (the bus included) must use Open and
// fail if the segment isn't there yet.
func Create(name string, cfg Config, log logging.Logger) (*Shm, error) {
	cfg = cfg.withDefaults()
	slotSize, totalSize := segmentSize(cfg)

	path := filepath.Join(cfg.Dir, name)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("shm: create backing file: %w", err)
	}
	if err := file.Truncate(totalSize); err != nil {
		file.Close()
		return nil, fmt.Errorf("shm: truncate backing file: %w", err)
	}

	lockDir := filepath.Join(cfg.Dir, name+".locks")
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		file.Close()
		return nil, fmt.Errorf("shm: create lock dir: %w", err)
	}

	dirLockPath := filepath.Join(cfg.Dir, name+".dir.lock")
	dirLock, err := os.OpenFile(dirLockPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shm: create directory lock: %w", err)
	}

	return mapAndWrap(name, cfg, log, file, dirLock, lockDir, slotSize, totalSize)
}

func segmentSize(cfg Config) (slotSize int, totalSize int64) {
	slotSize = slotHeaderSize + cfg.SlotCapacity
	return slotSize, int64(slotSize) * int64(cfg.MaxSlots)
}

func mapAndWrap(name string, cfg Config, log logging.Logger, file, dirLock *os.File, lockDir string, slotSize int, totalSize int64) (*Shm, error) {
	if log == nil {
		log = logging.Nop()
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(totalSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		dirLock.Close()
		file.Close()
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}

	return &Shm{
		name:     name,
		cfg:      cfg,
		log:      log.With("component", "shm").With("name", name),
		file:     file,
		data:     data,
		slotSize: slotSize,
		lockDir:  lockDir,
		dirLock:  dirLock,
		entries:  make(map[string]*Entry),
	}, nil
}

// Close unmaps the registry and releases its file handles. It does
// not delete the backing file or lock files — other processes may
// still hold the registry open.
func (s *Shm) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		e.closeLockFile()
	}

	var firstErr error
	if err := unix.Munmap(s.data); err != nil {
		firstErr = err
	}
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.dirLock.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Remove deletes name's backing file and lock files under dir, if
// they exist. It does not require an open Shm handle, mirroring the
// original's shame_server bootstrap/teardown (bi::shared_memory_object::remove
// before create, and again on exit) — used by cmd/shm-server, which
// owns the segment's lifecycle rather than any one Bus.
func Remove(dir, name string) error {
	if dir == "" {
		dir = "/dev/shm"
	}
	var firstErr error
	for _, p := range []string{
		filepath.Join(dir, name),
		filepath.Join(dir, name+".dir.lock"),
	} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	if err := os.RemoveAll(filepath.Join(dir, name+".locks")); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *Shm) slotBuf(idx int) []byte {
	start := idx * s.slotSize
	return s.data[start : start+s.slotSize]
}

// withDirLock serializes slot-directory scans/allocation across every
// process sharing this registry.
func (s *Shm) withDirLock(fn func() error) error {
	if err := unix.Flock(int(s.dirLock.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("shm: lock directory: %w", err)
	}
	defer unix.Flock(int(s.dirLock.Fd()), unix.LOCK_UN)
	return fn()
}

// findSlot scans the directory for key, returning its slot index or
// -1 if absent. Callers must hold the directory lock.
func (s *Shm) findSlot(key string) int {
	for i := 0; i < s.cfg.MaxSlots; i++ {
		h := decodeSlotHeader(s.slotBuf(i))
		if h.inUse == slotInUse && h.key == key {
			return i
		}
	}
	return -1
}

// Find returns the existing Entry for key, or nil if no such segment
// has been constructed yet.
func (s *Shm) Find(key string) (*Entry, error) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		s.mu.Unlock()
		return e, nil
	}
	s.mu.Unlock()

	var idx = -1
	err := s.withDirLock(func() error {
		idx = s.findSlot(key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, nil
	}
	return s.openEntry(key, idx)
}

// FindOrConstruct returns the Entry for key, allocating a free slot
// and initializing it if this is the first reference to key across
// every process sharing the registry.
func (s *Shm) FindOrConstruct(key string) (*Entry, error) {
	if len(key) > maxKeySize {
		return nil, fmt.Errorf("shm: key %q exceeds max length %d", key, maxKeySize)
	}

	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		s.mu.Unlock()
		return e, nil
	}
	s.mu.Unlock()

	var idx = -1
	err := s.withDirLock(func() error {
		if i := s.findSlot(key); i >= 0 {
			idx = i
			return nil
		}
		for i := 0; i < s.cfg.MaxSlots; i++ {
			h := decodeSlotHeader(s.slotBuf(i))
			if h.inUse != slotInUse {
				encodeSlotHeader(s.slotBuf(i), slotHeader{
					inUse:   slotInUse,
					key:     key,
					dataLen: 0,
					dataCap: uint64(s.cfg.SlotCapacity),
				})
				idx = i
				return nil
			}
		}
		return ErrRegistryFull
	})
	if err != nil {
		return nil, err
	}
	return s.openEntry(key, idx)
}

func (s *Shm) openEntry(key string, idx int) (*Entry, error) {
	lockPath := filepath.Join(s.lockDir, fmt.Sprintf("%d.lock", idx))
	lockFile, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("shm: open slot lock: %w", err)
	}

	e := &Entry{
		shm:      s,
		key:      key,
		slot:     idx,
		lockFile: lockFile,
	}

	s.mu.Lock()
	if existing, ok := s.entries[key]; ok {
		s.mu.Unlock()
		lockFile.Close()
		return existing, nil
	}
	s.entries[key] = e
	s.mu.Unlock()
	return e, nil
}

package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer s.Close()

	rec := Record{Name: "Shame", SizeBytes: 4096, CreatedAt: time.Unix(1700000000, 0).UTC()}
	require.NoError(t, s.Put(rec))

	got, found, err := s.Get("Shame")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, rec.SizeBytes, got.SizeBytes)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestGetMissingReturnsFoundFalse(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.Get("NoSuchSegment")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteRemovesRecord(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(Record{Name: "Temp", SizeBytes: 1}))
	require.NoError(t, s.Delete("Temp"))

	_, found, err := s.Get("Temp")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListReturnsAllRecords(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(Record{Name: "A", SizeBytes: 1}))
	require.NoError(t, s.Put(Record{Name: "B", SizeBytes: 2}))

	all, err := s.List()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

package udpm

import "time"

// Config tunes the fragmentation/reassembly layer. A zero or negative
// field disables that bound; bus.New's defaults and config's
// applyDefaults always set both.
type Config struct {
	// MaxReassemblyBytes bounds the total payload bytes held across
	// all in-flight (incomplete) reassembly entries. Once exceeded,
	// the oldest incomplete entry is evicted to make room.
	MaxReassemblyBytes int64
	// MaxReassemblyAge evicts an incomplete entry that has not
	// received a new fragment within this duration.
	MaxReassemblyAge time.Duration
}

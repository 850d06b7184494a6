package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
	"google.golang.org/protobuf/proto"
)

// Entry is a handle to one named segment within a registry. It is
// safe for concurrent use by goroutines within this process; across
// processes, flock(2) on the slot's lock file serializes readers and
// writers the way the original's interprocess_sharable_mutex does.
type Entry struct {
	shm      *Shm
	key      string
	slot     int
	lockFile *os.File
}

// Key returns the segment's name.
func (e *Entry) Key() string { return e.key }

func (e *Entry) buf() []byte { return e.shm.slotBuf(e.slot) }

// RLock acquires a shared (reader) lock on the segment.
func (e *Entry) RLock() error {
	if err := unix.Flock(int(e.lockFile.Fd()), unix.LOCK_SH); err != nil {
		return fmt.Errorf("shm: rlock %q: %w", e.key, err)
	}
	return nil
}

// RUnlock releases a shared lock acquired with RLock.
func (e *Entry) RUnlock() error {
	return e.unlock()
}

// Lock acquires an exclusive (writer) lock on the segment.
func (e *Entry) Lock() error {
	if err := unix.Flock(int(e.lockFile.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("shm: lock %q: %w", e.key, err)
	}
	return nil
}

// Unlock releases an exclusive lock acquired with Lock.
func (e *Entry) Unlock() error {
	return e.unlock()
}

func (e *Entry) unlock() error {
	if err := unix.Flock(int(e.lockFile.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("shm: unlock %q: %w", e.key, err)
	}
	return nil
}

func (e *Entry) closeLockFile() {
	e.lockFile.Close()
}

// Size returns the segment's current payload length without locking;
// callers that need a consistent read should RLock around Size+Bytes.
func (e *Entry) Size() int {
	h := decodeSlotHeader(e.buf())
	return int(h.dataLen)
}

// Put writes data into the segment under an exclusive lock, replacing
// any prior contents. It returns the number of bytes written.
func (e *Entry) Put(data []byte) (int, error) {
	if len(data) > e.shm.cfg.SlotCapacity {
		return 0, ErrPayloadTooLarge
	}
	if err := e.Lock(); err != nil {
		return 0, err
	}
	defer e.Unlock()

	buf := e.buf()
	copy(buf[slotHeaderSize:], data)
	setSlotDataLen(buf, uint64(len(data)))
	return len(data), nil
}

// PutProto marshals msg with protobuf and stores it the same way Put
// does, mirroring the original's overload for protobuf messages.
func (e *Entry) PutProto(msg proto.Message) (int, error) {
	data, err := proto.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("shm: marshal proto: %w", err)
	}
	return e.Put(data)
}

// Bytes returns a copy of the segment's current payload under a
// shared lock.
func (e *Entry) Bytes() ([]byte, error) {
	if err := e.RLock(); err != nil {
		return nil, err
	}
	defer e.RUnlock()

	buf := e.buf()
	h := decodeSlotHeader(buf)
	out := make([]byte, h.dataLen)
	copy(out, buf[slotHeaderSize:slotHeaderSize+int(h.dataLen)])
	return out, nil
}

package bus

import (
	"google.golang.org/protobuf/proto"

	"github.com/hongxinliu/shame-go/internal/logging"
	"github.com/hongxinliu/shame-go/internal/shm"
)

// Subscription is the dispatcher's view of a live subscription: a
// pattern to match published channel names against, and two delivery
// paths (inline UDPM bytes, or an SHM-indirected payload). RawSubscription
// and ProtoSubscription[T] are the two concrete implementations.
type Subscription interface {
	Pattern() string
	deliverUDPM(channel string, data []byte)
	deliverSHM(channel string, reg *shm.Shm, key string)
}

// RawSubscription delivers message bytes exactly as published, with
// no decoding step. Construct one with Bus.Subscribe.
type RawSubscription struct {
	pattern string
	onUDPM  func(channel string, data []byte)
	onSHM   func(channel string, entry *shm.Entry)
	log     logging.Logger
}

// Pattern returns the regex pattern this subscription was registered
// with.
func (s *RawSubscription) Pattern() string { return s.pattern }

func (s *RawSubscription) deliverUDPM(channel string, data []byte) {
	if s.onUDPM != nil {
		s.onUDPM(channel, data)
	}
}

func (s *RawSubscription) deliverSHM(channel string, reg *shm.Shm, key string) {
	if s.onSHM == nil || reg == nil {
		return
	}
	entry, err := reg.Find(key)
	if err != nil {
		s.log.Warn("shm lookup failed", "channel", channel, "key", key, "error", err)
		return
	}
	if entry == nil {
		s.log.Warn("shm key not found", "channel", channel, "key", key)
		return
	}
	s.onSHM(channel, entry)
}

// ProtoSubscription decodes each delivered message with protobuf
// before handing it to cb. Go methods cannot carry their own type
// parameters, so construction is the package-level function
// SubscribeProto rather than a Bus method.
type ProtoSubscription[T proto.Message] struct {
	pattern string
	newT    func() T
	cb      func(channel string, msg T, viaSHM bool)
	log     logging.Logger
}

// Pattern returns the regex pattern this subscription was registered
// with.
func (s *ProtoSubscription[T]) Pattern() string { return s.pattern }

func (s *ProtoSubscription[T]) deliverUDPM(channel string, data []byte) {
	msg := s.newT()
	if err := proto.Unmarshal(data, msg); err != nil {
		s.log.Warn("failed to decode message", "channel", channel, "error", err)
		return
	}
	s.cb(channel, msg, false)
}

func (s *ProtoSubscription[T]) deliverSHM(channel string, reg *shm.Shm, key string) {
	if reg == nil {
		return
	}
	entry, err := reg.Find(key)
	if err != nil {
		s.log.Warn("shm lookup failed", "channel", channel, "key", key, "error", err)
		return
	}
	if entry == nil {
		s.log.Warn("shm key not found", "channel", channel, "key", key)
		return
	}
	raw, err := entry.Bytes()
	if err != nil {
		s.log.Warn("shm read failed", "channel", channel, "key", key, "error", err)
		return
	}
	msg := s.newT()
	if err := proto.Unmarshal(raw, msg); err != nil {
		s.log.Warn("failed to decode shm message", "channel", channel, "error", err)
		return
	}
	s.cb(channel, msg, true)
}

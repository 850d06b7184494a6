// Package bus is the dispatch core: a single publish/subscribe bus
// over UDP multicast with optional shared-memory indirection for
// large payloads. One Bus owns one udpm.Udpm and, unless shared
// memory is disabled, one shm.Shm.
package bus

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/protobuf/proto"

	"github.com/hongxinliu/shame-go/internal/logging"
	"github.com/hongxinliu/shame-go/internal/metrics"
	"github.com/hongxinliu/shame-go/internal/queue"
	"github.com/hongxinliu/shame-go/internal/shm"
	"github.com/hongxinliu/shame-go/internal/transport/socket"
	"github.com/hongxinliu/shame-go/internal/udpm"
)

// statsPollInterval is how often Start's background goroutine syncs
// the reassembly gauges from the udpm layer, when metrics are
// configured.
const statsPollInterval = time.Second

type inboundMsg struct {
	channel string
	data    []byte
	viaSHM  bool
}

// Bus is a running publish/subscribe bus. The zero value is not
// usable; construct one with New.
type Bus struct {
	sock    *socket.Socket
	udp     *udpm.Udpm
	shm     *shm.Shm // nil when shared memory is disabled
	log     logging.Logger
	metrics *metrics.Collector // nil when unconfigured

	inbound *queue.Queue[inboundMsg]

	mu            sync.RWMutex
	subsByPattern map[string][]Subscription
	compiled      map[string]*regexp.Regexp

	dispatchWG sync.WaitGroup
	statsWG    sync.WaitGroup
	statsStop  chan struct{}
	running    atomic.Bool
}

// New constructs a Bus and its underlying transports. Construction
// failure of either the multicast socket or (if enabled) the shared
// memory registry is returned as an error; nothing is started yet.
func New(opts ...Option) (*Bus, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	sock, err := socket.New(socket.Config{
		MulticastAddr:   o.multicastAddr,
		MulticastPort:   o.multicastPort,
		TTL:             o.ttl,
		RateLimitPerSec: o.rateLimitPerSec,
	}, o.log)
	if err != nil {
		return nil, fmt.Errorf("bus: construct socket: %w", err)
	}

	var registry *shm.Shm
	if o.shmName != "" {
		registry, err = shm.Open(o.shmName, o.shmConfig, o.log)
		if err != nil {
			sock.Close()
			return nil, fmt.Errorf("bus: open shared memory %q: %w", o.shmName, err)
		}
	}

	b := &Bus{
		sock:          sock,
		udp:           udpm.New(sock, o.reassembly, o.log),
		shm:           registry,
		log:           o.log.With("component", "bus"),
		metrics:       o.metrics,
		inbound:       queue.New[inboundMsg](),
		subsByPattern: make(map[string][]Subscription),
		compiled:      make(map[string]*regexp.Regexp),
	}
	return b, nil
}

// Start begins message handling: it (re)arms the inbound queue,
// spawns the dispatcher goroutine, and starts UDPM receiving. Calling
// Start while already running is a no-op.
func (b *Bus) Start(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return nil
	}

	b.inbound.Reset()
	b.inbound.Clear()

	b.dispatchWG.Add(1)
	go b.dispatchLoop()

	b.udp.Start(b.onMessage)

	if b.metrics != nil {
		b.statsStop = make(chan struct{})
		b.statsWG.Add(1)
		go b.pollStats()
	}
	return nil
}

// Stop halts UDPM receiving, drains and joins the dispatcher, leaving
// the Bus ready for another Start.
func (b *Bus) Stop() error {
	if !b.running.CompareAndSwap(true, false) {
		return nil
	}

	b.udp.Stop()
	b.inbound.BreakAllWaiters()
	b.dispatchWG.Wait()

	if b.metrics != nil {
		close(b.statsStop)
		b.statsWG.Wait()
	}
	return nil
}

// pollStats periodically syncs the reassembly-table gauges from the
// udpm layer. Running it off the dispatcher keeps the packer
// goroutine free of any metrics-library dependency.
func (b *Bus) pollStats() {
	defer b.statsWG.Done()
	ticker := time.NewTicker(statsPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			entries, bytes := b.udp.Stats()
			b.metrics.ReassemblyEntries.Set(float64(entries))
			b.metrics.ReassemblyBytes.Set(float64(bytes))

			expired, budget, outOfRange := b.udp.DrainDrops()
			if expired > 0 {
				b.metrics.ReassemblyDropped.WithLabelValues("expired").Add(float64(expired))
			}
			if budget > 0 {
				b.metrics.ReassemblyDropped.WithLabelValues("budget").Add(float64(budget))
			}
			if outOfRange > 0 {
				b.metrics.ReassemblyDropped.WithLabelValues("out_of_range").Add(float64(outOfRange))
			}
		case <-b.statsStop:
			return
		}
	}
}

// Close stops the bus (if running) and releases its transports. The
// Bus must not be used afterward.
func (b *Bus) Close() error {
	b.Stop()
	var firstErr error
	if b.shm != nil {
		if err := b.shm.Close(); err != nil {
			firstErr = err
		}
	}
	if err := b.sock.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (b *Bus) onMessage(channel string, payload []byte, isShmKey bool) {
	if b.metrics != nil {
		b.metrics.PacketsReceived.Inc()
		b.metrics.BytesReceived.Add(float64(len(payload)))
	}
	b.inbound.Enqueue(inboundMsg{channel: channel, data: payload, viaSHM: isShmKey})
}

func (b *Bus) dispatchLoop() {
	defer b.dispatchWG.Done()
	ctx := context.Background()
	for {
		msg, ok := b.inbound.WaitDequeue(ctx)
		if !ok {
			return
		}
		b.dispatch(msg)
	}
}

// dispatch tests msg's channel against every registered pattern with
// a full-string regex match and fans out to every subscriber of each
// matching pattern, in subscription-insertion order. Pattern
// iteration order itself is unspecified (map order).
func (b *Bus) dispatch(msg inboundMsg) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for pattern, subs := range b.subsByPattern {
		re := b.compiled[pattern]
		if re == nil || !re.MatchString(msg.channel) {
			continue
		}
		for _, s := range subs {
			if msg.viaSHM {
				s.deliverSHM(msg.channel, b.shm, string(msg.data))
			} else {
				s.deliverUDPM(msg.channel, msg.data)
			}
			if b.metrics != nil {
				b.metrics.DispatchFanouts.Inc()
			}
		}
	}
}

// Publish sends data on channel. When shmFlag is true, data is stored
// in the shared-memory registry under channel as the key and only the
// key is sent over UDPM; if shared memory was disabled at
// construction, Publish logs a warning and returns (0, nil) rather
// than erroring, matching the original's non-fatal handling of this
// misconfiguration.
func (b *Bus) Publish(channel string, data []byte, shmFlag bool) (int, error) {
	if shmFlag {
		return b.publishViaShm(channel, data)
	}

	n, err := b.udp.Send(channel, data, udpm.SignatureUDPM)
	if err != nil {
		b.log.Error("publish failed", "channel", channel, "error", err)
		return 0, nil
	}
	if b.metrics != nil {
		b.metrics.PacketsSent.Inc()
		b.metrics.BytesSent.Add(float64(n))
	}
	return n, nil
}

func (b *Bus) publishViaShm(channel string, data []byte) (int, error) {
	if b.shm == nil {
		b.log.Warn("publish with shared memory requested but this bus was not constructed with it", "channel", channel)
		return 0, nil
	}

	entry, err := b.shm.FindOrConstruct(channel)
	if err != nil {
		b.metricShmFind("error")
		b.log.Error("shared memory find_or_construct failed", "channel", channel, "error", err)
		return 0, nil
	}
	b.metricShmFind("ok")

	n, err := entry.Put(data)
	if err != nil {
		b.metricShmPut("error")
		b.log.Error("shared memory put failed", "channel", channel, "error", err)
		return 0, nil
	}
	b.metricShmPut("ok")

	keyBytes := []byte(channel)
	sent, err := b.udp.Send(channel, keyBytes, udpm.SignatureSHM)
	if err != nil || sent != len(keyBytes) {
		b.log.Error("failed to send shared memory key", "channel", channel, "error", err)
		return 0, nil
	}
	if b.metrics != nil {
		b.metrics.PacketsSent.Inc()
		b.metrics.BytesSent.Add(float64(n))
	}

	return n, nil
}

func (b *Bus) metricShmFind(outcome string) {
	if b.metrics != nil {
		b.metrics.ShmFindTotal.WithLabelValues(outcome).Inc()
	}
}

func (b *Bus) metricShmPut(outcome string) {
	if b.metrics != nil {
		b.metrics.ShmPutTotal.WithLabelValues(outcome).Inc()
	}
}

// PublishProto marshals msg with protobuf and publishes it the same
// way Publish does.
func (b *Bus) PublishProto(channel string, msg proto.Message, shmFlag bool) (int, error) {
	data, err := proto.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("bus: marshal message: %w", err)
	}
	return b.Publish(channel, data, shmFlag)
}

// Subscribe registers a raw-bytes subscription against pattern, a
// regex tested with a full-string match against each published
// channel name. Exactly one of onUDPM/onSHM is invoked per delivered
// message, depending on how it was published.
func (b *Bus) Subscribe(pattern string, onUDPM func(channel string, data []byte), onSHM func(channel string, entry *shm.Entry)) (*RawSubscription, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}

	sub := &RawSubscription{pattern: pattern, onUDPM: onUDPM, onSHM: onSHM, log: b.log}
	b.addSubscription(pattern, re, sub)
	return sub, nil
}

// SubscribeProto registers a subscription that decodes each delivered
// message via protobuf before invoking cb. newT must return a fresh,
// zero-valued T each call. This is a package-level function, not a
// Bus method, because Go does not allow methods to introduce their
// own type parameters.
func SubscribeProto[T proto.Message](b *Bus, pattern string, newT func() T, cb func(channel string, msg T, viaSHM bool)) (*ProtoSubscription[T], error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}

	sub := &ProtoSubscription[T]{pattern: pattern, newT: newT, cb: cb, log: b.log}
	b.addSubscription(pattern, re, sub)
	return sub, nil
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("bus: invalid channel pattern %q: %w", pattern, err)
	}
	return re, nil
}

func (b *Bus) addSubscription(pattern string, re *regexp.Regexp, sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subsByPattern[pattern] = append(b.subsByPattern[pattern], sub)
	b.compiled[pattern] = re
}

// Unsubscribe removes sub from the dispatch table. It returns false
// if sub was not (or is no longer) registered.
func (b *Bus) Unsubscribe(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	pattern := sub.Pattern()
	list := b.subsByPattern[pattern]
	for i, s := range list {
		if s == sub {
			list = append(list[:i], list[i+1:]...)
			if len(list) == 0 {
				delete(b.subsByPattern, pattern)
				delete(b.compiled, pattern)
			} else {
				b.subsByPattern[pattern] = list
			}
			return true
		}
	}
	return false
}

// Package udpm implements the UDP-multicast wire layer: fragmenting
// outbound messages that don't fit a single datagram, and reassembling
// them on the receive side. One Udpm owns one underlying socket.Socket
// and runs a single packer goroutine so reassembly state never needs
// its own lock.
package udpm

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/hongxinliu/shame-go/internal/logging"
	"github.com/hongxinliu/shame-go/internal/queue"
	"github.com/hongxinliu/shame-go/internal/transport/socket"
)

// Callback is invoked once per fully reassembled message, on the
// packer goroutine. channel is the NUL-terminated name the sender
// framed the message with; isShmKey reports whether the signature
// marked payload as an indirection key into the SHM registry rather
// than inline message bytes.
type Callback func(channel string, payload []byte, isShmKey bool)

type datagram struct {
	buf []byte
}

// Udpm fragments and reassembles messages over a multicast Socket.
type Udpm struct {
	sock *socket.Socket
	cfg  Config
	log  logging.Logger

	inbound *queue.Queue[datagram]
	table   *reassemblyTable

	mu        sync.Mutex
	onMessage Callback
	wg        sync.WaitGroup
	started   bool

	reassemblyEntries atomic.Int64
	reassemblyBytes   atomic.Int64

	droppedExpired atomic.Int64
	droppedBudget  atomic.Int64
	droppedRange   atomic.Int64
}

// Stats reports the reassembly table's current size, for callers that
// want to publish it as a gauge (see internal/metrics).
func (u *Udpm) Stats() (entries int64, bytes int64) {
	return u.reassemblyEntries.Load(), u.reassemblyBytes.Load()
}

// DrainDrops reports how many incomplete messages have been dropped
// from the reassembly table since the last call, by reason, resetting
// each counter to zero. Callers (see bus.Bus.pollStats) use this to
// feed a cumulative Prometheus counter without double-counting.
func (u *Udpm) DrainDrops() (expired, budget, outOfRange int64) {
	return u.droppedExpired.Swap(0), u.droppedBudget.Swap(0), u.droppedRange.Swap(0)
}

// New builds a Udpm over sock. It does not start receiving until
// Start is called.
func New(sock *socket.Socket, cfg Config, log logging.Logger) *Udpm {
	if log == nil {
		log = logging.Nop()
	}
	return &Udpm{
		sock:    sock,
		cfg:     cfg,
		log:     log.With("component", "udpm"),
		inbound: queue.New[datagram](),
		table:   newReassemblyTable(cfg),
	}
}

// Start begins asynchronous receiving and the packer goroutine that
// reassembles and delivers messages to onMessage.
func (u *Udpm) Start(onMessage Callback) {
	u.mu.Lock()
	if u.started {
		u.mu.Unlock()
		return
	}
	u.onMessage = onMessage
	u.started = true
	u.mu.Unlock()

	u.sock.StartAsyncReceiving(u.enqueue)

	u.wg.Add(1)
	go u.packerLoop()
}

// Stop halts receiving, joins the packer goroutine, and drops every
// in-flight reassembly entry.
func (u *Udpm) Stop() {
	u.mu.Lock()
	if !u.started {
		u.mu.Unlock()
		return
	}
	u.started = false
	u.mu.Unlock()

	u.sock.StopAsyncReceiving()
	u.inbound.BreakAllWaiters()
	u.wg.Wait()
	u.inbound.Reset()
	u.table = newReassemblyTable(u.cfg)
	u.syncStats()
}

func (u *Udpm) enqueue(buf []byte, n int) {
	cp := make([]byte, n)
	copy(cp, buf[:n])
	u.inbound.Enqueue(datagram{buf: cp})
}

func (u *Udpm) packerLoop() {
	defer u.wg.Done()
	ctx := context.Background()
	for {
		d, ok := u.inbound.WaitDequeue(ctx)
		if !ok {
			return
		}
		u.handleDatagram(d.buf)
	}
}

func (u *Udpm) handleDatagram(buf []byte) {
	if len(buf) < HeaderSize {
		u.log.Debug("datagram shorter than header, dropping", "len", len(buf))
		return
	}
	h := DecodeHeader(buf)
	rest := buf[HeaderSize:]

	nul := bytes.IndexByte(rest, 0)
	if nul < 0 {
		u.log.Debug("datagram missing channel terminator, dropping")
		return
	}
	channel := string(rest[:nul])
	slice := rest[nul+1:]

	isShmKey := h.Signature == SignatureSHM

	if h.NumPackets <= 1 {
		payload := slice
		if uint32(len(payload)) > h.LenPayload {
			payload = payload[:h.LenPayload]
		}
		u.deliver(channel, payload, isShmKey)
		return
	}

	if n := u.table.evictExpired(); n > 0 {
		u.droppedExpired.Add(int64(n))
	}
	e := u.table.getOrCreate(h, channel)
	if !e.put(h.Offset, slice) {
		u.droppedRange.Add(1)
		u.log.Debug("fragment out of declared range, dropping", "id", h.ID, "offset", h.Offset, "len_payload", h.LenPayload)
		u.syncStats()
		return
	}
	if e.complete() {
		u.table.remove(h.ID)
		u.syncStats()
		u.deliver(e.channel, e.payload, isShmKey)
		return
	}
	if n := u.table.evictOldestUntilWithinBudget(); n > 0 {
		u.droppedBudget.Add(int64(n))
	}
	u.syncStats()
}

func (u *Udpm) syncStats() {
	u.reassemblyEntries.Store(int64(len(u.table.entries)))
	u.reassemblyBytes.Store(u.table.totalSize)
}

func (u *Udpm) deliver(channel string, payload []byte, isShmKey bool) {
	u.mu.Lock()
	cb := u.onMessage
	u.mu.Unlock()
	if cb == nil {
		return
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	cb(channel, out, isShmKey)
}

// Send fragments payload as needed and writes it to the multicast
// group under channel. signature distinguishes an inline payload from
// an SHM indirection key. It returns the number of payload bytes
// successfully sent, exclusive of header/channel framing; a partial
// or failed datagram write aborts the remaining fragments and returns
// an error.
func (u *Udpm) Send(channel string, payload []byte, signature uint32) (int, error) {
	channelBytes := append([]byte(channel), 0)
	overhead := HeaderSize + len(channelBytes)
	maxLenPacket := u.sock.MaxLenPacket()
	maxSlice := maxLenPacket - overhead
	if maxSlice <= 0 {
		return 0, fmt.Errorf("udpm: channel name too long for mtu budget")
	}

	id := rand.Uint32()
	total := len(payload)

	if total <= maxSlice {
		h := Header{
			Signature:  signature,
			ID:         id,
			LenPayload: uint32(total),
			NumPackets: 1,
			Offset:     0,
		}
		n, err := u.sock.Send(h.Encode(), channelBytes, payload)
		if err != nil {
			return 0, fmt.Errorf("udpm: send: %w", err)
		}
		return n - overhead, nil
	}

	numPackets := (total + maxSlice - 1) / maxSlice
	sent := 0
	for i := 0; i < numPackets; i++ {
		start := i * maxSlice
		end := start + maxSlice
		if end > total {
			end = total
		}
		h := Header{
			Signature:  signature,
			ID:         id,
			LenPayload: uint32(total),
			NumPackets: uint32(numPackets),
			Offset:     uint32(start),
		}
		n, err := u.sock.Send(h.Encode(), channelBytes, payload[start:end])
		if err != nil {
			return sent, fmt.Errorf("udpm: send fragment %d/%d: %w", i+1, numPackets, err)
		}
		sent += n - overhead
	}
	return sent, nil
}

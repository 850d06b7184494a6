// Package socket wraps a UDP multicast group as a send/receive pair:
// one connection for outbound datagrams, one address-reuse,
// group-joined connection for an asynchronous receive loop.
package socket

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/hongxinliu/shame-go/internal/logging"
)

// pollInterval bounds how long a blocked receive waits before
// re-checking for a stop request; net.PacketConn has no native
// cancelable-read primitive in the standard library, so
// StopAsyncReceiving relies on a short read deadline instead,
// mirroring the platform-shim pattern the teacher's kernel adapters
// use for OS primitives Go does not expose directly.
const pollInterval = 200 * time.Millisecond

// Config configures a multicast Socket.
type Config struct {
	// MulticastAddr is the IPv4 multicast group address.
	MulticastAddr string
	// MulticastPort is the UDP port of the group.
	MulticastPort uint16
	// TTL is the outbound multicast TTL. 0 keeps traffic on loopback.
	TTL int
	// RateLimitPerSec bounds outbound datagrams/sec. Zero disables
	// rate limiting (the default, matching the original's behavior).
	RateLimitPerSec float64
}

// MTUPacket returns the maximum single-packet payload budget derived
// from ttl, per spec: (ttl==0 ? 65535 : 1500) - 20 (IP) - 8 (UDP).
func MTUPacket(ttl int) int {
	if ttl == 0 {
		return 65535 - 20 - 8
	}
	return 1500 - 20 - 8
}

// Socket is a multicast UDP send/receive pair.
type Socket struct {
	cfg          Config
	groupAddr    *net.UDPAddr
	sendConn     *net.UDPConn
	recvPacket   *ipv4.PacketConn
	recvConn     net.PacketConn
	maxLenPacket int
	limiter      *rate.Limiter
	log          logging.Logger

	mu       sync.Mutex
	running  atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	callback func(buf []byte, n int)
}

// New constructs a Socket: sets the send TTL, binds the receive side
// with address reuse, and joins the multicast group. Construction
// failure is always returned as an error, never fatal inside this
// package.
func New(cfg Config, log logging.Logger) (*Socket, error) {
	groupAddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", cfg.MulticastAddr, cfg.MulticastPort))
	if err != nil {
		return nil, fmt.Errorf("socket: resolve multicast addr: %w", err)
	}

	sendConn, err := net.DialUDP("udp4", nil, groupAddr)
	if err != nil {
		return nil, fmt.Errorf("socket: dial send socket: %w", err)
	}
	sendPkt := ipv4.NewPacketConn(sendConn)
	if err := sendPkt.SetMulticastTTL(cfg.TTL); err != nil {
		sendConn.Close()
		return nil, fmt.Errorf("socket: set ttl: %w", err)
	}
	if err := sendPkt.SetMulticastLoopback(true); err != nil {
		sendConn.Close()
		return nil, fmt.Errorf("socket: set multicast loopback: %w", err)
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}
	recvConn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", cfg.MulticastPort))
	if err != nil {
		sendConn.Close()
		return nil, fmt.Errorf("socket: listen recv socket: %w", err)
	}

	recvPkt := ipv4.NewPacketConn(recvConn)
	ifaces, _ := net.Interfaces()
	joined := false
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagMulticast == 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if err := recvPkt.JoinGroup(iface, groupAddr); err == nil {
			joined = true
		}
	}
	if !joined {
		// Fall back to the default interface; matches the original's
		// best-effort loopback setup instructions on failure.
		if err := recvPkt.JoinGroup(nil, groupAddr); err != nil {
			recvConn.Close()
			sendConn.Close()
			return nil, fmt.Errorf("socket: join multicast group: %w", err)
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimitPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), int(cfg.RateLimitPerSec)+1)
	}

	if log == nil {
		log = logging.Nop()
	}

	return &Socket{
		cfg:          cfg,
		groupAddr:    groupAddr,
		sendConn:     sendConn,
		recvPacket:   recvPkt,
		recvConn:     recvConn,
		maxLenPacket: MTUPacket(cfg.TTL),
		limiter:      limiter,
		log:          log.With("component", "socket"),
	}, nil
}

// MaxLenPacket returns the maximum bytes of a single datagram this
// socket will send or accept.
func (s *Socket) MaxLenPacket() int {
	return s.maxLenPacket
}

// Send gathers buffers into one datagram write to the multicast
// group and returns the number of bytes actually transferred. A
// short write is reported as an error; callers treat that as a
// framing failure for the whole message.
func (s *Socket) Send(buffers ...[]byte) (int, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(context.Background()); err != nil {
			return 0, fmt.Errorf("socket: rate limit wait: %w", err)
		}
	}

	total := 0
	for _, b := range buffers {
		total += len(b)
	}
	datagram := make([]byte, 0, total)
	for _, b := range buffers {
		datagram = append(datagram, b...)
	}

	n, err := s.sendConn.Write(datagram)
	if err != nil {
		return n, fmt.Errorf("socket: write: %w", err)
	}
	if n != len(datagram) {
		return n, fmt.Errorf("socket: short write: wrote %d of %d bytes", n, len(datagram))
	}
	return n, nil
}

// StartAsyncReceiving spawns the receive goroutine. cb is invoked
// exactly once per received datagram, in the receive goroutine, with
// ownership of buf transferred to the callee. On error the buffer is
// discarded and the next read is posted.
func (s *Socket) StartAsyncReceiving(cb func(buf []byte, n int)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return
	}
	s.callback = cb
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running.Store(true)

	go s.receiveLoop(s.stopCh, s.doneCh)
}

func (s *Socket) receiveLoop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		buf := make([]byte, s.maxLenPacket)
		if err := s.recvConn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			s.log.Error("set read deadline", "error", err)
			return
		}

		n, _, _, err := s.recvPacket.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-stopCh:
				return
			default:
			}
			s.log.Debug("recv error, discarding buffer", "error", err)
			continue
		}

		s.callback(buf, n)
	}
}

// StopAsyncReceiving cancels the outstanding read, joins the receive
// goroutine, and re-arms internal state so the socket can be
// restarted with StartAsyncReceiving.
func (s *Socket) StopAsyncReceiving() {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh

	s.mu.Lock()
	s.running.Store(false)
	s.mu.Unlock()
}

// Close releases both underlying connections. The socket must not be
// used afterward.
func (s *Socket) Close() error {
	s.StopAsyncReceiving()
	var firstErr error
	if err := s.recvConn.Close(); err != nil {
		firstErr = err
	}
	if err := s.sendConn.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

package bus

import (
	"time"

	"github.com/hongxinliu/shame-go/internal/logging"
	"github.com/hongxinliu/shame-go/internal/metrics"
	"github.com/hongxinliu/shame-go/internal/shm"
	"github.com/hongxinliu/shame-go/internal/udpm"
)

type options struct {
	multicastAddr   string
	multicastPort   uint16
	ttl             int
	rateLimitPerSec float64
	reassembly      udpm.Config
	shmName         string
	shmConfig       shm.Config
	log             logging.Logger
	metrics         *metrics.Collector
}

func defaultOptions() options {
	return options{
		multicastAddr: "239.255.67.76",
		multicastPort: 6776,
		ttl:           0,
		reassembly: udpm.Config{
			MaxReassemblyBytes: 64 << 20,
			MaxReassemblyAge:   30 * time.Second,
		},
		shmName:   "Shame",
		shmConfig: shm.DefaultConfig(),
		log:       logging.Nop(),
	}
}

// Option configures a Bus at construction time.
type Option func(*options)

// WithMulticastAddr sets the UDPM multicast group address.
func WithMulticastAddr(addr string) Option {
	return func(o *options) { o.multicastAddr = addr }
}

// WithMulticastPort sets the UDPM multicast group port.
func WithMulticastPort(port uint16) Option {
	return func(o *options) { o.multicastPort = port }
}

// WithTTL sets the outbound multicast TTL. 0 restricts traffic to
// loopback.
func WithTTL(ttl int) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithRateLimit bounds outbound datagrams per second. 0 disables
// rate limiting.
func WithRateLimit(perSec float64) Option {
	return func(o *options) { o.rateLimitPerSec = perSec }
}

// WithReassembly overrides the fragmentation reassembly bounds.
func WithReassembly(cfg udpm.Config) Option {
	return func(o *options) { o.reassembly = cfg }
}

// WithShmName sets the SHM registry's segment name. An empty string
// disables shared-memory publishing entirely.
func WithShmName(name string) Option {
	return func(o *options) { o.shmName = name }
}

// WithShmConfig overrides the SHM registry's slot sizing.
func WithShmConfig(cfg shm.Config) Option {
	return func(o *options) { o.shmConfig = cfg }
}

// WithLogger sets the logger new subsystems derive their
// component-scoped loggers from.
func WithLogger(log logging.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetrics attaches a Prometheus collector the bus reports its
// packet, dispatch, and shared-memory counters to. Unset, the bus
// runs without instrumentation.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) { o.metrics = m }
}

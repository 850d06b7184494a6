// Package metrics exposes the bus's operational counters and gauges
// over Prometheus. Adapted from the teacher's application-layer
// Collector/Tracker split (internal/application/metrics), collapsed
// here into a single registry since the bus has no per-process
// tracking concern to abstract behind a port interface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every counter/gauge the bus reports. Construct one
// with New and register its handler with an HTTP server, or use Serve
// for a minimal standalone listener.
type Collector struct {
	registry *prometheus.Registry

	PacketsSent       prometheus.Counter
	PacketsReceived   prometheus.Counter
	BytesSent         prometheus.Counter
	BytesReceived     prometheus.Counter
	ReassemblyDropped *prometheus.CounterVec
	DispatchFanouts   prometheus.Counter
	ShmPutTotal       *prometheus.CounterVec
	ShmFindTotal      *prometheus.CounterVec

	ReassemblyEntries prometheus.Gauge
	ReassemblyBytes   prometheus.Gauge
}

// New builds a Collector and registers every metric on a fresh
// registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shame", Subsystem: "udpm", Name: "packets_sent_total",
			Help: "Messages published to the multicast group (one per publish, however many datagrams it spans).",
		}),
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shame", Subsystem: "udpm", Name: "packets_received_total",
			Help: "Whole messages received from the multicast group, counted after reassembly.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shame", Subsystem: "udpm", Name: "bytes_sent_total",
			Help: "Payload bytes successfully published.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shame", Subsystem: "udpm", Name: "bytes_received_total",
			Help: "Payload bytes of received messages, counted before dispatch (the key bytes for shared-memory messages).",
		}),
		ReassemblyDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shame", Subsystem: "udpm", Name: "reassembly_dropped_total",
			Help: "Incomplete messages evicted from the reassembly table, by reason.",
		}, []string{"reason"}),
		DispatchFanouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shame", Subsystem: "bus", Name: "dispatch_fanouts_total",
			Help: "Subscriber callback invocations from the dispatcher.",
		}),
		ShmPutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shame", Subsystem: "shm", Name: "put_total",
			Help: "Shared-memory segment writes, by outcome.",
		}, []string{"outcome"}),
		ShmFindTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shame", Subsystem: "shm", Name: "find_total",
			Help: "Shared-memory segment lookups, by outcome.",
		}, []string{"outcome"}),
		ReassemblyEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shame", Subsystem: "udpm", Name: "reassembly_entries",
			Help: "Incomplete messages currently held in the reassembly table.",
		}),
		ReassemblyBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shame", Subsystem: "udpm", Name: "reassembly_bytes",
			Help: "Bytes currently buffered across incomplete reassembly entries.",
		}),
	}

	reg.MustRegister(
		c.PacketsSent, c.PacketsReceived, c.BytesSent, c.BytesReceived,
		c.ReassemblyDropped, c.DispatchFanouts, c.ShmPutTotal, c.ShmFindTotal,
		c.ReassemblyEntries, c.ReassemblyBytes,
	)
	return c
}

// Handler returns the HTTP handler serving this collector's registry
// in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve starts a minimal HTTP server exposing Handler at /metrics on
// addr. It blocks until the server stops or errors; callers typically
// run it in its own goroutine.
func (c *Collector) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return http.ListenAndServe(addr, mux)
}

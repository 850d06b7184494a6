// Package bootstrap is busd's compile-time dependency-injection
// composition root, adapted from the teacher's own
// internal/bootstrap (wire.go + generated wire_gen.go + providers.go
// pattern). Wire itself is not run as part of this build; wire_gen.go
// is the deterministic output that tool would have produced, checked
// in by hand the same way the teacher's own generated file is.
package bootstrap

import (
	"fmt"

	"github.com/hongxinliu/shame-go/internal/bus"
	"github.com/hongxinliu/shame-go/internal/config"
	"github.com/hongxinliu/shame-go/internal/logging"
	"github.com/hongxinliu/shame-go/internal/metrics"
	"github.com/hongxinliu/shame-go/internal/transport/grpchealth"
	"github.com/hongxinliu/shame-go/internal/udpm"
)

// provideLogger builds the root logger busd and every subsystem
// (bus, udpm, shm) derive component-scoped loggers from. With
// cfg.Logging.File unset busd logs to the console; set, it logs
// through internal/logging.Writer so the daemon's own output rotates
// the same way captured demo subprocess output does. The write path
// deliberately leaves Writer's TimestampFormat unset — zerolog already
// stamps every record, and Writer only prepends its own timestamp when
// one is configured.
func provideLogger(cfg *config.Config) logging.Logger {
	if cfg.Logging.File == "" {
		return logging.Console(cfg.Logging.Level)
	}

	w, err := logging.NewWriter(cfg.Logging.File, &config.LogStreamConfig{
		Rotation: cfg.Logging.Defaults.Rotation,
	})
	if err != nil {
		log := logging.Console(cfg.Logging.Level)
		log.Warn("could not open log file, falling back to console", "file", cfg.Logging.File, "error", err)
		return log
	}
	return logging.New(w, cfg.Logging.Level)
}

// provideMetrics builds the Prometheus collector busd exposes over
// HTTP when cfg.Metrics.Enabled.
func provideMetrics() *metrics.Collector {
	return metrics.New()
}

// provideHealthServer builds the gRPC health service busd exposes
// when cfg.Health.Enabled.
func provideHealthServer(log logging.Logger) *grpchealth.Server {
	return grpchealth.New(log)
}

// reassemblyConfig converts the YAML-facing reassembly bounds into
// udpm's Config shape.
func reassemblyConfig(cfg *config.Config) udpm.Config {
	return udpm.Config{
		MaxReassemblyBytes: cfg.Bus.Reassembly.MaxBytes,
		MaxReassemblyAge:   cfg.Bus.Reassembly.MaxAge.Duration(),
	}
}

// provideBus constructs the bus from cfg, wiring in the logger so
// every subsystem (socket, udpm, shm) logs through it and the
// collector so it reports packet/dispatch/shm counters.
func provideBus(cfg *config.Config, log logging.Logger, m *metrics.Collector) (*bus.Bus, error) {
	b, err := bus.New(
		bus.WithMulticastAddr(cfg.Bus.MulticastAddr),
		bus.WithMulticastPort(cfg.Bus.MulticastPort),
		bus.WithTTL(cfg.Bus.TTL),
		bus.WithRateLimit(cfg.Bus.RateLimitPerSec),
		bus.WithReassembly(reassemblyConfig(cfg)),
		bus.WithShmName(cfg.Bus.ShmName),
		bus.WithLogger(log),
		bus.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: construct bus: %w", err)
	}
	return b, nil
}

// NewApp assembles the App from its already-constructed dependencies.
// This is the final provider in the dependency graph.
func NewApp(cfg *config.Config, log logging.Logger, b *bus.Bus, m *metrics.Collector, h *grpchealth.Server) *App {
	return &App{
		Config:  cfg,
		Log:     log,
		Bus:     b,
		Metrics: m,
		Health:  h,
	}
}

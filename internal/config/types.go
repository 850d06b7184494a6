// Package config provides configuration types and YAML parsing for
// the shame-go bus daemon and its companion command-line tools.
package config

import "time"

// Config is the root configuration for cmd/busd.
type Config struct {
	Version    string        `yaml:"version"`
	Bus        BusConfig     `yaml:"bus"`
	Logging    LoggingConfig `yaml:"logging"`
	Metrics    MetricsConfig `yaml:"metrics"`
	Health     HealthConfig  `yaml:"health"`
	ConfigPath string        `yaml:"-"` // path the config was loaded from, not serialized
}

// BusConfig configures the pub/sub bus: multicast transport and the
// shared-memory side channel.
type BusConfig struct {
	MulticastAddr   string           `yaml:"multicast_addr"`
	MulticastPort   uint16           `yaml:"multicast_port"`
	TTL             int              `yaml:"ttl"`
	ShmName         string           `yaml:"shm_name"`
	RateLimitPerSec float64          `yaml:"rate_limit_per_sec,omitempty"`
	Reassembly      ReassemblyConfig `yaml:"reassembly"`
}

// ReassemblyConfig bounds the UDPM layer's in-flight reassembly
// state, a MUST per the original's own design notes (it had neither
// a timeout nor a memory bound).
type ReassemblyConfig struct {
	MaxBytes int64    `yaml:"max_bytes"`
	MaxAge   Duration `yaml:"max_age"`
}

// LoggingConfig configures zerolog output level, busd's own log
// destination, and, for demo subprocesses (cmd/talker, cmd/listener),
// captured-output rotation.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// File, when set, points busd's own logger at a rotated file
	// (internal/logging.Writer) instead of the console. Rotation
	// follows Defaults.Rotation.
	File     string      `yaml:"file,omitempty"`
	BaseDir  string      `yaml:"base_dir"`
	Defaults LogDefaults `yaml:"defaults"`
}

// LogDefaults defines default demo-output logging settings.
type LogDefaults struct {
	TimestampFormat string         `yaml:"timestamp_format"`
	Rotation        RotationConfig `yaml:"rotation"`
}

// RotationConfig defines log rotation settings for captured demo
// subprocess output.
type RotationConfig struct {
	MaxSize  string `yaml:"max_size"`
	MaxFiles int    `yaml:"max_files"`
	Compress bool   `yaml:"compress"`
}

// ServiceLogging defines per-demo-program logging configuration.
type ServiceLogging struct {
	Stdout LogStreamConfig `yaml:"stdout,omitempty"`
	Stderr LogStreamConfig `yaml:"stderr,omitempty"`
}

// LogStreamConfig defines configuration for a captured output stream.
type LogStreamConfig struct {
	File            string         `yaml:"file,omitempty"`
	TimestampFormat string         `yaml:"timestamp_format,omitempty"`
	Rotation        RotationConfig `yaml:"rotation,omitempty"`
}

// MetricsConfig configures the Prometheus HTTP exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// HealthConfig configures the gRPC health-checking endpoint.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Duration is a wrapper around time.Duration that supports YAML
// unmarshaling from strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPrefix namespaces every environment override, e.g.
// SHAME_BUS_MULTICAST_ADDR.
const envPrefix = "SHAME_"

// envOverlay mirrors the subset of Config that is sensible to
// override from the environment, per github.com/caarlos0/env/v11
// struct tags. Grounded in adred-codev-ws_poc's env+dotenv overlay
// ahead of a long-running network daemon.
type envOverlay struct {
	MulticastAddr string  `env:"BUS_MULTICAST_ADDR"`
	MulticastPort uint16  `env:"BUS_MULTICAST_PORT"`
	TTL           *int    `env:"BUS_TTL"`
	ShmName       *string `env:"BUS_SHM_NAME"`
	LogLevel      string  `env:"LOG_LEVEL"`
	MetricsAddr   string  `env:"METRICS_ADDR"`
	HealthAddr    string  `env:"HEALTH_ADDR"`
}

// Load loads a ".env" from the working directory if present, then
// reads, parses, and validates a configuration file from the given
// path.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best effort, local-dev convenience only

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.ConfigPath = path
	return cfg, nil
}

// Parse parses configuration from YAML bytes, applies defaults,
// overlays environment variables, and validates the result.
func Parse(data []byte) (*Config, error) {
	// shm_name defaults to "Shame" only when the key is absent; an
	// explicit empty string survives and disables shared memory.
	cfg := Config{Bus: BusConfig{ShmName: "Shame"}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	applyDefaults(&cfg)

	if err := applyEnvOverlay(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overlay: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverlay parses envOverlay and copies any set field onto cfg.
func applyEnvOverlay(cfg *Config) error {
	var ov envOverlay
	if err := env.ParseWithOptions(&ov, env.Options{Prefix: envPrefix}); err != nil {
		return err
	}

	if ov.MulticastAddr != "" {
		cfg.Bus.MulticastAddr = ov.MulticastAddr
	}
	if ov.MulticastPort != 0 {
		cfg.Bus.MulticastPort = ov.MulticastPort
	}
	if ov.TTL != nil {
		cfg.Bus.TTL = *ov.TTL
	}
	if ov.ShmName != nil {
		cfg.Bus.ShmName = *ov.ShmName
	}
	if ov.LogLevel != "" {
		cfg.Logging.Level = ov.LogLevel
	}
	if ov.MetricsAddr != "" {
		cfg.Metrics.Addr = ov.MetricsAddr
	}
	if ov.HealthAddr != "" {
		cfg.Health.Addr = ov.HealthAddr
	}
	return nil
}

// applyDefaults sets default values for unset configuration options,
// matching spec.md §6's documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = "1"
	}

	if cfg.Bus.MulticastAddr == "" {
		cfg.Bus.MulticastAddr = "239.255.67.76"
	}
	if cfg.Bus.MulticastPort == 0 {
		cfg.Bus.MulticastPort = 6776
	}
	if cfg.Bus.Reassembly.MaxBytes == 0 {
		cfg.Bus.Reassembly.MaxBytes = 64 * 1024 * 1024 // 64MiB
	}
	if cfg.Bus.Reassembly.MaxAge == 0 {
		cfg.Bus.Reassembly.MaxAge = Duration(30e9) // 30s
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.BaseDir == "" {
		cfg.Logging.BaseDir = "/var/log/shame"
	}
	if cfg.Logging.Defaults.TimestampFormat == "" {
		cfg.Logging.Defaults.TimestampFormat = "iso8601"
	}
	if cfg.Logging.Defaults.Rotation.MaxSize == "" {
		cfg.Logging.Defaults.Rotation.MaxSize = "100MB"
	}
	if cfg.Logging.Defaults.Rotation.MaxFiles == 0 {
		cfg.Logging.Defaults.Rotation.MaxFiles = 10
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9776"
	}
	if cfg.Health.Addr == "" {
		cfg.Health.Addr = ":9777"
	}
}

// GetDemoLogPath returns the full path for a demo program's captured
// log file, e.g. for cmd/talker or cmd/listener instances.
func (c *Config) GetDemoLogPath(programName, logFile string) string {
	return filepath.Join(c.Logging.BaseDir, programName, logFile)
}

// ParseSize parses a size string like "100MB" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	suffixes := []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"G", 1024 * 1024 * 1024},
		{"M", 1024 * 1024},
		{"K", 1024},
		{"B", 1},
	}

	for _, sf := range suffixes {
		if strings.HasSuffix(s, sf.suffix) {
			numStr := strings.TrimSuffix(s, sf.suffix)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size: %s", s)
			}
			return num * sf.mult, nil
		}
	}

	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %s", s)
	}
	return num, nil
}

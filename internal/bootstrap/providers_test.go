package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongxinliu/shame-go/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Bus: config.BusConfig{
			MulticastAddr: "239.255.88.1",
			MulticastPort: 19881,
			TTL:           0,
			ShmName:       "",
			Reassembly: config.ReassemblyConfig{
				MaxBytes: 1 << 20,
				MaxAge:   config.Duration(10 * time.Second),
			},
		},
		Logging: config.LoggingConfig{Level: "error"},
		Metrics: config.MetricsConfig{Enabled: false},
		Health:  config.HealthConfig{Enabled: false},
	}
}

func TestProvideLoggerWritesToConfiguredFile(t *testing.T) {
	cfg := testConfig()
	cfg.Logging.File = filepath.Join(t.TempDir(), "busd.log")
	cfg.Logging.Level = "info"

	log := provideLogger(cfg)
	log.Info("hello", "n", 1)

	data, err := os.ReadFile(cfg.Logging.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestReassemblyConfigConvertsUnits(t *testing.T) {
	cfg := testConfig()
	got := reassemblyConfig(cfg)
	assert.Equal(t, int64(1<<20), got.MaxReassemblyBytes)
	assert.Equal(t, 10*time.Second, got.MaxReassemblyAge)
}

func TestProvideBusConstructsRunnableBus(t *testing.T) {
	cfg := testConfig()
	log := provideLogger(cfg)
	b, err := provideBus(cfg, log, provideMetrics())
	require.NoError(t, err)
	require.NotNil(t, b)
	defer b.Close()
}

func TestNewAppAssemblesDependencies(t *testing.T) {
	cfg := testConfig()
	log := provideLogger(cfg)
	m := provideMetrics()
	b, err := provideBus(cfg, log, m)
	require.NoError(t, err)
	defer b.Close()

	app := NewApp(cfg, log, b, m, provideHealthServer(log))
	assert.Same(t, cfg, app.Config)
	assert.Same(t, b, app.Bus)
}

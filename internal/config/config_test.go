package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`version: "1"`))
	require.NoError(t, err)

	assert.Equal(t, "239.255.67.76", cfg.Bus.MulticastAddr)
	assert.Equal(t, uint16(6776), cfg.Bus.MulticastPort)
	assert.Equal(t, "Shame", cfg.Bus.ShmName)
	assert.Equal(t, int64(64*1024*1024), cfg.Bus.Reassembly.MaxBytes)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":9776", cfg.Metrics.Addr)
	assert.Equal(t, ":9777", cfg.Health.Addr)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
bus:
  multicast_addr: "239.1.2.3"
  multicast_port: 7000
  ttl: 1
  shm_name: ""
reassembly:
  max_bytes: 1024
`))
	require.NoError(t, err)
	assert.Equal(t, "239.1.2.3", cfg.Bus.MulticastAddr)
	assert.Equal(t, uint16(7000), cfg.Bus.MulticastPort)
	assert.Equal(t, 1, cfg.Bus.TTL)
	assert.Empty(t, cfg.Bus.ShmName)
}

func TestParseRejectsInvalidMulticastAddr(t *testing.T) {
	_, err := Parse([]byte(`
bus:
  multicast_addr: "10.0.0.1"
`))
	assert.Error(t, err)
}

func TestParseRejectsNegativeTTL(t *testing.T) {
	_, err := Parse([]byte(`
bus:
  ttl: -1
`))
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"100MB": 100 * 1024 * 1024,
		"1GB":   1024 * 1024 * 1024,
		"512K":  512 * 1024,
		"10B":   10,
		"42":    42,
	}
	for in, want := range cases {
		got, err := ParseSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSize("")
	assert.Error(t, err)

	_, err = ParseSize("nonsense")
	assert.Error(t, err)
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("SHAME_BUS_MULTICAST_PORT", "9999")
	t.Setenv("SHAME_LOG_LEVEL", "debug")

	cfg, err := Parse([]byte(`version: "1"`))
	require.NoError(t, err)
	assert.Equal(t, uint16(9999), cfg.Bus.MulticastPort)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/hongxinliu/shame-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCaptureWritesToConfiguredFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Logging: config.LoggingConfig{BaseDir: dir}}
	svcCfg := &config.ServiceLogging{
		Stdout: config.LogStreamConfig{File: "out.log"},
		Stderr: config.LogStreamConfig{File: "err.log"},
	}

	cap, err := NewCapture("talker", cfg, svcCfg)
	require.NoError(t, err)

	_, err = cap.Stdout().Write([]byte("stdout line\n"))
	require.NoError(t, err)
	_, err = cap.Stderr().Write([]byte("stderr line\n"))
	require.NoError(t, err)
	require.NoError(t, cap.Close())
	require.NoError(t, cap.Close()) // idempotent

	out, err := os.ReadFile(filepath.Join(dir, "talker", "out.log"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "stdout line")
}

func TestNewCaptureDefaultsToProcessStreams(t *testing.T) {
	cfg := &config.Config{}
	svcCfg := &config.ServiceLogging{}

	cap, err := NewCapture("listener", cfg, svcCfg)
	require.NoError(t, err)
	defer cap.Close()

	assert.NotNil(t, cap.Stdout())
	assert.NotNil(t, cap.Stderr())
}

func TestLineWriterBuffersPartialLines(t *testing.T) {
	var buf bytes.Buffer
	lw := NewLineWriter(&buf, "[demo] ")

	_, err := lw.Write([]byte("partial"))
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	_, err = lw.Write([]byte(" line\nsecond\n"))
	require.NoError(t, err)
	assert.Equal(t, "[demo] partial line\n[demo] second\n", buf.String())
}

func TestLineWriterFlush(t *testing.T) {
	var buf bytes.Buffer
	lw := NewLineWriter(&buf, "")

	_, err := lw.Write([]byte("no newline yet"))
	require.NoError(t, err)
	require.NoError(t, lw.Flush())
	assert.Equal(t, "no newline yet\n", buf.String())
}

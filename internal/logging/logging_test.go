package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerEmitsStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug")

	log.Info("publish ok", "channel", "Shame", "bytes", 5)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "publish ok", rec["message"])
	assert.Equal(t, "Shame", rec["channel"])
	assert.EqualValues(t, 5, rec["bytes"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	log.Debug("should be dropped")
	log.Info("should also be dropped")
	assert.Empty(t, buf.String())

	log.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestWithAttachesField(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info").With("component", "bus")

	log.Info("started")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "bus", rec["component"])
}

func TestNopDiscardsEverything(t *testing.T) {
	log := Nop()
	log.Error("this should not panic or write anywhere")
}

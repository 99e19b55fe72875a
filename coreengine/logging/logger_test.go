package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/config"
)

func TestJSONLoggerWritesStructuredEntries(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Bind("run_id", "r1").Info("flow_started", "budget", 9)
	logger.Debug("hidden")
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "flow_started", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "r1", entry["run_id"])
	assert.Equal(t, float64(9), entry["budget"])
	assert.Contains(t, entry, "ts")
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LoggingConfig{Level: "warn"}, &buf)
	require.NoError(t, err)

	logger.Info("skipped")
	logger.Warn("stage_fallback", "stage", "analysis")
	logger.Error("grpc_request_failed")

	out := buf.String()
	assert.NotContains(t, out, "skipped")
	assert.Contains(t, out, "stage_fallback")
	assert.Contains(t, out, "grpc_request_failed")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LoggingConfig{Level: "debug", Format: "console"}, &buf)
	require.NoError(t, err)

	logger.Debug("stage_response", "stage", "planning")
	assert.Contains(t, buf.String(), "stage_response")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestInvalidLevel(t *testing.T) {
	_, err := NewWithWriter(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	logger := NewNop()
	logger.Bind("k", "v").Error("nothing")
	assert.NoError(t, logger.Sync())
}

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Logging:
// - JSON format writes one object per event with level, message and fields
// - Level filters lower events
// - Console format writes plain text without colors to non-terminals
// - Component adds a component field
// - Unknown level or format returns an error

func TestNew_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "warn", Format: "json"})
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	pump := Component(logger, "pump")
	pump.Warn().Int("changes", 3).Msg("drain slow")

	var event map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &event))
	assert.Equal(t, "warn", event["level"])
	assert.Equal(t, "drain slow", event["message"])
	assert.Equal(t, "pump", event["component"])
	assert.Equal(t, float64(3), event["changes"])
	assert.Contains(t, event, "time")
}

func TestNew_Console(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "DEBUG"})
	require.NoError(t, err)

	logger.Debug().Str("path", "GEN.codex").Msg("file indexed")

	out := buf.String()
	assert.Contains(t, out, "file indexed")
	assert.Contains(t, out, "path=GEN.codex")
	assert.NotContains(t, out, "\x1b[", "no color codes for a buffer")
}

func TestNew_Invalid(t *testing.T) {
	t.Parallel()

	_, err := New(&bytes.Buffer{}, Options{Level: "loud"})
	assert.Error(t, err)

	_, err = New(&bytes.Buffer{}, Options{Format: "xml"})
	assert.Error(t, err)
}

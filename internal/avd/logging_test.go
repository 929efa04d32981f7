// Copyright (C) 2026 The avdforge authors
// License: AGPL-3.0-only

package avd

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	previous := logger
	logger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{}))
	t.Cleanup(func() { logger = previous })
	return &buf
}

func TestLogEventIncludesCorrelationAndTimestamp(t *testing.T) {
	buf := captureLogs(t)

	env := Env{CorrelationID: "corr-123"}
	logEvent(env, "test message", "key", "value")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "corr-123", record["correlation_id"])
	assert.Contains(t, record, "timestamp_ns")
	assert.Equal(t, "value", record["key"])
}

func TestLogEventOmitsCorrelationWhenUnset(t *testing.T) {
	buf := captureLogs(t)

	logEvent(Env{}, "test message")

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &record))
	assert.NotContains(t, record, "correlation_id")
}

func TestCommandLogWriterIncludesFields(t *testing.T) {
	buf := captureLogs(t)

	env := Env{CorrelationID: "corr-456"}
	writer := newCommandLogWriter(env, "adb", []string{"devices"})
	_, _ = writer.Write([]byte("boom\n"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "command stderr", record["msg"])
	assert.Equal(t, "adb", record["command"])
	assert.Equal(t, "devices", record["args"])
	assert.Equal(t, "boom", record["line"])
	assert.Equal(t, "corr-456", record["correlation_id"])
}

func TestLineLogWriterBuffersPartialLines(t *testing.T) {
	buf := captureLogs(t)

	w := newLineLogWriter(Env{}, "emulator output")
	_, _ = w.Write([]byte("boot "))
	assert.Empty(t, buf.String(), "no event until a newline arrives")

	_, _ = w.Write([]byte("completed\nsecond\n\n"))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2, "blank lines are dropped")

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "boot completed", first["line"])
}

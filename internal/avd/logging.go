// Copyright (C) 2026 The avdforge authors
// License: AGPL-3.0-only

package avd

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

func logEvent(env Env, message string, fields ...any) {
	baseFields := []any{"timestamp_ns", time.Now().UTC().UnixNano()}
	if env.CorrelationID != "" {
		baseFields = append(baseFields, "correlation_id", env.CorrelationID)
	}
	logger.Info(message, append(baseFields, fields...)...)
}

// lineLogWriter turns a raw subprocess stream into one structured log
// event per line. Partial lines are buffered until a newline arrives.
type lineLogWriter struct {
	env    Env
	msg    string
	fields []any
	buffer []byte
}

func (w *lineLogWriter) Write(payload []byte) (int, error) {
	w.buffer = append(w.buffer, payload...)
	for {
		idx := bytes.IndexByte(w.buffer, '\n')
		if idx == -1 {
			break
		}
		line := strings.TrimSpace(string(w.buffer[:idx]))
		w.buffer = w.buffer[idx+1:]
		if line != "" {
			logEvent(w.env, w.msg, append(w.fields, "line", line)...)
		}
	}
	return len(payload), nil
}

func newLineLogWriter(env Env, message string, fields ...any) io.Writer {
	return &lineLogWriter{env: env, msg: message, fields: fields}
}

func newCommandLogWriter(env Env, command string, args []string) io.Writer {
	fields := []any{"command", command, "stream", "stderr"}
	if len(args) > 0 {
		fields = append(fields, "args", strings.Join(args, " "))
	}
	return newLineLogWriter(env, "command stderr", fields...)
}

package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/koopa0/shortlink/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, logger.ParseLevel(in), in)
	}
}

func TestContextHandler_AddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(logger.NewHandler(&buf, logger.Options{Level: "debug", Format: "json", TimeZone: "UTC"}))

	ctx := logger.WithRequestID(context.Background(), "req-1")
	ctx = logger.WithVisitorID(ctx, "visitor-1")
	log.With("component", "test").InfoContext(ctx, "hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "visitor-1", entry["visitor_id"])
	assert.Equal(t, "test", entry["component"])
}

func TestVisitorID(t *testing.T) {
	assert.Empty(t, logger.VisitorID(context.Background()))
	ctx := logger.WithVisitorID(context.Background(), "abc")
	assert.Equal(t, "abc", logger.VisitorID(ctx))
}

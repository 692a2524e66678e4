package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNewLogger(t *testing.T) {
	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Level: LogLevelInfo, Format: LogFormatText, Output: &buf})

		logger.Info("plan generated", "tasks", 3)

		assert.Contains(t, buf.String(), "plan generated")
		assert.Contains(t, buf.String(), "tasks=3")
	})

	t.Run("json format with service attributes", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{
			Level:          LogLevelInfo,
			Format:         LogFormatJSON,
			Output:         &buf,
			ServiceName:    "tempo",
			ServiceVersion: "1.2.3",
		})

		logger.Info("plan generated")

		entry := decodeLine(t, &buf)
		assert.Equal(t, "plan generated", entry["msg"])
		assert.Equal(t, "tempo", entry["service"])
		assert.Equal(t, "1.2.3", entry["version"])
	})

	t.Run("filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Level: LogLevelWarn, Output: &buf})

		logger.Info("hidden")
		assert.Empty(t, buf.String())

		logger.Warn("shown")
		assert.Contains(t, buf.String(), "shown")
	})
}

func TestContextHandler_AddsRequestIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf})

	ctx := WithCorrelationID(context.Background(), "corr-1")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithUserID(ctx, "user-1")
	ctx = WithPlanID(ctx, "plan-1")

	logger.InfoContext(ctx, "task started")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "corr-1", entry[CorrelationIDKey])
	assert.Equal(t, "req-1", entry[RequestIDKey])
	assert.Equal(t, "user-1", entry[UserIDKey])
	assert.Equal(t, "plan-1", entry[PlanIDKey])
}

func TestContextHandler_OmitsMissingIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf})

	logger.InfoContext(context.Background(), "idle")

	entry := decodeLine(t, &buf)
	assert.NotContains(t, entry, CorrelationIDKey)
	assert.NotContains(t, entry, PlanIDKey)
}

func TestContextHandler_WithAttrsKeepsContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf}).With("component", "reschedule")

	logger.InfoContext(WithCorrelationID(context.Background(), "corr-2"), "decided")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "reschedule", entry["component"])
	assert.Equal(t, "corr-2", entry[CorrelationIDKey])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel(LogLevelDebug))
	assert.Equal(t, slog.LevelInfo, ParseLevel(LogLevelInfo))
	assert.Equal(t, slog.LevelWarn, ParseLevel(LogLevelWarn))
	assert.Equal(t, slog.LevelError, ParseLevel(LogLevelError))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestLoggerFromEnv(t *testing.T) {
	t.Setenv("TEMPO_ENV", "production")
	t.Setenv("TEMPO_LOG_LEVEL", "debug")

	logger := LoggerFromEnv()
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestLogOperationAndDuration(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf})

	LogDuration(context.Background(), LogOperation(logger, "reschedule"), "reschedule", time.Now().Add(-50*time.Millisecond))

	entry := decodeLine(t, &buf)
	assert.Equal(t, "reschedule", entry[OperationKey])
	assert.GreaterOrEqual(t, entry[DurationKey].(float64), float64(50))
}

func TestNewRequestContext(t *testing.T) {
	ctx := NewRequestContext(context.Background(), "")
	assert.NotEmpty(t, CorrelationIDFromContext(ctx))
	assert.NotEmpty(t, RequestIDFromContext(ctx))

	ctx = NewRequestContext(context.Background(), "parent")
	assert.Equal(t, "parent", CorrelationIDFromContext(ctx))
	assert.Empty(t, OperationFromContext(ctx))
	assert.Equal(t, "plan.generate", OperationFromContext(WithOperation(ctx, "plan.generate")))
}

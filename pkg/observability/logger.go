// Package observability carries the structured logging, metrics, timing
// and health plumbing shared by every tempo binary.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// LogLevel is the minimum level written.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogConfig configures NewLogger.
type LogConfig struct {
	Level  LogLevel
	Format LogFormat
	// Output defaults to os.Stderr so stdout stays free for CLI and MCP
	// stdio output.
	Output         io.Writer
	AddSource      bool
	ServiceName    string
	ServiceVersion string
}

// DefaultLogConfig is the development configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:          LogLevelInfo,
		Format:         LogFormatText,
		Output:         os.Stderr,
		ServiceName:    "tempo",
		ServiceVersion: "dev",
	}
}

// ProductionLogConfig writes JSON with source locations.
func ProductionLogConfig() LogConfig {
	return LogConfig{
		Level:          LogLevelInfo,
		Format:         LogFormatJSON,
		Output:         os.Stderr,
		AddSource:      true,
		ServiceName:    "tempo",
		ServiceVersion: "unknown",
	}
}

// NewLogger builds a logger whose records carry the service attributes and
// the request identifiers found in the logging context.
func NewLogger(cfg LogConfig) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == LogFormatJSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	var attrs []slog.Attr
	if cfg.ServiceName != "" {
		attrs = append(attrs, slog.String("service", cfg.ServiceName))
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, slog.String("version", cfg.ServiceVersion))
	}
	if len(attrs) > 0 {
		handler = handler.WithAttrs(attrs)
	}

	return slog.New(&contextHandler{next: handler})
}

// LoggerFromEnv reads TEMPO_ENV, TEMPO_LOG_LEVEL, TEMPO_LOG_FORMAT and
// TEMPO_VERSION.
func LoggerFromEnv() *slog.Logger {
	cfg := DefaultLogConfig()
	if os.Getenv("TEMPO_ENV") == "production" {
		cfg = ProductionLogConfig()
	}
	if level := os.Getenv("TEMPO_LOG_LEVEL"); level != "" {
		cfg.Level = LogLevel(level)
	}
	if format := os.Getenv("TEMPO_LOG_FORMAT"); format != "" {
		cfg.Format = LogFormat(format)
	}
	if version := os.Getenv("TEMPO_VERSION"); version != "" {
		cfg.ServiceVersion = version
	}
	return NewLogger(cfg)
}

// ParseLevel maps a level name to slog, defaulting to info.
func ParseLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// contextHandler copies request identifiers from the context onto the
// record.
type contextHandler struct {
	next slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, attr := range []slog.Attr{
		slog.String(CorrelationIDKey, CorrelationIDFromContext(ctx)),
		slog.String(RequestIDKey, RequestIDFromContext(ctx)),
		slog.String(UserIDKey, UserIDFromContext(ctx)),
		slog.String(PlanIDKey, PlanIDFromContext(ctx)),
	} {
		if attr.Value.String() != "" {
			r.AddAttrs(attr)
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}

// LogOperation returns logger scoped to one operation.
func LogOperation(logger *slog.Logger, operation string, attrs ...any) *slog.Logger {
	return logger.With(append([]any{OperationKey, operation}, attrs...)...)
}

// LogDuration logs how long operation has been running since start.
func LogDuration(ctx context.Context, logger *slog.Logger, operation string, start time.Time) {
	logger.InfoContext(ctx, "operation completed",
		OperationKey, operation,
		DurationKey, time.Since(start).Milliseconds(),
	)
}

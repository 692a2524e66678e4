package observability

import (
	"context"
	"log/slog"
	"time"
)

// Timer measures one operation and reports it to a logger and metrics.
type Timer struct {
	operation string
	start     time.Time
	logger    *slog.Logger
	metrics   Metrics
	tags      []Tag
}

func StartTimer(operation string) *Timer {
	return &Timer{operation: operation, start: time.Now()}
}

func (t *Timer) WithLogger(logger *slog.Logger) *Timer {
	t.logger = logger
	return t
}

func (t *Timer) WithMetrics(metrics Metrics) *Timer {
	t.metrics = metrics
	return t
}

func (t *Timer) WithTags(tags ...Tag) *Timer {
	t.tags = append(t.tags, tags...)
	return t
}

// Stop records a successful run.
func (t *Timer) Stop() time.Duration {
	return t.StopWithError(nil)
}

// StopWithError records the run and counts err when non-nil.
func (t *Timer) StopWithError(err error) time.Duration {
	return t.stop(context.Background(), err)
}

func (t *Timer) stop(ctx context.Context, err error) time.Duration {
	duration := time.Since(t.start)

	if t.logger != nil {
		if err != nil {
			t.logger.ErrorContext(ctx, "operation failed",
				OperationKey, t.operation,
				DurationKey, duration.Milliseconds(),
				ErrorKey, err.Error(),
			)
		} else {
			t.logger.DebugContext(ctx, "operation completed",
				OperationKey, t.operation,
				DurationKey, duration.Milliseconds(),
			)
		}
	}

	if t.metrics != nil {
		tags := append(append([]Tag(nil), t.tags...), T(OperationKey, t.operation))
		t.metrics.Timing(MetricOperationDuration, duration, tags...)
		t.metrics.Counter(MetricOperationTotal, 1, tags...)
		if err != nil {
			t.metrics.Counter(MetricOperationErrors, 1, tags...)
		}
	}

	return duration
}

func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// TimeOperation runs fn under a Timer.
func TimeOperation(ctx context.Context, logger *slog.Logger, metrics Metrics, operation string, fn func() error) error {
	timer := StartTimer(operation).WithLogger(logger).WithMetrics(metrics)
	err := fn()
	timer.stop(ctx, err)
	return err
}

// TimeOperationResult is TimeOperation for functions returning a value.
func TimeOperationResult[T any](ctx context.Context, logger *slog.Logger, metrics Metrics, operation string, fn func() (T, error)) (T, error) {
	timer := StartTimer(operation).WithLogger(logger).WithMetrics(metrics)
	result, err := fn()
	timer.stop(ctx, err)
	return result, err
}

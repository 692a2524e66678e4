package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthRegistry_Check(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	t.Run("empty registry is healthy", func(t *testing.T) {
		report := NewHealthRegistry().Check(context.Background())
		assert.Equal(t, HealthStatusHealthy, report.Status)
		assert.Empty(t, report.Checks)
	})

	t.Run("degraded dependency", func(t *testing.T) {
		r := NewHealthRegistry()
		r.Register("database", PingChecker("database", HealthStatusUnhealthy, ok))
		r.Register("redis", PingChecker("redis", HealthStatusDegraded, down))

		report := r.Check(context.Background())
		assert.Equal(t, HealthStatusDegraded, report.Status)
		assert.Equal(t, HealthStatusHealthy, report.Checks["database"].Status)
		assert.Contains(t, report.Checks["redis"].Message, "connection refused")
		assert.Equal(t, []string{"database", "redis"}, r.Names())
	})

	t.Run("unhealthy wins over degraded", func(t *testing.T) {
		r := NewHealthRegistry()
		r.Register("database", PingChecker("database", HealthStatusUnhealthy, down))
		r.Register("redis", PingChecker("redis", HealthStatusDegraded, down))

		assert.Equal(t, HealthStatusUnhealthy, r.Check(context.Background()).Status)
	})
}

package advisory

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/application/services"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig tunes the circuit around the advisory model.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open before a probe.
	OpenTimeout time.Duration
}

// DefaultBreakerConfig opens after three straight failures for a minute.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 3, OpenTimeout: time.Minute}
}

// BreakerAdvisor fails fast while the model is unhealthy so reschedules go
// straight to the rule-based fallback instead of waiting out the timeout.
type BreakerAdvisor struct {
	next    services.Advisor
	breaker *gobreaker.CircuitBreaker[*services.AdvisoryResponse]
}

func NewBreakerAdvisor(next services.Advisor, cfg BreakerConfig, logger *slog.Logger) *BreakerAdvisor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultBreakerConfig().OpenTimeout
	}

	settings := gobreaker.Settings{
		Name:        "advisory",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	return &BreakerAdvisor{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[*services.AdvisoryResponse](settings),
	}
}

func (b *BreakerAdvisor) Suggest(ctx context.Context, req services.AdvisoryRequest) (*services.AdvisoryResponse, error) {
	return b.breaker.Execute(func() (*services.AdvisoryResponse, error) {
		return b.next.Suggest(ctx, req)
	})
}

// State reports the circuit state for health output.
func (b *BreakerAdvisor) State() string {
	return b.breaker.State().String()
}

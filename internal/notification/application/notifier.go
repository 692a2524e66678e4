package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/felixgeelhaar/tempo/pkg/observability"
	"github.com/google/uuid"
)

// Kind classifies a notification.
type Kind string

const (
	KindCheckIn      Kind = "check_in"
	KindIntervention Kind = "intervention"
	KindOfferMore    Kind = "offer_more"
	KindReschedule   Kind = "reschedule"
)

// Message is one nudge to the user.
type Message struct {
	Kind    Kind
	UserID  uuid.UUID
	PlanID  uuid.UUID
	TaskID  uuid.UUID
	Subject string
	Body    string
}

// Notifier delivers a message on one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, msg Message) error
}

// Dispatcher fans a message out to every channel. Delivery is best-effort:
// failures are logged and counted, never returned.
type Dispatcher struct {
	notifiers []Notifier
	logger    *slog.Logger
	metrics   observability.Metrics
}

func NewDispatcher(logger *slog.Logger, metrics observability.Metrics, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Dispatcher{notifiers: notifiers, logger: logger, metrics: metrics}
}

// Notify returns once every channel was tried.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) {
	if d == nil {
		return
	}
	var errs []error
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, msg); err != nil {
			d.metrics.Counter(observability.MetricNotificationsFailed, 1,
				observability.T("channel", n.Name()),
				observability.T("kind", string(msg.Kind)),
			)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		d.logger.WarnContext(ctx, "notification delivery failed",
			"kind", msg.Kind,
			"user_id", msg.UserID,
			"error", err,
		)
	}
}

// Package logging writes notifications to the structured log. It is the
// channel local installs always have.
package logging

import (
	"context"
	"log/slog"

	notificationApp "github.com/felixgeelhaar/tempo/internal/notification/application"
)

type Notifier struct {
	logger *slog.Logger
}

func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

func (n *Notifier) Name() string { return "log" }

func (n *Notifier) Notify(ctx context.Context, msg notificationApp.Message) error {
	n.logger.InfoContext(ctx, msg.Subject,
		"kind", msg.Kind,
		"user_id", msg.UserID,
		"plan_id", msg.PlanID,
		"body", msg.Body,
	)
	return nil
}

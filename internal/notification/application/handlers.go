package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	planningDomain "github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
)

// PlanReader loads a plan by id.
type PlanReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*planningDomain.Plan, error)
}

// CheckInHandler points the user at the next task after a completion.
type CheckInHandler struct {
	plans      PlanReader
	dispatcher *Dispatcher
	loc        *time.Location
	logger     *slog.Logger
}

func NewCheckInHandler(plans PlanReader, dispatcher *Dispatcher, loc *time.Location, logger *slog.Logger) *CheckInHandler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckInHandler{plans: plans, dispatcher: dispatcher, loc: loc, logger: logger}
}

func (h *CheckInHandler) EventTypes() []string {
	return []string{planningDomain.RoutingKeyTaskCompleted}
}

// Handle returns an error only when the plan cannot be read, so the broker
// retries; delivery itself is best-effort.
func (h *CheckInHandler) Handle(ctx context.Context, event *eventbus.Event) error {
	var completed planningDomain.TaskCompleted
	if err := json.Unmarshal(event.Body, &completed); err != nil {
		h.logger.ErrorContext(ctx, "failed to unmarshal task completed payload", "error", err)
		return nil
	}

	plan, err := h.plans.FindByID(ctx, completed.PlanID)
	if err != nil {
		return fmt.Errorf("load plan %s: %w", completed.PlanID, err)
	}
	if plan == nil {
		return nil
	}

	next, ok := NextTask(plan, completed.TaskID, completed.CompletedAt)
	if !ok {
		return nil
	}

	msg := Message{
		Kind:    KindCheckIn,
		UserID:  completed.UserID,
		PlanID:  completed.PlanID,
		TaskID:  next.TaskID,
		Subject: fmt.Sprintf("Done: %s", completed.TaskTitle),
		Body: fmt.Sprintf("Next up: %s at %s (%d min).",
			next.Title, next.ScheduledStart.In(h.loc).Format("15:04"), next.AdjustedMinutes),
	}
	if completed.FinishedEarly {
		msg.Body = "Finished early. " + msg.Body
	}
	h.dispatcher.Notify(ctx, msg)
	return nil
}

// NextTask is the earliest scheduled task, other than done, that is still
// ahead of or running at now and has not been started.
func NextTask(plan *planningDomain.Plan, done uuid.UUID, now time.Time) (planningDomain.ScheduledTask, bool) {
	for _, t := range plan.Tasks() {
		if t.TaskID == done || !t.IsScheduled() {
			continue
		}
		switch t.Status(now) {
		case planningDomain.StatusPending, planningDomain.StatusUpcoming:
			return t, true
		}
	}
	return planningDomain.ScheduledTask{}, false
}

// RescheduleNoticeHandler tells the user what an applied reschedule did.
type RescheduleNoticeHandler struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewRescheduleNoticeHandler(dispatcher *Dispatcher, logger *slog.Logger) *RescheduleNoticeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RescheduleNoticeHandler{dispatcher: dispatcher, logger: logger}
}

func (h *RescheduleNoticeHandler) EventTypes() []string {
	return []string{planningDomain.RoutingKeyPlanRescheduled}
}

func (h *RescheduleNoticeHandler) Handle(ctx context.Context, event *eventbus.Event) error {
	var rescheduled planningDomain.PlanRescheduled
	if err := json.Unmarshal(event.Body, &rescheduled); err != nil {
		h.logger.ErrorContext(ctx, "failed to unmarshal plan rescheduled payload", "error", err)
		return nil
	}

	subject := "Your day was rescheduled"
	if rescheduled.Rescue {
		subject = "Rescue mode: only what matters today"
	}
	body := fmt.Sprintf("%d tasks kept, %d moved to later.", len(rescheduled.ScheduledTaskIDs), len(rescheduled.DeferredTaskIDs))
	if rescheduled.Justification != "" {
		body += "\n" + rescheduled.Justification
	}

	h.dispatcher.Notify(ctx, Message{
		Kind:    KindReschedule,
		UserID:  rescheduled.UserID,
		PlanID:  rescheduled.PlanID,
		Subject: subject,
		Body:    body,
	})
	return nil
}

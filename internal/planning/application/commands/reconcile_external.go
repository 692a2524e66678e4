package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	sharedApplication "github.com/felixgeelhaar/tempo/internal/shared/application"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/lock"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/outbox"
	tasksyncApp "github.com/felixgeelhaar/tempo/internal/tasksync/application"
	"github.com/felixgeelhaar/tempo/pkg/observability"
	"github.com/google/uuid"
)

// ReconcileExternalCommand pulls completion state from the task source
// into the day's plan.
type ReconcileExternalCommand struct {
	UserID   uuid.UUID
	Date     time.Time
	Location *time.Location
}

// ReconcileResult counts what changed.
type ReconcileResult struct {
	Plan      *domain.Plan
	Completed int
	Reopened  int
	// Unmatched counts plan tasks from the source the source no longer lists.
	Unmatched int
}

// ReconcileExternalHandler handles the ReconcileExternalCommand.
type ReconcileExternalHandler struct {
	planRepo   domain.PlanRepository
	source     tasksyncApp.Source
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	locker     lock.Locker
	logger     *slog.Logger
	metrics    observability.Metrics
	clock      Clock
}

// NewReconcileExternalHandler creates a new ReconcileExternalHandler.
func NewReconcileExternalHandler(
	planRepo domain.PlanRepository,
	source tasksyncApp.Source,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	locker lock.Locker,
	logger *slog.Logger,
	metrics observability.Metrics,
	clock Clock,
) *ReconcileExternalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &ReconcileExternalHandler{
		planRepo:   planRepo,
		source:     source,
		outboxRepo: outboxRepo,
		uow:        uow,
		locker:     locker,
		logger:     logger,
		metrics:    metrics,
		clock:      clock,
	}
}

// Handle executes the ReconcileExternalCommand.
func (h *ReconcileExternalHandler) Handle(ctx context.Context, cmd ReconcileExternalCommand) (*ReconcileResult, error) {
	if h.source == nil {
		return nil, errors.New("no task source configured")
	}
	if cmd.UserID == uuid.Nil {
		return nil, domain.NewValidationError(domain.CodeMissingIdentifier, "user id is required")
	}
	now := h.clock.now()
	date := planDate(cmd.Date, now, locationOrUTC(cmd.Location))

	external, err := h.source.ListTasks(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("list %s tasks: %w", h.source.Name(), err)
	}
	byID := make(map[string]tasksyncApp.ExternalTask, len(external))
	for _, t := range external {
		byID[t.ID] = t
	}

	release, err := acquirePlan(ctx, h.locker, h.metrics, cmd.UserID, date)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &ReconcileResult{}
	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		plan, err := loadPlan(txCtx, h.planRepo, cmd.UserID, date)
		if err != nil {
			return err
		}
		result.Plan = plan

		for _, t := range plan.Tasks() {
			if t.ExternalID == "" {
				continue
			}
			ext, ok := byID[t.ExternalID]
			if !ok {
				result.Unmatched++
				continue
			}
			switch {
			case ext.Completed && !t.Completed:
				if err := plan.CompleteTask(t.TaskID, completionTime(t, ext, now), 0); err != nil {
					return err
				}
				result.Completed++
			case !ext.Completed && t.Completed:
				if err := plan.ReopenTask(t.TaskID, now); err != nil {
					return err
				}
				result.Reopened++
			}
		}

		if len(plan.DomainEvents()) == 0 {
			return nil
		}
		if err := h.planRepo.Update(txCtx, plan); err != nil {
			return err
		}
		return saveEvents(txCtx, h.outboxRepo, plan, cmd.UserID)
	})
	if err != nil {
		return nil, err
	}

	h.logger.InfoContext(ctx, "task source reconciled",
		"source", h.source.Name(),
		"plan_id", result.Plan.ID(),
		"completed", result.Completed,
		"reopened", result.Reopened,
		"unmatched", result.Unmatched,
	)
	return result, nil
}

// completionTime prefers the source's timestamp unless it predates the
// recorded start.
func completionTime(t domain.ScheduledTask, ext tasksyncApp.ExternalTask, now time.Time) time.Time {
	if ext.CompletedAt == nil {
		return now
	}
	if t.ActualStart != nil && ext.CompletedAt.Before(*t.ActualStart) {
		return now
	}
	return *ext.CompletedAt
}

package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/application/services"
	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	sharedApplication "github.com/felixgeelhaar/tempo/internal/shared/application"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/lock"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/tempo/pkg/observability"
	"github.com/google/uuid"
)

// StartTaskCommand marks a task as started.
type StartTaskCommand struct {
	UserID uuid.UUID
	Date   time.Time
	// TaskRef is a task id, an external id or a 1-based position.
	TaskRef  string
	At       time.Time
	Location *time.Location
}

// CompleteTaskCommand marks a task as completed.
type CompleteTaskCommand struct {
	UserID   uuid.UUID
	Date     time.Time
	TaskRef  string
	At       time.Time
	Location *time.Location
	// ActualMinutes overrides the duration derived from the start.
	ActualMinutes int
}

// ProgressResult is the plan after the change.
type ProgressResult struct {
	Plan     *domain.Plan
	Task     domain.ScheduledTask
	Progress services.ProgressSnapshot
	// Changed is false when the call repeated an earlier one.
	Changed bool
}

// RecordProgressHandler records task starts and completions.
type RecordProgressHandler struct {
	planRepo   domain.PlanRepository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	locker     lock.Locker
	logger     *slog.Logger
	metrics    observability.Metrics
	clock      Clock
}

// NewRecordProgressHandler creates a new RecordProgressHandler.
func NewRecordProgressHandler(
	planRepo domain.PlanRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	locker lock.Locker,
	logger *slog.Logger,
	metrics observability.Metrics,
	clock Clock,
) *RecordProgressHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &RecordProgressHandler{
		planRepo:   planRepo,
		outboxRepo: outboxRepo,
		uow:        uow,
		locker:     locker,
		logger:     logger,
		metrics:    metrics,
		clock:      clock,
	}
}

// Start executes the StartTaskCommand. Starting twice is a no-op.
func (h *RecordProgressHandler) Start(ctx context.Context, cmd StartTaskCommand) (*ProgressResult, error) {
	return h.record(ctx, "start", cmd.UserID, cmd.Date, cmd.At, cmd.Location, cmd.TaskRef,
		func(plan *domain.Plan, taskID uuid.UUID, at time.Time) error {
			return plan.StartTask(taskID, at)
		})
}

// Complete executes the CompleteTaskCommand. Repeating a completion with
// the same values is a no-op.
func (h *RecordProgressHandler) Complete(ctx context.Context, cmd CompleteTaskCommand) (*ProgressResult, error) {
	if cmd.ActualMinutes < 0 {
		return nil, domain.NewValidationError(domain.CodeInvalidEstimate, "actual minutes must not be negative, got %d", cmd.ActualMinutes)
	}
	return h.record(ctx, "complete", cmd.UserID, cmd.Date, cmd.At, cmd.Location, cmd.TaskRef,
		func(plan *domain.Plan, taskID uuid.UUID, at time.Time) error {
			return plan.CompleteTask(taskID, at, cmd.ActualMinutes)
		})
}

func (h *RecordProgressHandler) record(
	ctx context.Context,
	action string,
	userID uuid.UUID,
	date, at time.Time,
	loc *time.Location,
	ref string,
	mutate func(plan *domain.Plan, taskID uuid.UUID, at time.Time) error,
) (*ProgressResult, error) {
	if userID == uuid.Nil {
		return nil, domain.NewValidationError(domain.CodeMissingIdentifier, "user id is required")
	}
	if at.IsZero() {
		at = h.clock.now()
	}
	day := planDate(date, at, locationOrUTC(loc))

	release, err := acquirePlan(ctx, h.locker, h.metrics, userID, day)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &ProgressResult{}
	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		plan, err := loadPlan(txCtx, h.planRepo, userID, day)
		if err != nil {
			return err
		}
		task, err := plan.ResolveTask(ref)
		if err != nil {
			return err
		}
		if err := mutate(plan, task.TaskID, at); err != nil {
			return err
		}

		result.Plan = plan
		result.Task, _ = plan.Task(task.TaskID)
		if len(plan.DomainEvents()) == 0 {
			return nil
		}
		result.Changed = true

		if err := h.planRepo.Update(txCtx, plan); err != nil {
			return err
		}
		return saveEvents(txCtx, h.outboxRepo, plan, userID)
	})
	if err != nil {
		return nil, err
	}

	result.Progress = services.TrackProgress(result.Plan.Tasks(), at)
	if result.Changed {
		h.metrics.Counter(observability.MetricProgressRecorded, 1, observability.T("action", action))
		h.logger.InfoContext(ctx, "progress recorded",
			"action", action,
			"plan_id", result.Plan.ID(),
			"task_id", result.Task.TaskID,
			"minutes_ahead_behind", result.Progress.MinutesAheadBehind,
		)
	}
	return result, nil
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/application/services"
	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	sharedApplication "github.com/felixgeelhaar/tempo/internal/shared/application"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/lock"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/outbox"
	tasksyncApp "github.com/felixgeelhaar/tempo/internal/tasksync/application"
	"github.com/felixgeelhaar/tempo/pkg/observability"
	"github.com/google/uuid"
)

// GeneratePlanCommand contains the data needed to plan one day.
type GeneratePlanCommand struct {
	UserID        uuid.UUID
	Date          time.Time
	CapacityScore int
	Mode          domain.Mode
	Tasks         []domain.TaskToSchedule
	// FromSync adds the pending tasks of the configured task source.
	FromSync bool
	// ApplyMomentum lowers the budget after a weak or collapsed day.
	ApplyMomentum bool
	Location      *time.Location
}

// GeneratePlanResult contains the stored plan and what shaped it.
type GeneratePlanResult struct {
	Plan          *domain.Plan
	Buffer        services.BufferProfile
	Windows       services.WindowProfile
	BudgetMinutes int
}

// GeneratePlanHandler handles the GeneratePlanCommand.
type GeneratePlanHandler struct {
	planRepo   domain.PlanRepository
	profiles   *services.ProfileLoader
	builder    *services.PlanBuilder
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	locker     lock.Locker
	source     tasksyncApp.Source
	mirror     CalendarMirror
	logger     *slog.Logger
	metrics    observability.Metrics
	clock      Clock
}

// NewGeneratePlanHandler creates a new GeneratePlanHandler. source and
// mirror may be nil.
func NewGeneratePlanHandler(
	planRepo domain.PlanRepository,
	profiles *services.ProfileLoader,
	builder *services.PlanBuilder,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	locker lock.Locker,
	source tasksyncApp.Source,
	mirror CalendarMirror,
	logger *slog.Logger,
	metrics observability.Metrics,
	clock Clock,
) *GeneratePlanHandler {
	if builder == nil {
		builder = services.NewPlanBuilder(services.DefaultBuilderConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &GeneratePlanHandler{
		planRepo:   planRepo,
		profiles:   profiles,
		builder:    builder,
		outboxRepo: outboxRepo,
		uow:        uow,
		locker:     locker,
		source:     source,
		mirror:     mirror,
		logger:     logger,
		metrics:    metrics,
		clock:      clock,
	}
}

// Handle executes the GeneratePlanCommand.
func (h *GeneratePlanHandler) Handle(ctx context.Context, cmd GeneratePlanCommand) (*GeneratePlanResult, error) {
	if cmd.UserID == uuid.Nil {
		return nil, domain.NewValidationError(domain.CodeMissingIdentifier, "user id is required")
	}
	if err := domain.ValidateCapacity(cmd.CapacityScore); err != nil {
		return nil, err
	}
	if !cmd.Mode.IsValid() {
		return nil, domain.NewValidationError(domain.CodeInvalidMode, "unknown mode %q", cmd.Mode)
	}

	loc := locationOrUTC(cmd.Location)
	now := h.clock.now()
	date := planDate(cmd.Date, now, loc)

	tasks := append([]domain.TaskToSchedule(nil), cmd.Tasks...)
	if cmd.FromSync {
		synced, err := h.syncedTasks(ctx, cmd.UserID, tasks)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, synced...)
	}

	release, err := acquirePlan(ctx, h.locker, h.metrics, cmd.UserID, date)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := h.planRepo.FindByUserAndDate(ctx, cmd.UserID, date)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlanAlreadyExists, date.Format(time.DateOnly))
	}

	profile, err := h.profiles.Load(ctx, cmd.UserID, now, loc)
	if err != nil {
		return nil, err
	}

	in := services.BuildInput{
		Date:          date,
		Location:      loc,
		CapacityScore: cmd.CapacityScore,
		Mode:          cmd.Mode,
		Tasks:         tasks,
		Buffer:        profile.Buffer,
		Windows:       profile.Windows,
		Now:           now,
	}
	if cmd.ApplyMomentum && len(profile.History) > 0 {
		last := profile.History[len(profile.History)-1]
		state := services.StateFor(services.TrailingStreak(last.Tasks(), now))
		in.Momentum = &state
	}

	built, err := h.builder.Build(in)
	if err != nil {
		return nil, err
	}

	plan, err := domain.NewPlan(cmd.UserID, date, cmd.CapacityScore, cmd.Mode, built.Justification, built.Tasks, now)
	if err != nil {
		return nil, err
	}

	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		if err := h.planRepo.Create(txCtx, plan); err != nil {
			return err
		}
		return saveEvents(txCtx, h.outboxRepo, plan, cmd.UserID)
	})
	if err != nil {
		return nil, err
	}

	h.metrics.Counter(observability.MetricPlanGenerated, 1, observability.T("mode", cmd.Mode.String()))
	h.logger.InfoContext(ctx, "plan generated",
		"plan_id", plan.ID(),
		"date", date.Format(time.DateOnly),
		"tasks", plan.TaskCount(),
		"scheduled_minutes", plan.ScheduledMinutes(),
		"available_minutes", plan.AvailableMinutes(),
	)

	if h.mirror != nil {
		h.mirror.MirrorPlan(ctx, plan)
	}

	return &GeneratePlanResult{
		Plan:          plan,
		Buffer:        profile.Buffer,
		Windows:       profile.Windows,
		BudgetMinutes: built.BudgetMinutes,
	}, nil
}

// syncedTasks converts the source's pending tasks, skipping any already
// given explicitly.
func (h *GeneratePlanHandler) syncedTasks(ctx context.Context, userID uuid.UUID, given []domain.TaskToSchedule) ([]domain.TaskToSchedule, error) {
	if h.source == nil {
		return nil, errors.New("no task source configured")
	}
	external, err := h.source.ListTasks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list %s tasks: %w", h.source.Name(), err)
	}

	seen := make(map[string]bool, len(given))
	for _, t := range given {
		if t.ExternalID != "" {
			seen[t.ExternalID] = true
		}
	}

	out := make([]domain.TaskToSchedule, 0, len(external))
	for _, t := range tasksyncApp.Pending(external) {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, domain.TaskToSchedule{
			ID:               tasksyncApp.TaskID(h.source.Name(), t.ID),
			ExternalID:       t.ID,
			Title:            t.Title,
			Priority:         domain.Priority(t.Priority),
			EstimatedMinutes: t.EstimatedMinutes,
			DueDate:          t.DueDate,
			Project:          t.Project,
		})
	}
	return out, nil
}

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	notificationApp "github.com/felixgeelhaar/tempo/internal/notification/application"
	"github.com/felixgeelhaar/tempo/internal/planning/application/services"
	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	sharedApplication "github.com/felixgeelhaar/tempo/internal/shared/application"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/lock"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/tempo/pkg/observability"
	"github.com/google/uuid"
)

// RescheduleCommand evaluates the day and, with Apply, rebuilds the rest
// of it.
type RescheduleCommand struct {
	UserID   uuid.UUID
	Date     time.Time
	Location *time.Location
	Apply    bool
	Goals    []string
	// Simplify asks for the recovery rebuild regardless of momentum.
	Simplify bool
}

// RescheduleResult contains the decision and the proposal. Applied is
// true once the proposal is stored.
type RescheduleResult struct {
	Plan       *domain.Plan
	Decision   services.Decision
	Proposal   domain.RescheduleProposal
	Evaluation services.DayEvaluation
	Applied    bool
}

// RescheduleHandler handles the RescheduleCommand.
type RescheduleHandler struct {
	planRepo   domain.PlanRepository
	logRepo    domain.RescheduleLogRepository
	profiles   *services.ProfileLoader
	engine     *services.RescheduleEngine
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	locker     lock.Locker
	notifier   Notifier
	mirror     CalendarMirror
	logger     *slog.Logger
	metrics    observability.Metrics
	clock      Clock
}

// NewRescheduleHandler creates a new RescheduleHandler. notifier and
// mirror may be nil.
func NewRescheduleHandler(
	planRepo domain.PlanRepository,
	logRepo domain.RescheduleLogRepository,
	profiles *services.ProfileLoader,
	engine *services.RescheduleEngine,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	locker lock.Locker,
	notifier Notifier,
	mirror CalendarMirror,
	logger *slog.Logger,
	metrics observability.Metrics,
	clock Clock,
) *RescheduleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if engine == nil {
		engine = services.NewRescheduleEngine(services.DefaultRescheduleConfig(), nil, logger, metrics)
	}
	return &RescheduleHandler{
		planRepo:   planRepo,
		logRepo:    logRepo,
		profiles:   profiles,
		engine:     engine,
		outboxRepo: outboxRepo,
		uow:        uow,
		locker:     locker,
		notifier:   notifier,
		mirror:     mirror,
		logger:     logger,
		metrics:    metrics,
		clock:      clock,
	}
}

// Handle executes the RescheduleCommand. A caller cancelling while the
// advisor runs still gets the rule-based proposal; once a proposal exists
// the write is finished regardless of cancellation.
func (h *RescheduleHandler) Handle(ctx context.Context, cmd RescheduleCommand) (*RescheduleResult, error) {
	if cmd.UserID == uuid.Nil {
		return nil, domain.NewValidationError(domain.CodeMissingIdentifier, "user id is required")
	}
	loc := locationOrUTC(cmd.Location)
	now := h.clock.now()
	date := planDate(cmd.Date, now, loc)

	if cmd.Apply {
		release, err := acquirePlan(ctx, h.locker, h.metrics, cmd.UserID, date)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	plan, err := loadPlan(ctx, h.planRepo, cmd.UserID, date)
	if err != nil {
		return nil, err
	}
	profile, err := h.profiles.Load(ctx, cmd.UserID, now, loc)
	if err != nil {
		return nil, err
	}

	eval := services.EvaluateDay(plan, profile.History, now, loc)
	h.metrics.Histogram(observability.MetricSkipRiskScore, float64(eval.Risk.Highest.Percentage))

	in := eval.RescheduleInput(plan, profile, now, loc)
	in.Goals = cmd.Goals
	in.InterventionRequested = cmd.Simplify
	proposal, decision := h.engine.Propose(ctx, in)

	result := &RescheduleResult{
		Plan:       plan,
		Decision:   decision,
		Proposal:   proposal,
		Evaluation: eval,
	}

	h.nudge(ctx, plan, eval.Momentum)

	if !cmd.Apply || proposal.Type == domain.RescheduleNone {
		return result, nil
	}

	writeCtx := context.WithoutCancel(ctx)
	err = sharedApplication.WithUnitOfWork(writeCtx, h.uow, func(txCtx context.Context) error {
		for id, risk := range eval.Risk.Tasks {
			state := eval.Momentum.State
			if err := plan.AnnotateTask(id, risk.Snapshot(), &state); err != nil {
				return err
			}
		}
		if err := plan.ApplyReschedule(proposal, now); err != nil {
			return err
		}
		if err := h.planRepo.Update(txCtx, plan); err != nil {
			return err
		}
		if h.logRepo != nil {
			if err := h.logRepo.Append(txCtx, domain.NewRescheduleRecord(plan, proposal, now)); err != nil {
				return fmt.Errorf("append reschedule log: %w", err)
			}
		}
		return saveEvents(txCtx, h.outboxRepo, plan, cmd.UserID)
	})
	if err != nil {
		return nil, err
	}
	result.Applied = true

	h.logger.InfoContext(ctx, "reschedule applied",
		"plan_id", plan.ID(),
		"type", proposal.Type,
		"source", proposal.Source,
		"rescue", proposal.Rescue,
		"scheduled", len(proposal.Scheduled),
		"deferred", len(proposal.Deferred),
	)

	if h.mirror != nil {
		h.mirror.MirrorPlan(writeCtx, plan)
	}
	return result, nil
}

// nudge tells the user about a collapsed or strong day.
func (h *RescheduleHandler) nudge(ctx context.Context, plan *domain.Plan, momentum services.MomentumMetrics) {
	if h.notifier == nil {
		return
	}
	msg := notificationApp.Message{UserID: plan.UserID(), PlanID: plan.ID()}
	switch momentum.Intervention {
	case services.InterventionSimplify:
		msg.Kind = notificationApp.KindIntervention
		msg.Subject = "Let's make today smaller"
		msg.Body = fmt.Sprintf("%d tasks in a row slipped. Pick one or two quick wins and let the rest wait.", momentum.ConsecutiveSkips)
	case services.InterventionOfferMore:
		msg.Kind = notificationApp.KindOfferMore
		msg.Subject = "You're on a roll"
		msg.Body = fmt.Sprintf("%d tasks finished early in a row. There is room to pull in more work.", momentum.ConsecutiveEarlyCompletions)
	default:
		return
	}
	h.notifier.Notify(ctx, msg)
}

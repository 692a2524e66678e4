package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/felixgeelhaar/tempo/pkg/observability"
)

// DefaultMirrorTimeout bounds one mirror run.
const DefaultMirrorTimeout = 15 * time.Second

// Mirror copies the scheduled windows of a plan into an external calendar.
// A failed mirror never fails the plan operation that triggered it.
type Mirror struct {
	syncer  Syncer
	timeout time.Duration
	logger  *slog.Logger
	metrics observability.Metrics
	now     func() time.Time
}

// NewMirror creates a Mirror. A zero timeout uses DefaultMirrorTimeout.
func NewMirror(syncer Syncer, timeout time.Duration, logger *slog.Logger, metrics observability.Metrics) *Mirror {
	if timeout <= 0 {
		timeout = DefaultMirrorTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Mirror{
		syncer:  syncer,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// MirrorPlan syncs every scheduled task of the plan.
func (m *Mirror) MirrorPlan(ctx context.Context, plan *domain.Plan) {
	if m == nil || m.syncer == nil || plan == nil {
		return
	}
	blocks := PlanBlocks(plan, m.now())
	if len(blocks) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	result, err := m.syncer.Sync(ctx, plan.UserID(), blocks)
	if err != nil {
		m.metrics.Counter(observability.MetricCalendarMirrorFail, int64(len(blocks)))
		m.logger.WarnContext(ctx, "calendar mirror failed",
			"plan_id", plan.ID(),
			"blocks", len(blocks),
			"error", err,
		)
		return
	}
	if result.Failed > 0 {
		m.metrics.Counter(observability.MetricCalendarMirrorFail, int64(result.Failed))
	}
	m.logger.InfoContext(ctx, "calendar mirrored",
		"plan_id", plan.ID(),
		"created", result.Created,
		"updated", result.Updated,
		"deleted", result.Deleted,
		"failed", result.Failed,
	)
}

// PlanBlocks converts the scheduled tasks of a plan into calendar blocks.
// Deferred and unscheduled tasks have no window and are left out.
func PlanBlocks(plan *domain.Plan, now time.Time) []TimeBlock {
	tasks := plan.Tasks()
	blocks := make([]TimeBlock, 0, len(tasks))
	for _, t := range tasks {
		if !t.IsScheduled() {
			continue
		}
		blockType := "task"
		if t.Project != "" {
			blockType = t.Project
		}
		blocks = append(blocks, TimeBlock{
			ID:        t.TaskID,
			Title:     t.Title,
			BlockType: blockType,
			StartTime: *t.ScheduledStart,
			EndTime:   *t.ScheduledEnd,
			Completed: t.Completed,
			Missed:    t.Status(now) == domain.StatusSkipped,
		})
	}
	return blocks
}

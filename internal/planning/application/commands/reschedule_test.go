package commands

import (
	"context"
	"testing"

	notificationApp "github.com/felixgeelhaar/tempo/internal/notification/application"
	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) rescheduleHandler() *RescheduleHandler {
	return NewRescheduleHandler(f.store, f.store, f.profiles, nil, f.outbox, f.uow, f.locker, f.notifier, f.mirror, nil, f.metrics, f.clock())
}

func TestRescheduleHandler_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("preview leaves the plan untouched", func(t *testing.T) {
		f := newFixture(at(10, 0))
		_, review := seedBehindDay(t, f)

		result, err := f.rescheduleHandler().Handle(ctx, RescheduleCommand{UserID: f.userID, Date: testDay})

		require.NoError(t, err)
		assert.False(t, result.Applied)
		assert.Equal(t, domain.RescheduleBehind, result.Decision.Type)
		assert.Equal(t, -20, result.Evaluation.Progress.MinutesAheadBehind)
		require.Len(t, result.Proposal.Scheduled, 1)
		assert.Equal(t, review.TaskID, result.Proposal.Scheduled[0].TaskID)
		assert.Equal(t, at(10, 15), result.Proposal.Scheduled[0].Start)

		assert.Equal(t, 1, f.reload(t).Version())
		assert.Empty(t, f.outbox.Messages())
	})

	t.Run("apply stores the new windows with an audit record", func(t *testing.T) {
		f := newFixture(at(10, 0))
		_, review := seedBehindDay(t, f)

		result, err := f.rescheduleHandler().Handle(ctx, RescheduleCommand{UserID: f.userID, Date: testDay, Apply: true})

		require.NoError(t, err)
		assert.True(t, result.Applied)
		assert.Contains(t, result.Proposal.Justification, "using rule-based scheduling")

		stored := f.reload(t)
		assert.Equal(t, 2, stored.Version())
		moved, err := stored.Task(review.TaskID)
		require.NoError(t, err)
		assert.Equal(t, at(10, 15), *moved.ScheduledStart)
		assert.Equal(t, at(10, 45), *moved.ScheduledEnd)
		require.NotNil(t, moved.SkipRisk)
		require.NotNil(t, moved.MomentumState)
		assert.Equal(t, domain.MomentumNormal, *moved.MomentumState)

		logs, err := f.store.ListByPlan(ctx, stored.ID())
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, domain.RescheduleBehind, logs[0].Type)
		assert.Equal(t, domain.SourceRules, logs[0].Source)

		assert.Equal(t, []string{domain.RoutingKeyPlanRescheduled}, f.routingKeys())
		assert.Equal(t, []uuid.UUID{stored.ID()}, f.mirror.plans)
	})

	t.Run("on track day is not rewritten", func(t *testing.T) {
		f := newFixture(at(8, 0))
		f.seed(t, window("report", domain.PriorityUrgent, at(9, 0), 60))

		result, err := f.rescheduleHandler().Handle(ctx, RescheduleCommand{UserID: f.userID, Date: testDay, Apply: true})

		require.NoError(t, err)
		assert.False(t, result.Applied)
		assert.Equal(t, domain.RescheduleNone, result.Proposal.Type)
		assert.Equal(t, 1, f.reload(t).Version())
		assert.Empty(t, f.mirror.plans)
	})

	t.Run("collapsed momentum simplifies and nudges", func(t *testing.T) {
		f := newFixture(at(10, 0))
		f.seed(t,
			window("standup notes", domain.PriorityMedium, at(8, 0), 20),
			window("expenses", domain.PriorityMedium, at(8, 30), 30),
			window("slides", domain.PriorityLow, at(13, 0), 90),
			window("follow ups", domain.PriorityMedium, at(15, 0), 15),
		)

		result, err := f.rescheduleHandler().Handle(ctx, RescheduleCommand{UserID: f.userID, Date: testDay, Apply: true})

		require.NoError(t, err)
		assert.Equal(t, domain.MomentumCollapsed, result.Evaluation.Momentum.State)
		assert.Equal(t, domain.RescheduleAtRisk, result.Decision.Type)
		assert.Len(t, result.Proposal.Scheduled, 2)
		assert.Len(t, result.Proposal.Deferred, 2)

		require.Len(t, f.notifier.msgs, 1)
		assert.Equal(t, notificationApp.KindIntervention, f.notifier.msgs[0].Kind)
		assert.Equal(t, f.userID, f.notifier.msgs[0].UserID)
	})

	t.Run("missing plan", func(t *testing.T) {
		f := newFixture(at(10, 0))
		_, err := f.rescheduleHandler().Handle(ctx, RescheduleCommand{UserID: f.userID, Date: testDay})
		assert.ErrorIs(t, err, domain.ErrPlanNotFound)
	})

	t.Run("a cancelled caller still gets the rule-based rebuild stored", func(t *testing.T) {
		f := newFixture(at(10, 0))
		seedBehindDay(t, f)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		handler := NewRescheduleHandler(f.store, f.store, f.profiles, nil, f.outbox, f.uow, nil, nil, nil, nil, f.metrics, f.clock())
		result, err := handler.Handle(cancelled, RescheduleCommand{UserID: f.userID, Date: testDay, Apply: true})

		require.NoError(t, err)
		assert.True(t, result.Applied)
		assert.Equal(t, 2, f.reload(t).Version())
	})
}

// seedBehindDay stores a day whose first task ran 20 minutes past its
// window while the second is still ahead.
func seedBehindDay(t *testing.T, f *fixture) (report, review domain.ScheduledTask) {
	t.Helper()
	report = window("report", domain.PriorityUrgent, at(9, 0), 40)
	report.ActualStart = domain.TimePtr(at(9, 0))
	review = window("review", domain.PriorityHigh, at(11, 0), 30)
	f.seed(t, report, review)
	return report, review
}

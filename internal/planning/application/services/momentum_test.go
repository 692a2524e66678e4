package services

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/stretchr/testify/assert"
)

func TestMomentum_TrailingStreak(t *testing.T) {
	now := clock(13, 0)
	early := completedAt(windowTask("early", 1, clock(8, 0), 60), clock(8, 45))
	onTime := completedAt(windowTask("on time", 1, clock(9, 0), 60), clock(10, 0))
	skip1 := windowTask("skip 1", 3, clock(10, 0), 30)
	skip2 := windowTask("skip 2", 3, clock(11, 0), 30)
	later := windowTask("later", 2, clock(15, 0), 30)

	tests := []struct {
		name  string
		tasks []domain.ScheduledTask
		want  domain.MomentumState
	}{
		{"two trailing skips collapse", []domain.ScheduledTask{early, skip1, skip2, later}, domain.MomentumCollapsed},
		{"one trailing skip is weak", []domain.ScheduledTask{onTime, skip2, later}, domain.MomentumWeak},
		{"early completion is strong", []domain.ScheduledTask{skip1, early, later}, domain.MomentumStrong},
		{"on time completion is normal", []domain.ScheduledTask{early, onTime}, domain.MomentumNormal},
		{"nothing resolved is normal", []domain.ScheduledTask{later}, domain.MomentumNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateFor(TrailingStreak(tt.tasks, now)))
		})
	}

	t.Run("started tasks are never skips", func(t *testing.T) {
		started := startedAt(windowTask("started", 2, clock(11, 0), 30), clock(11, 40))
		streak := TrailingStreak([]domain.ScheduledTask{skip1, started}, now)
		assert.Equal(t, 1, streak.Skips)
	})

	t.Run("counts early completions", func(t *testing.T) {
		e2 := completedAt(windowTask("e2", 1, clock(9, 0), 60), clock(9, 30))
		streak := TrailingStreak([]domain.ScheduledTask{onTime, early, e2}, now)
		assert.Equal(t, 2, streak.EarlyCompletions)
	})
}

func TestMomentumTracker_Evaluate(t *testing.T) {
	tracker := NewMomentumTracker(time.UTC)
	now := clock(13, 0)
	skips := []domain.ScheduledTask{
		windowTask("a", 3, clock(9, 0), 30),
		windowTask("b", 3, clock(10, 0), 30),
	}

	m := tracker.Evaluate(skips, now)
	assert.Equal(t, domain.MomentumCollapsed, m.State)
	assert.Equal(t, 2, m.ConsecutiveSkips)
	assert.Equal(t, InterventionSimplify, m.Intervention)
	assert.Equal(t, 0.5, m.Multiplier)

	strong := tracker.Evaluate([]domain.ScheduledTask{
		completedAt(windowTask("a", 1, clock(9, 0), 60), clock(9, 40)),
	}, now)
	assert.Equal(t, InterventionOfferMore, strong.Intervention)
	assert.Equal(t, 1.15, strong.Multiplier)

	weak := tracker.Evaluate(skips[:1], now)
	assert.Equal(t, InterventionNone, weak.Intervention)
}

func TestMomentumTracker_Trends(t *testing.T) {
	tracker := NewMomentumTracker(time.UTC)
	now := clock(20, 0)

	// Morning started, early win followed by a completion, afternoon skipped.
	p1 := buildPlan(t, 100,
		completedAt(startedAt(windowTask("m1", 1, clock(9, 0), 60), clock(9, 0)), clock(9, 40)),
		completedAt(windowTask("m2", 2, clock(10, 0), 60), clock(11, 0)),
		windowTask("pm", 3, clock(14, 0), 60),
	)
	// Morning skipped, afternoon completed.
	p2 := buildPlan(t, 100,
		windowTask("m1", 1, clock(9, 0), 60),
		completedAt(windowTask("pm", 2, clock(14, 0), 60), clock(15, 0)),
	)

	trends := tracker.Trends([]*domain.Plan{p1, p2}, now)
	assert.Equal(t, 50, trends.MorningStartStrength)
	assert.Equal(t, 100, trends.CompletionAfterEarlyWinRate)
	// Morning 2 of 3 (67%), afternoon 1 of 2 (50%).
	assert.Equal(t, 17, trends.AfternoonFalloff)
	assert.Equal(t, 5, trends.Samples)
	assert.Equal(t, domain.ConfidenceLow, trends.Confidence)

	m := tracker.Compute(nil, []*domain.Plan{p1, p2}, now)
	assert.Equal(t, domain.MomentumNormal, m.State, "history never changes today's state")
	assert.Equal(t, 50, m.MorningStartStrength)
}

func TestMomentumTracker_TrendsEmpty(t *testing.T) {
	trends := NewMomentumTracker(nil).Trends(nil, clock(12, 0))
	assert.Equal(t, MomentumTrends{Confidence: domain.ConfidenceLow}, trends)
}

package services

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreSkipRisk(t *testing.T) {
	t.Run("35 minutes behind is 75 percent", func(t *testing.T) {
		r := ScoreSkipRisk(RiskInput{MinutesBehind: 35, Momentum: domain.MomentumNormal, Hour: 10, Priority: domain.PriorityUrgent})
		assert.Equal(t, 75, r.Percentage)
		assert.Equal(t, domain.RiskHigh, r.Level)
		assert.True(t, r.SuggestIntervention)
	})

	t.Run("one skip is 60 percent", func(t *testing.T) {
		r := ScoreSkipRisk(RiskInput{TasksSkipped: 1, Momentum: domain.MomentumNormal, Hour: 10, Priority: domain.PriorityUrgent})
		assert.Equal(t, 60, r.Percentage)
		assert.Equal(t, domain.RiskHigh, r.Level)
	})

	t.Run("neutral input is the baseline", func(t *testing.T) {
		r := ScoreSkipRisk(RiskInput{Momentum: domain.MomentumNormal, Hour: 9, Priority: domain.PriorityUrgent})
		assert.Equal(t, 20, r.Percentage)
		assert.Equal(t, domain.RiskLow, r.Level)
		assert.False(t, r.SuggestIntervention)
		assert.Empty(t, r.Factors)
	})

	t.Run("strong momentum lowers risk", func(t *testing.T) {
		r := ScoreSkipRisk(RiskInput{Momentum: domain.MomentumStrong, Hour: 9, Priority: domain.PriorityUrgent})
		assert.Equal(t, 10, r.Percentage)
	})

	t.Run("delay bands", func(t *testing.T) {
		for behind, want := range map[int]int{-20: 20, 0: 20, 1: 35, 14: 35, 15: 50, 30: 50, 31: 75} {
			r := ScoreSkipRisk(RiskInput{MinutesBehind: behind, Priority: domain.PriorityUrgent})
			assert.Equal(t, want, r.Percentage, "behind=%d", behind)
		}
	})

	t.Run("afternoon after an overrun morning", func(t *testing.T) {
		r := ScoreSkipRisk(RiskInput{Hour: 15, MorningOverran: true, Priority: domain.PriorityHigh})
		assert.Equal(t, 45, r.Percentage)
		assert.Equal(t, domain.RiskMedium, r.Level)
		assert.True(t, r.SuggestIntervention)

		r = ScoreSkipRisk(RiskInput{Hour: 16, Priority: domain.PriorityHigh})
		assert.Equal(t, 35, r.Percentage)
	})

	t.Run("clamped and explained in descending order", func(t *testing.T) {
		r := ScoreSkipRisk(RiskInput{
			MinutesBehind: 45,
			TasksSkipped:  3,
			Momentum:      domain.MomentumCollapsed,
			Hour:          16,
			Priority:      domain.PriorityLow,
		})
		assert.Equal(t, 100, r.Percentage)
		require.Len(t, r.Factors, 5)
		for i := 1; i < len(r.Factors); i++ {
			assert.GreaterOrEqual(t, r.Factors[i-1].Points, r.Factors[i].Points)
		}
		assert.Equal(t, "schedule_delay", r.Factors[0].Name)
		assert.Contains(t, r.Reasoning, "45 min behind schedule")
		assert.Contains(t, r.Reasoning, "momentum has collapsed")
		assert.Contains(t, r.Reasoning, "priority 4 task")
	})

	t.Run("negative factor is listed last", func(t *testing.T) {
		r := ScoreSkipRisk(RiskInput{MinutesBehind: 20, Momentum: domain.MomentumStrong, Priority: domain.PriorityMedium})
		require.Len(t, r.Factors, 3)
		assert.Equal(t, "momentum", r.Factors[2].Name)
		assert.Equal(t, 55, r.Percentage)
	})
}

func TestAssessPlanRisk(t *testing.T) {
	now := clock(13, 0)
	overrun := completedAt(windowTask("standup", 1, clock(9, 0), 30), clock(9, 50))
	skipped := windowTask("inbox", 3, clock(10, 0), 30)
	afternoon := windowTask("review", 2, clock(15, 0), 60)
	tasks := []domain.ScheduledTask{overrun, skipped, afternoon}

	assert.True(t, MorningOverran(tasks, time.UTC))

	risk := AssessPlanRisk(tasks, -20, domain.MomentumWeak, now, time.UTC)
	require.Len(t, risk.Tasks, 2, "completed tasks are not scored")

	// 20 base +30 delay +40 one skip +20 weak +20 overrun afternoon +5 priority 2.
	assert.Equal(t, 100, risk.Tasks[afternoon.TaskID].Percentage)
	assert.Equal(t, domain.RiskHigh, risk.Highest.Level)

	// The skipped task is scored at the current hour: 20+30+40+20+15 = 125.
	assert.Equal(t, 100, risk.Tasks[skipped.TaskID].Percentage)
	assert.Equal(t, skipped.TaskID, risk.TaskID, "ties keep the earliest task")
}

func TestAssessPlanRisk_NothingRemaining(t *testing.T) {
	done := completedAt(windowTask("a", 1, clock(9, 0), 30), clock(9, 20))
	risk := AssessPlanRisk([]domain.ScheduledTask{done}, 10, domain.MomentumStrong, clock(10, 0), nil)
	assert.Empty(t, risk.Tasks)
	assert.Equal(t, domain.RiskLow, risk.Highest.Level)
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/felixgeelhaar/tempo/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type advisorFunc func(ctx context.Context, req AdvisoryRequest) (*AdvisoryResponse, error)

func (f advisorFunc) Suggest(ctx context.Context, req AdvisoryRequest) (*AdvisoryResponse, error) {
	return f(ctx, req)
}

func engineInput(plan *domain.Plan, now time.Time) RescheduleInput {
	tasks := plan.Tasks()
	progress := TrackProgress(tasks, now)
	momentum := NewMomentumTracker(time.UTC).Evaluate(tasks, now)
	return RescheduleInput{
		Plan:     plan,
		Now:      now,
		Location: time.UTC,
		Progress: progress,
		Momentum: momentum,
		Risk:     AssessPlanRisk(tasks, progress.MinutesAheadBehind, momentum.State, now, time.UTC),
		Buffer:   NeutralBufferProfile(),
	}
}

func partition(p domain.RescheduleProposal) (scheduled, deferred []uuid.UUID) {
	for _, w := range p.Scheduled {
		scheduled = append(scheduled, w.TaskID)
	}
	for _, d := range p.Deferred {
		deferred = append(deferred, d.TaskID)
	}
	return scheduled, deferred
}

func TestRescheduleEngine_Decide(t *testing.T) {
	engine := NewRescheduleEngine(DefaultRescheduleConfig(), nil, nil, nil)
	plan := buildPlan(t, 100,
		windowTask("deep work", domain.PriorityUrgent, clock(14, 0), 60),
		windowTask("admin", domain.PriorityMedium, clock(15, 30), 30),
	)

	tests := []struct {
		name      string
		ahead     int
		momentum  domain.MomentumState
		risk      domain.RiskLevel
		requested bool
		want      domain.RescheduleType
	}{
		{"collapsed momentum", 60, domain.MomentumCollapsed, domain.RiskLow, false, domain.RescheduleAtRisk},
		{"intervention requested", 0, domain.MomentumNormal, domain.RiskLow, true, domain.RescheduleAtRisk},
		{"ahead with strong momentum", 40, domain.MomentumStrong, domain.RiskLow, false, domain.RescheduleAhead},
		{"ahead without strong momentum", 40, domain.MomentumNormal, domain.RiskLow, false, domain.RescheduleNone},
		{"exactly at ahead threshold", 30, domain.MomentumStrong, domain.RiskLow, false, domain.RescheduleNone},
		{"far behind", -35, domain.MomentumNormal, domain.RiskLow, false, domain.RescheduleAtRisk},
		{"high skip risk", 0, domain.MomentumNormal, domain.RiskHigh, false, domain.RescheduleAtRisk},
		{"at rescue threshold is behind", -30, domain.MomentumNormal, domain.RiskLow, false, domain.RescheduleBehind},
		{"behind", -20, domain.MomentumWeak, domain.RiskMedium, false, domain.RescheduleBehind},
		{"at behind threshold", -15, domain.MomentumNormal, domain.RiskLow, false, domain.RescheduleNone},
		{"on track", -5, domain.MomentumNormal, domain.RiskLow, false, domain.RescheduleNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := RescheduleInput{
				Plan:                  plan,
				Now:                   clock(10, 0),
				Location:              time.UTC,
				Progress:              ProgressSnapshot{MinutesAheadBehind: tt.ahead},
				Momentum:              MomentumMetrics{State: tt.momentum},
				Risk:                  PlanRisk{Highest: RiskResult{Level: tt.risk}},
				InterventionRequested: tt.requested,
			}
			d := engine.Decide(in)
			assert.Equal(t, tt.want, d.Type)
			assert.NotEmpty(t, d.Reason)
			assert.False(t, d.CapacityExceeded)
			assert.Equal(t, 60, d.ProtectedRequired)
		})
	}
}

func TestRescheduleEngine_BehindRebuild(t *testing.T) {
	p1 := windowTask("p1", domain.PriorityUrgent, clock(9, 0), 60)
	p3 := windowTask("p3", domain.PriorityMedium, clock(11, 0), 30)
	p4 := windowTask("p4", domain.PriorityLow, clock(12, 0), 30)
	p2 := windowTask("p2", domain.PriorityHigh, clock(13, 0), 45)
	plan := buildPlan(t, 100, p1, p3, p4, p2)

	now := clock(10, 20)
	in := engineInput(plan, now)
	in.Momentum = MomentumMetrics{State: domain.MomentumNormal}
	in.Risk = PlanRisk{Highest: RiskResult{Level: domain.RiskLow}}
	require.Equal(t, -20, in.Progress.MinutesAheadBehind)

	metrics := observability.NewInMemoryMetrics()
	engine := NewRescheduleEngine(DefaultRescheduleConfig(), nil, nil, metrics)
	proposal, decision := engine.Propose(context.Background(), in)

	assert.Equal(t, domain.RescheduleBehind, decision.Type)
	assert.Equal(t, domain.SourceRules, proposal.Source)
	assert.False(t, proposal.Rescue)
	assert.Contains(t, proposal.Justification, RuleBasedNote)
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricRescheduleDecisions, observability.T("type", "behind")))

	scheduled, deferred := partition(proposal)
	assert.Equal(t, []uuid.UUID{p1.TaskID, p2.TaskID, p3.TaskID, p4.TaskID}, scheduled, "protected first by priority, then original order")
	assert.Empty(t, deferred)

	first := proposal.Scheduled[0]
	assert.Equal(t, clock(10, 35), first.Start, "starts 15 minutes from now")
	assert.Equal(t, clock(11, 35), first.End)
	assert.Equal(t, clock(11, 50), proposal.Scheduled[1].Start, "15 minute buffer between tasks")
	for _, w := range proposal.Scheduled {
		assert.NotEmpty(t, w.Reason)
	}

	t.Run("idempotent partition", func(t *testing.T) {
		again, _ := engine.Propose(context.Background(), in)
		s1, d1 := partition(proposal)
		s2, d2 := partition(again)
		assert.Equal(t, s1, s2)
		assert.Equal(t, d1, d2)
	})

	t.Run("applies to the plan", func(t *testing.T) {
		require.NoError(t, plan.ApplyReschedule(proposal, now))
		assert.LessOrEqual(t, plan.ScheduledMinutes(), plan.AvailableMinutes())
	})
}

func TestRescheduleEngine_GreedyDefersWhatDoesNotFit(t *testing.T) {
	p1 := windowTask("p1", domain.PriorityUrgent, clock(13, 0), 60)
	big := windowTask("big", domain.PriorityMedium, clock(14, 15), 120)
	small := windowTask("small", domain.PriorityLow, clock(16, 30), 20)
	plan := buildPlan(t, 100, p1, big, small)

	in := engineInput(plan, clock(14, 0))
	in.Progress.MinutesAheadBehind = -20
	engine := NewRescheduleEngine(DefaultRescheduleConfig(), nil, nil, nil)

	proposal := engine.RuleBased(in, engine.Decide(in))
	scheduled, deferred := partition(proposal)
	// 14:15-15:15 p1, big would end at 17:30, small fits 15:30-15:50.
	assert.Equal(t, []uuid.UUID{p1.TaskID, small.TaskID}, scheduled)
	assert.Equal(t, []uuid.UUID{big.TaskID}, deferred)
	assert.Equal(t, domain.DeferReasonNoTime, proposal.Deferred[0].Reason)
}

func TestRescheduleEngine_RescueWhenCapacityExceeded(t *testing.T) {
	p1 := windowTask("p1", domain.PriorityUrgent, clock(9, 0), 60)
	p4 := windowTask("p4", domain.PriorityLow, clock(10, 15), 60)
	p3 := windowTask("p3", domain.PriorityMedium, clock(11, 30), 15)
	parked := domain.ScheduledTask{
		TaskID: uuid.New(), Title: "p2", Priority: domain.PriorityHigh,
		OriginalMinutes: 90, AdjustedMinutes: 90,
		Justification: DeferReasonCapacity, DeferredReason: DeferReasonCapacity,
	}
	plan := buildPlan(t, 30, p1, p4, p3, parked)
	require.NoError(t, plan.CompleteTask(p4.TaskID, clock(11, 0), 45))

	now := clock(11, 0)
	in := engineInput(plan, now)
	engine := NewRescheduleEngine(DefaultRescheduleConfig(), nil, nil, nil)
	proposal, decision := engine.Propose(context.Background(), in)

	assert.True(t, decision.CapacityExceeded)
	assert.Equal(t, 150, decision.ProtectedRequired)
	assert.Equal(t, 84, decision.RemainingBudget)
	assert.Equal(t, domain.RescheduleAtRisk, decision.Type)

	scheduled, deferred := partition(proposal)
	assert.Equal(t, []uuid.UUID{p1.TaskID, parked.TaskID}, scheduled)
	assert.Equal(t, []uuid.UUID{p3.TaskID}, deferred)
	assert.Equal(t, domain.DeferReasonNoTime, proposal.Deferred[0].Reason)
	assert.True(t, proposal.Rescue)
	assert.Contains(t, proposal.Justification, "rescue mode")
	assert.Contains(t, proposal.Justification, RuleBasedNote)

	require.NoError(t, plan.ApplyReschedule(proposal, now))
	assert.True(t, plan.Rescue())
}

func TestRescheduleEngine_AtRiskWithTimeLeftPacksGreedily(t *testing.T) {
	p1 := startedAt(windowTask("p1", domain.PriorityUrgent, clock(9, 0), 60), clock(9, 0))
	p3 := windowTask("p3", domain.PriorityMedium, clock(11, 0), 30)
	p4 := windowTask("p4", domain.PriorityLow, clock(11, 45), 30)
	plan := buildPlan(t, 100, p1, p3, p4)

	in := engineInput(plan, clock(10, 45))
	in.Momentum = MomentumMetrics{State: domain.MomentumNormal}
	in.Risk = PlanRisk{Highest: RiskResult{Level: domain.RiskLow}}
	require.Equal(t, -45, in.Progress.MinutesAheadBehind)

	engine := NewRescheduleEngine(DefaultRescheduleConfig(), nil, nil, nil)
	proposal, decision := engine.Propose(context.Background(), in)

	assert.Equal(t, domain.RescheduleAtRisk, decision.Type)
	assert.False(t, decision.CapacityExceeded)
	scheduled, deferred := partition(proposal)
	assert.Equal(t, []uuid.UUID{p3.TaskID, p4.TaskID}, scheduled)
	assert.Empty(t, deferred)
	assert.False(t, proposal.Rescue)
	assert.Equal(t, clock(11, 0), proposal.Scheduled[0].Start)
}

func TestRescheduleEngine_MomentumScalesRemainingBudget(t *testing.T) {
	p1 := windowTask("p1", domain.PriorityUrgent, clock(9, 0), 60)
	d1 := windowTask("d1", domain.PriorityMedium, clock(10, 15), 120)
	d2 := windowTask("d2", domain.PriorityMedium, clock(12, 30), 120)
	d3 := windowTask("d3", domain.PriorityLow, clock(14, 45), 120)
	plan := buildPlan(t, 100, p1, d1, d2, d3)
	engine := NewRescheduleEngine(DefaultRescheduleConfig(), nil, nil, nil)

	tests := []struct {
		name       string
		state      domain.MomentumState
		multiplier float64
		available  int
		deferred   []uuid.UUID
	}{
		{"strong does not inflate", domain.MomentumStrong, 1.0, 480, nil},
		{"normal", domain.MomentumNormal, 1.0, 480, nil},
		{"weak", domain.MomentumWeak, 0.8, 384, []uuid.UUID{d3.TaskID}},
		{"collapsed", domain.MomentumCollapsed, 0.5, 240, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := engineInput(plan, clock(8, 0))
			in.Progress.MinutesAheadBehind = -20
			in.Momentum = MomentumMetrics{State: tt.state}
			in.Risk = PlanRisk{Highest: RiskResult{Level: domain.RiskLow}}

			d := engine.Decide(in)
			assert.Equal(t, 480, d.RemainingBudget)
			assert.Equal(t, tt.multiplier, d.MomentumMultiplier)
			assert.Equal(t, tt.available, d.RemainingAvailable)

			proposal := engine.RuleBased(in, d)
			used := 0
			for _, w := range proposal.Scheduled {
				used += w.AdjustedMinutes
			}
			assert.LessOrEqual(t, used, tt.available)
			if tt.state == domain.MomentumCollapsed {
				assert.Len(t, proposal.Scheduled, maxRecoveryWins)
				return
			}
			_, deferred := partition(proposal)
			assert.Equal(t, tt.deferred, deferred)
		})
	}
}

func TestRescheduleEngine_StartsAfterRunningTask(t *testing.T) {
	running := startedAt(windowTask("running", domain.PriorityUrgent, clock(10, 0), 60), clock(10, 5))
	missed := windowTask("missed", domain.PriorityMedium, clock(9, 0), 30)
	later := windowTask("later", domain.PriorityLow, clock(13, 0), 30)
	plan := buildPlan(t, 100, missed, running, later)

	now := clock(10, 20)
	in := engineInput(plan, now)
	in.Momentum = MomentumMetrics{State: domain.MomentumNormal}
	in.Risk = PlanRisk{Highest: RiskResult{Level: domain.RiskLow}}

	engine := NewRescheduleEngine(DefaultRescheduleConfig(), nil, nil, nil)
	proposal, decision := engine.Propose(context.Background(), in)
	require.NotEqual(t, domain.RescheduleNone, decision.Type)

	scheduled, _ := partition(proposal)
	assert.Equal(t, []uuid.UUID{missed.TaskID, later.TaskID}, scheduled)
	assert.Equal(t, clock(11, 15), proposal.Scheduled[0].Start, "after the running window plus the buffer")
	assert.Equal(t, 345, decision.MinutesUntilEnd, "11:15 to the end of the workday")
	require.NoError(t, plan.ApplyReschedule(proposal, now))
}

func TestRescheduleEngine_SimplifyOnCollapse(t *testing.T) {
	s1 := windowTask("s1", domain.PriorityMedium, clock(9, 0), 30)
	s2 := windowTask("s2", domain.PriorityMedium, clock(9, 45), 30)
	p1 := windowTask("p1", domain.PriorityUrgent, clock(13, 0), 60)
	p4 := windowTask("p4", domain.PriorityLow, clock(15, 0), 15)
	plan := buildPlan(t, 100, s1, s2, p1, p4)

	in := engineInput(plan, clock(11, 0))
	require.Equal(t, domain.MomentumCollapsed, in.Momentum.State)

	engine := NewRescheduleEngine(DefaultRescheduleConfig(), nil, nil, nil)
	proposal, decision := engine.Propose(context.Background(), in)

	assert.Equal(t, domain.RescheduleAtRisk, decision.Type)
	scheduled, deferred := partition(proposal)
	assert.Equal(t, []uuid.UUID{p1.TaskID, p4.TaskID}, scheduled, "protected first, then the shortest task")
	assert.ElementsMatch(t, []uuid.UUID{s1.TaskID, s2.TaskID}, deferred)
}

func TestRescheduleEngine_None(t *testing.T) {
	plan := buildPlan(t, 100, windowTask("later", domain.PriorityUrgent, clock(14, 0), 60))
	engine := NewRescheduleEngine(DefaultRescheduleConfig(), advisorFunc(func(context.Context, AdvisoryRequest) (*AdvisoryResponse, error) {
		t.Fatal("advisor must not be called when nothing changes")
		return nil, nil
	}), nil, nil)

	proposal, decision := engine.Propose(context.Background(), engineInput(plan, clock(9, 0)))
	assert.Equal(t, domain.RescheduleNone, decision.Type)
	assert.Empty(t, proposal.Scheduled)
	assert.NotEmpty(t, proposal.Justification)
}

func TestRescheduleEngine_Advisory(t *testing.T) {
	p1 := windowTask("p1", domain.PriorityUrgent, clock(9, 0), 60)
	p3 := windowTask("p3", domain.PriorityMedium, clock(11, 0), 30)
	p2 := windowTask("p2", domain.PriorityHigh, clock(13, 0), 45)
	newInput := func(t *testing.T) RescheduleInput {
		in := engineInput(buildPlan(t, 100, p1, p3, p2), clock(10, 20))
		in.Momentum = MomentumMetrics{State: domain.MomentumNormal}
		in.Risk = PlanRisk{Highest: RiskResult{Level: domain.RiskLow}}
		return in
	}
	valid := func(_ context.Context, req AdvisoryRequest) (*AdvisoryResponse, error) {
		return &AdvisoryResponse{
			ScheduledTasks: []AdvisorySlot{
				{TaskID: p2.TaskID.String(), Start: "2026-03-02T10:35:00Z", End: "2026-03-02T11:20:00Z", AdjustedMinutes: 45, Reason: "quick protected win"},
				{TaskID: p1.TaskID.String(), Start: "2026-03-02T11:35:00Z", End: "2026-03-02T12:35:00Z", AdjustedMinutes: 60},
			},
			SkippedTaskIDs:   []string{p3.TaskID.String()},
			OverallReasoning: "start with the shorter protected task",
		}, nil
	}

	t.Run("uses a valid suggestion", func(t *testing.T) {
		var got AdvisoryRequest
		engine := NewRescheduleEngine(DefaultRescheduleConfig(), advisorFunc(func(ctx context.Context, req AdvisoryRequest) (*AdvisoryResponse, error) {
			got = req
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			return valid(ctx, req)
		}), nil, nil)

		proposal, _ := engine.Propose(context.Background(), newInput(t))
		assert.Equal(t, domain.SourceAdvisory, proposal.Source)
		assert.NotContains(t, proposal.Justification, RuleBasedNote)
		assert.Contains(t, proposal.Justification, "shorter protected task")
		assert.Equal(t, defaultAdvisoryReason, proposal.Scheduled[1].Reason)
		assert.Len(t, got.Tasks, 3)
		assert.Equal(t, "behind", got.RescheduleType)
		assert.Equal(t, clock(10, 35), got.EarliestStart)
	})

	fallbacks := map[string]Advisor{
		"error": advisorFunc(func(context.Context, AdvisoryRequest) (*AdvisoryResponse, error) {
			return nil, errors.New("model unavailable")
		}),
		"malformed": advisorFunc(func(context.Context, AdvisoryRequest) (*AdvisoryResponse, error) {
			return &AdvisoryResponse{ScheduledTasks: []AdvisorySlot{{TaskID: "nope"}}, OverallReasoning: "x"}, nil
		}),
		"timeout": advisorFunc(func(ctx context.Context, _ AdvisoryRequest) (*AdvisoryResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	}
	for name, advisor := range fallbacks {
		t.Run("falls back on "+name, func(t *testing.T) {
			cfg := DefaultRescheduleConfig()
			cfg.AdvisoryTimeout = 20 * time.Millisecond
			metrics := observability.NewInMemoryMetrics()
			engine := NewRescheduleEngine(cfg, advisor, nil, metrics)

			proposal, _ := engine.Propose(context.Background(), newInput(t))
			assert.Equal(t, domain.SourceRules, proposal.Source)
			assert.Contains(t, proposal.Justification, RuleBasedNote)
			assert.Len(t, proposal.Scheduled, 3)
			assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricRescheduleFallbacks))
		})
	}

	t.Run("falls back when the caller cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		engine := NewRescheduleEngine(DefaultRescheduleConfig(), advisorFunc(func(ctx context.Context, _ AdvisoryRequest) (*AdvisoryResponse, error) {
			return nil, ctx.Err()
		}), nil, nil)

		proposal, _ := engine.Propose(ctx, newInput(t))
		assert.Equal(t, domain.SourceRules, proposal.Source)
		assert.NotEmpty(t, proposal.Scheduled)
	})
}

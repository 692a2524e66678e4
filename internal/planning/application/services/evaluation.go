package services

import (
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
)

// DayEvaluation is the derived state of today's plan at one instant.
type DayEvaluation struct {
	Progress ProgressSnapshot `json:"progress"`
	Momentum MomentumMetrics  `json:"momentum"`
	Risk     PlanRisk         `json:"risk"`
}

// EvaluateDay derives progress, momentum and skip risk. history supplies
// the trend aggregates and may be empty.
func EvaluateDay(plan *domain.Plan, history []*domain.Plan, now time.Time, loc *time.Location) DayEvaluation {
	tasks := plan.Tasks()
	progress := TrackProgress(tasks, now)
	momentum := NewMomentumTracker(loc).Compute(tasks, history, now)
	return DayEvaluation{
		Progress: progress,
		Momentum: momentum,
		Risk:     AssessPlanRisk(tasks, progress.MinutesAheadBehind, momentum.State, now, loc),
	}
}

// RescheduleInput assembles the engine input from an evaluation.
func (e DayEvaluation) RescheduleInput(plan *domain.Plan, profile LearnedProfile, now time.Time, loc *time.Location) RescheduleInput {
	return RescheduleInput{
		Plan:     plan,
		Now:      now,
		Location: loc,
		Progress: e.Progress,
		Momentum: e.Momentum,
		Risk:     e.Risk,
		Buffer:   profile.Buffer,
		Windows:  profile.Windows,
	}
}

package services

import (
	"math"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
)

// DefaultMomentumDays is the trailing window of the historical aggregates.
const DefaultMomentumDays = 7

// Intervention is what momentum asks of the rest of the day.
type Intervention string

const (
	InterventionNone      Intervention = "none"
	InterventionSimplify  Intervention = "simplify"
	InterventionOfferMore Intervention = "offer_more"
)

// MomentumMetrics is recomputed on every progress query from task history.
type MomentumMetrics struct {
	State                       domain.MomentumState `json:"state"`
	ConsecutiveSkips            int                  `json:"consecutive_skips"`
	ConsecutiveEarlyCompletions int                  `json:"consecutive_early_completions"`
	MorningStartStrength        int                  `json:"morning_start_strength"`
	CompletionAfterEarlyWinRate int                  `json:"completion_after_early_win_rate"`
	AfternoonFalloff            int                  `json:"afternoon_falloff"`
	Confidence                  domain.Confidence    `json:"confidence"`
	HistorySamples              int                  `json:"history_samples"`
	Intervention                Intervention         `json:"intervention"`
	Multiplier                  float64              `json:"multiplier"`
}

// Streak is the trailing run of resolved tasks for today.
type Streak struct {
	Skips            int
	EarlyCompletions int
}

// TrailingStreak scans today's tasks backward from the most recent
// resolved one. Tasks that are neither completed nor skipped are not part
// of the sequence.
func TrailingStreak(tasks []domain.ScheduledTask, now time.Time) Streak {
	var s Streak
	for i := len(tasks) - 1; i >= 0; i-- {
		t := tasks[i]
		switch t.Status(now) {
		case domain.StatusSkipped:
			if s.EarlyCompletions > 0 {
				return s
			}
			s.Skips++
		case domain.StatusCompleted:
			if s.Skips > 0 || !t.FinishedEarly() {
				return s
			}
			s.EarlyCompletions++
		}
	}
	return s
}

// StateFor maps a streak to its momentum state.
func StateFor(s Streak) domain.MomentumState {
	switch {
	case s.Skips >= 2:
		return domain.MomentumCollapsed
	case s.Skips == 1:
		return domain.MomentumWeak
	case s.EarlyCompletions >= 1:
		return domain.MomentumStrong
	default:
		return domain.MomentumNormal
	}
}

// InterventionFor is always simplify for collapsed momentum and an offer
// of more work for strong momentum.
func InterventionFor(state domain.MomentumState) Intervention {
	switch state {
	case domain.MomentumCollapsed:
		return InterventionSimplify
	case domain.MomentumStrong:
		return InterventionOfferMore
	default:
		return InterventionNone
	}
}

// MomentumTracker derives momentum for today and the advisory aggregates
// from recent days.
type MomentumTracker struct {
	location *time.Location
}

func NewMomentumTracker(loc *time.Location) *MomentumTracker {
	if loc == nil {
		loc = time.UTC
	}
	return &MomentumTracker{location: loc}
}

// Evaluate returns today's state only.
func (m *MomentumTracker) Evaluate(today []domain.ScheduledTask, now time.Time) MomentumMetrics {
	streak := TrailingStreak(today, now)
	state := StateFor(streak)
	return MomentumMetrics{
		State:                       state,
		ConsecutiveSkips:            streak.Skips,
		ConsecutiveEarlyCompletions: streak.EarlyCompletions,
		Confidence:                  domain.ConfidenceLow,
		Intervention:                InterventionFor(state),
		Multiplier:                  state.Multiplier(),
	}
}

// Compute adds the trailing aggregates from history. History never
// changes today's state.
func (m *MomentumTracker) Compute(today []domain.ScheduledTask, history []*domain.Plan, now time.Time) MomentumMetrics {
	metrics := m.Evaluate(today, now)
	trends := m.Trends(history, now)
	metrics.MorningStartStrength = trends.MorningStartStrength
	metrics.CompletionAfterEarlyWinRate = trends.CompletionAfterEarlyWinRate
	metrics.AfternoonFalloff = trends.AfternoonFalloff
	metrics.Confidence = trends.Confidence
	metrics.HistorySamples = trends.Samples
	return metrics
}

// MomentumTrends are the 0-100 aggregates over recent plans.
type MomentumTrends struct {
	MorningStartStrength        int               `json:"morning_start_strength"`
	CompletionAfterEarlyWinRate int               `json:"completion_after_early_win_rate"`
	AfternoonFalloff            int               `json:"afternoon_falloff"`
	Confidence                  domain.Confidence `json:"confidence"`
	Samples                     int               `json:"samples"`
}

// Trends computes:
//   - morning start strength: share of days whose first morning task was
//     started or completed;
//   - completion after early win: share of tasks completed right after an
//     early completion;
//   - afternoon falloff: morning completion rate minus afternoon rate.
func (m *MomentumTracker) Trends(history []*domain.Plan, now time.Time) MomentumTrends {
	var (
		morningDays, strongMornings int
		afterWin, afterWinDone      int
		amTotal, amDone             int
		pmTotal, pmDone             int
		samples                     int
	)

	for _, plan := range history {
		resolved := make([]domain.ScheduledTask, 0, plan.TaskCount())
		firstMorningSeen := false
		for _, t := range plan.Tasks() {
			if t.ScheduledStart == nil {
				continue
			}
			hour := t.ScheduledStart.In(m.location).Hour()
			status := t.Status(now)

			if hour < 12 && !firstMorningSeen {
				firstMorningSeen = true
				morningDays++
				if t.Completed || t.ActualStart != nil {
					strongMornings++
				}
			}

			if status != domain.StatusCompleted && status != domain.StatusSkipped {
				continue
			}
			samples++
			done := status == domain.StatusCompleted
			if hour < 12 {
				amTotal++
				if done {
					amDone++
				}
			} else {
				pmTotal++
				if done {
					pmDone++
				}
			}
			resolved = append(resolved, t)
		}

		for i := 1; i < len(resolved); i++ {
			if resolved[i-1].FinishedEarly() {
				afterWin++
				if resolved[i].Completed {
					afterWinDone++
				}
			}
		}
	}

	falloff := percent(amDone, amTotal) - percent(pmDone, pmTotal)
	if amTotal == 0 || pmTotal == 0 {
		falloff = 0
	}
	return MomentumTrends{
		MorningStartStrength:        percent(strongMornings, morningDays),
		CompletionAfterEarlyWinRate: percent(afterWinDone, afterWin),
		AfternoonFalloff:            max(falloff, 0),
		Confidence:                  domain.ConfidenceFor(samples, 10, 30),
		Samples:                     samples,
	}
}

func percent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(whole)))
}

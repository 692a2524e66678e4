package services

import (
	"math"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/google/uuid"
)

// ProgressTotals counts tasks by derived status. Upcoming covers every task
// not started, not skipped and not completed.
type ProgressTotals struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Skipped    int `json:"skipped"`
	InProgress int `json:"in_progress"`
	Upcoming   int `json:"upcoming"`
}

// ProgressSnapshot is a read-only view derived from the plan.
type ProgressSnapshot struct {
	Totals               ProgressTotals                  `json:"totals"`
	MinutesAheadBehind   int                             `json:"minutes_ahead_behind"`
	CurrentTask          *domain.ScheduledTask           `json:"current_task,omitempty"`
	NextTask             *domain.ScheduledTask           `json:"next_task,omitempty"`
	Momentum             domain.MomentumState            `json:"momentum"`
	CompletionPercentage int                             `json:"completion_percentage"`
	Statuses             map[uuid.UUID]domain.TaskStatus `json:"statuses"`
}

// MinutesAheadBehind sums, over elapsed or completed windows, the minutes
// finished early (positive) and the minutes overdue (negative).
func MinutesAheadBehind(tasks []domain.ScheduledTask, now time.Time) int {
	var delta time.Duration
	for _, t := range tasks {
		if t.ScheduledEnd == nil {
			continue
		}
		switch {
		case t.Completed && t.ActualEnd != nil:
			delta += t.ScheduledEnd.Sub(*t.ActualEnd)
		case !t.Completed && now.After(*t.ScheduledEnd):
			delta -= now.Sub(*t.ScheduledEnd)
		}
	}
	return int(math.Round(delta.Minutes()))
}

// TrackProgress builds the snapshot for tasks ordered by scheduled start.
func TrackProgress(tasks []domain.ScheduledTask, now time.Time) ProgressSnapshot {
	snap := ProgressSnapshot{
		MinutesAheadBehind: MinutesAheadBehind(tasks, now),
		Momentum:           StateFor(TrailingStreak(tasks, now)),
		Statuses:           make(map[uuid.UUID]domain.TaskStatus, len(tasks)),
	}
	snap.Totals.Total = len(tasks)

	for i := range tasks {
		t := tasks[i]
		status := t.Status(now)
		snap.Statuses[t.TaskID] = status

		switch status {
		case domain.StatusCompleted:
			snap.Totals.Completed++
		case domain.StatusSkipped:
			snap.Totals.Skipped++
		case domain.StatusInProgress:
			snap.Totals.InProgress++
			if snap.CurrentTask == nil {
				snap.CurrentTask = &t
			}
		default:
			snap.Totals.Upcoming++
		}

		if snap.NextTask == nil && !t.Completed && t.ActualStart == nil &&
			(t.ScheduledStart == nil || t.ScheduledStart.After(now)) {
			snap.NextTask = &t
		}
	}

	if snap.Totals.Total > 0 {
		snap.CompletionPercentage = percent(snap.Totals.Completed, snap.Totals.Total)
	}
	return snap
}

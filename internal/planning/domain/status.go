package domain

import "time"

// TaskStatus is derived, never stored.
type TaskStatus string

const (
	StatusCompleted   TaskStatus = "completed"
	StatusInProgress  TaskStatus = "in_progress"
	StatusSkipped     TaskStatus = "skipped"
	StatusPending     TaskStatus = "pending"
	StatusUpcoming    TaskStatus = "upcoming"
	StatusUnscheduled TaskStatus = "unscheduled"
)

// TaskSnapshot holds the only fields status depends on.
type TaskSnapshot struct {
	Completed      bool
	ActualStart    *time.Time
	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
}

// DeriveStatus is the single place task status and skips are decided.
// A skip is a task that is not completed, whose scheduled end has passed
// and that was never started.
func DeriveStatus(s TaskSnapshot, now time.Time) TaskStatus {
	switch {
	case s.Completed:
		return StatusCompleted
	case s.ActualStart != nil:
		return StatusInProgress
	case s.ScheduledStart == nil || s.ScheduledEnd == nil:
		return StatusUnscheduled
	case now.After(*s.ScheduledEnd):
		return StatusSkipped
	case !now.Before(*s.ScheduledStart):
		return StatusPending
	default:
		return StatusUpcoming
	}
}

// IsRemaining reports whether a reschedule may still move the task.
func (s TaskStatus) IsRemaining() bool {
	switch s {
	case StatusSkipped, StatusPending, StatusUpcoming, StatusUnscheduled:
		return true
	}
	return false
}

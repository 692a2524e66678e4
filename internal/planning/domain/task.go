package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskToSchedule is the immutable input to plan construction.
type TaskToSchedule struct {
	ID               uuid.UUID
	ExternalID       string
	Title            string
	Priority         Priority
	EstimatedMinutes int
	DueDate          *time.Time
	Project          string
}

// Validate rejects tasks the scheduler cannot place.
func (t TaskToSchedule) Validate() error {
	if t.ID == uuid.Nil {
		return NewValidationError(CodeMissingIdentifier, "task %q has no id", t.Title)
	}
	if strings.TrimSpace(t.Title) == "" {
		return NewValidationError(CodeMissingIdentifier, "task %s has no title", t.ID)
	}
	if !t.Priority.IsValid() {
		return NewValidationError(CodeInvalidPriority, "task %q: priority must be between 1 and 4, got %d", t.Title, t.Priority)
	}
	if t.EstimatedMinutes <= 0 {
		return NewValidationError(CodeInvalidEstimate, "task %q: estimated minutes must be positive, got %d", t.Title, t.EstimatedMinutes)
	}
	return nil
}

// ScheduledTask is one task inside a plan. Only the Plan aggregate mutates it.
type ScheduledTask struct {
	TaskID          uuid.UUID
	ExternalID      string
	Title           string
	Priority        Priority
	Project         string
	DueDate         *time.Time
	ScheduledStart  *time.Time
	ScheduledEnd    *time.Time
	OriginalMinutes int
	AdjustedMinutes int
	Justification   string
	SkipRisk        *SkipRisk
	MomentumState   *MomentumState
	ActualStart     *time.Time
	ActualEnd       *time.Time
	ActualMinutes   int
	Completed       bool
	DeferredReason  string
}

// IsScheduled reports whether the task has a window today.
func (t ScheduledTask) IsScheduled() bool {
	return t.ScheduledStart != nil && t.ScheduledEnd != nil
}

func (t ScheduledTask) Snapshot() TaskSnapshot {
	return TaskSnapshot{
		Completed:      t.Completed,
		ActualStart:    t.ActualStart,
		ScheduledStart: t.ScheduledStart,
		ScheduledEnd:   t.ScheduledEnd,
	}
}

func (t ScheduledTask) Status(now time.Time) TaskStatus {
	return DeriveStatus(t.Snapshot(), now)
}

// FinishedEarly reports a completion before the scheduled end.
func (t ScheduledTask) FinishedEarly() bool {
	return t.Completed && t.ActualEnd != nil && t.ScheduledEnd != nil && t.ActualEnd.Before(*t.ScheduledEnd)
}

// countsAgainstBudget is true for tasks holding a window or already done.
func (t ScheduledTask) countsAgainstBudget() bool {
	return t.Completed || t.IsScheduled()
}

func (t ScheduledTask) clone() ScheduledTask {
	c := t
	c.DueDate = cloneTime(t.DueDate)
	c.ScheduledStart = cloneTime(t.ScheduledStart)
	c.ScheduledEnd = cloneTime(t.ScheduledEnd)
	c.ActualStart = cloneTime(t.ActualStart)
	c.ActualEnd = cloneTime(t.ActualEnd)
	if t.SkipRisk != nil {
		r := *t.SkipRisk
		c.SkipRisk = &r
	}
	if t.MomentumState != nil {
		m := *t.MomentumState
		c.MomentumState = &m
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr returns a pointer to t in UTC.
func TimePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}

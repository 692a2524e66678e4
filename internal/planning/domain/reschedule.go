package domain

import (
	"time"

	"github.com/google/uuid"
)

// RescheduleType is the outcome of the reschedule decision.
type RescheduleType string

const (
	RescheduleNone   RescheduleType = "none"
	RescheduleAhead  RescheduleType = "ahead"
	RescheduleBehind RescheduleType = "behind"
	RescheduleAtRisk RescheduleType = "at_risk"
)

// Proposal sources.
const (
	SourceRules    = "rules"
	SourceAdvisory = "advisory"
)

// DeferReasonNoTime is given to tasks that did not fit the remaining day.
const DeferReasonNoTime = "insufficient time remaining"

// TaskWindow is a new slot for one task.
type TaskWindow struct {
	TaskID          uuid.UUID `json:"task_id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	AdjustedMinutes int       `json:"adjusted_minutes"`
	Reason          string    `json:"reason"`
}

// DeferredTask leaves today's schedule.
type DeferredTask struct {
	TaskID uuid.UUID `json:"task_id"`
	Reason string    `json:"reason"`
}

// RescheduleProposal is a rebuilt remaining day, applied all-or-nothing by
// Plan.ApplyReschedule. Rescue proposals may exceed the day's budget.
type RescheduleProposal struct {
	Type               RescheduleType `json:"type"`
	Scheduled          []TaskWindow   `json:"scheduled"`
	Deferred           []DeferredTask `json:"deferred"`
	Rescue             bool           `json:"rescue"`
	Source             string         `json:"source"`
	Justification      string         `json:"justification"`
	MinutesAheadBehind int            `json:"minutes_ahead_behind"`
}

// RescheduleRecord is the audit row written for every applied reschedule.
type RescheduleRecord struct {
	ID                 uuid.UUID
	PlanID             uuid.UUID
	UserID             uuid.UUID
	Type               RescheduleType
	Source             string
	Rescue             bool
	MinutesAheadBehind int
	ScheduledTaskIDs   []uuid.UUID
	DeferredTaskIDs    []uuid.UUID
	Justification      string
	AppliedAt          time.Time
}

// NewRescheduleRecord captures an applied proposal.
func NewRescheduleRecord(p *Plan, proposal RescheduleProposal, at time.Time) RescheduleRecord {
	ev := NewPlanRescheduled(p, proposal, at)
	return RescheduleRecord{
		ID:                 uuid.New(),
		PlanID:             p.ID(),
		UserID:             p.userID,
		Type:               proposal.Type,
		Source:             proposal.Source,
		Rescue:             proposal.Rescue,
		MinutesAheadBehind: proposal.MinutesAheadBehind,
		ScheduledTaskIDs:   ev.ScheduledTaskIDs,
		DeferredTaskIDs:    ev.DeferredTaskIDs,
		Justification:      proposal.Justification,
		AppliedAt:          at.UTC(),
	}
}

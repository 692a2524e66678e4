package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/tempo/internal/shared/domain"
	"github.com/google/uuid"
)

const (
	AggregateType = "Plan"

	RoutingKeyPlanCreated     = "planning.plan.created"
	RoutingKeyTaskStarted     = "planning.task.started"
	RoutingKeyTaskCompleted   = "planning.task.completed"
	RoutingKeyTaskReopened    = "planning.task.reopened"
	RoutingKeyPlanRescheduled = "planning.plan.rescheduled"
)

// PlanCreated is emitted when a day plan is stored.
type PlanCreated struct {
	sharedDomain.BaseEvent
	PlanID           uuid.UUID `json:"plan_id"`
	UserID           uuid.UUID `json:"user_id"`
	Date             string    `json:"date"`
	CapacityScore    int       `json:"capacity_score"`
	Mode             Mode      `json:"mode"`
	AvailableMinutes int       `json:"available_minutes"`
	TaskCount        int       `json:"task_count"`
}

func NewPlanCreated(p *Plan, at time.Time) *PlanCreated {
	return &PlanCreated{
		BaseEvent:        sharedDomain.NewBaseEvent(p.ID(), AggregateType, RoutingKeyPlanCreated, at),
		PlanID:           p.ID(),
		UserID:           p.userID,
		Date:             p.date.Format("2006-01-02"),
		CapacityScore:    p.capacityScore,
		Mode:             p.mode,
		AvailableMinutes: p.availableMinutes,
		TaskCount:        len(p.tasks),
	}
}

// TaskStarted is emitted the first time a task is started.
type TaskStarted struct {
	sharedDomain.BaseEvent
	PlanID    uuid.UUID `json:"plan_id"`
	UserID    uuid.UUID `json:"user_id"`
	TaskID    uuid.UUID `json:"task_id"`
	TaskTitle string    `json:"task_title"`
	StartedAt time.Time `json:"started_at"`
}

func NewTaskStarted(p *Plan, t ScheduledTask, at time.Time) *TaskStarted {
	return &TaskStarted{
		BaseEvent: sharedDomain.NewBaseEvent(p.ID(), AggregateType, RoutingKeyTaskStarted, at),
		PlanID:    p.ID(),
		UserID:    p.userID,
		TaskID:    t.TaskID,
		TaskTitle: t.Title,
		StartedAt: at.UTC(),
	}
}

// TaskCompleted is emitted when a completion is recorded or re-recorded
// with different values.
type TaskCompleted struct {
	sharedDomain.BaseEvent
	PlanID        uuid.UUID `json:"plan_id"`
	UserID        uuid.UUID `json:"user_id"`
	TaskID        uuid.UUID `json:"task_id"`
	TaskTitle     string    `json:"task_title"`
	CompletedAt   time.Time `json:"completed_at"`
	ActualMinutes int       `json:"actual_minutes"`
	FinishedEarly bool      `json:"finished_early"`
}

func NewTaskCompleted(p *Plan, t ScheduledTask, at time.Time) *TaskCompleted {
	return &TaskCompleted{
		BaseEvent:     sharedDomain.NewBaseEvent(p.ID(), AggregateType, RoutingKeyTaskCompleted, at),
		PlanID:        p.ID(),
		UserID:        p.userID,
		TaskID:        t.TaskID,
		TaskTitle:     t.Title,
		CompletedAt:   at.UTC(),
		ActualMinutes: t.ActualMinutes,
		FinishedEarly: t.FinishedEarly(),
	}
}

// TaskReopened is emitted when an external source reopens a completed task.
type TaskReopened struct {
	sharedDomain.BaseEvent
	PlanID    uuid.UUID `json:"plan_id"`
	UserID    uuid.UUID `json:"user_id"`
	TaskID    uuid.UUID `json:"task_id"`
	TaskTitle string    `json:"task_title"`
}

func NewTaskReopened(p *Plan, t ScheduledTask, at time.Time) *TaskReopened {
	return &TaskReopened{
		BaseEvent: sharedDomain.NewBaseEvent(p.ID(), AggregateType, RoutingKeyTaskReopened, at),
		PlanID:    p.ID(),
		UserID:    p.userID,
		TaskID:    t.TaskID,
		TaskTitle: t.Title,
	}
}

// PlanRescheduled is emitted when a reschedule proposal is applied.
type PlanRescheduled struct {
	sharedDomain.BaseEvent
	PlanID           uuid.UUID      `json:"plan_id"`
	UserID           uuid.UUID      `json:"user_id"`
	Type             RescheduleType `json:"type"`
	ScheduledTaskIDs []uuid.UUID    `json:"scheduled_task_ids"`
	DeferredTaskIDs  []uuid.UUID    `json:"deferred_task_ids"`
	Rescue           bool           `json:"rescue"`
	Source           string         `json:"source"`
	Justification    string         `json:"justification"`
}

func NewPlanRescheduled(p *Plan, proposal RescheduleProposal, at time.Time) *PlanRescheduled {
	scheduled := make([]uuid.UUID, 0, len(proposal.Scheduled))
	for _, w := range proposal.Scheduled {
		scheduled = append(scheduled, w.TaskID)
	}
	deferred := make([]uuid.UUID, 0, len(proposal.Deferred))
	for _, d := range proposal.Deferred {
		deferred = append(deferred, d.TaskID)
	}
	return &PlanRescheduled{
		BaseEvent:        sharedDomain.NewBaseEvent(p.ID(), AggregateType, RoutingKeyPlanRescheduled, at),
		PlanID:           p.ID(),
		UserID:           p.userID,
		Type:             proposal.Type,
		ScheduledTaskIDs: scheduled,
		DeferredTaskIDs:  deferred,
		Rescue:           proposal.Rescue,
		Source:           proposal.Source,
		Justification:    proposal.Justification,
	}
}

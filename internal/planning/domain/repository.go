package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PlanRepository persists plans together with their tasks.
type PlanRepository interface {
	// Create stores a new plan and its tasks atomically. A second plan for
	// the same user and date returns ErrPlanAlreadyExists.
	Create(ctx context.Context, plan *Plan) error

	// Update rewrites the plan and its tasks atomically. A stale version
	// returns ErrConcurrentModification.
	Update(ctx context.Context, plan *Plan) error

	FindByID(ctx context.Context, id uuid.UUID) (*Plan, error)

	// FindByUserAndDate returns the plan with tasks ordered by scheduled start.
	FindByUserAndDate(ctx context.Context, userID uuid.UUID, date time.Time) (*Plan, error)

	// ListSince returns plans dated on or after since, oldest first.
	ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*Plan, error)
}

// HistoryRepository reads the task history the learned models need.
type HistoryRepository interface {
	// RecentCompletions returns up to limit completed tasks with positive
	// estimated and actual minutes, newest first.
	RecentCompletions(ctx context.Context, userID uuid.UUID, limit int) ([]CompletionSample, error)

	// RecentOutcomes returns up to limit scheduled tasks whose window began
	// before the given time, newest first.
	RecentOutcomes(ctx context.Context, userID uuid.UUID, limit int, before time.Time) ([]TaskOutcome, error)
}

// RescheduleLogRepository stores the reschedule audit trail.
type RescheduleLogRepository interface {
	Append(ctx context.Context, record RescheduleRecord) error
	ListByPlan(ctx context.Context, planID uuid.UUID) ([]RescheduleRecord, error)
}

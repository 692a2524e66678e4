package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/google/uuid"
)

// TaskDTO is a data transfer object for scheduled tasks.
type TaskDTO struct {
	Position        int               `json:"position"`
	TaskID          uuid.UUID         `json:"task_id"`
	ExternalID      string            `json:"external_id,omitempty"`
	Title           string            `json:"title"`
	Priority        int               `json:"priority"`
	Project         string            `json:"project,omitempty"`
	Start           *time.Time        `json:"start,omitempty"`
	End             *time.Time        `json:"end,omitempty"`
	OriginalMinutes int               `json:"original_minutes"`
	AdjustedMinutes int               `json:"adjusted_minutes"`
	ActualMinutes   int               `json:"actual_minutes,omitempty"`
	Status          domain.TaskStatus `json:"status"`
	Justification   string            `json:"justification"`
	DeferredReason  string            `json:"deferred_reason,omitempty"`
	SkipRisk        *domain.SkipRisk  `json:"skip_risk,omitempty"`
}

// PlanDTO is a data transfer object for plans.
type PlanDTO struct {
	ID               uuid.UUID   `json:"id"`
	Date             string      `json:"date"`
	CapacityScore    int         `json:"capacity_score"`
	Mode             domain.Mode `json:"mode"`
	AvailableMinutes int         `json:"available_minutes"`
	ScheduledMinutes int         `json:"scheduled_minutes"`
	RemainingBudget  int         `json:"remaining_budget"`
	Rescue           bool        `json:"rescue"`
	Justification    string      `json:"justification"`
	Tasks            []TaskDTO   `json:"tasks"`
}

// GetPlanQuery contains the parameters for getting a plan.
type GetPlanQuery struct {
	UserID uuid.UUID
	Date   time.Time
	// Now derives task statuses; zero means the current time.
	Now time.Time
}

// GetPlanHandler handles the GetPlanQuery.
type GetPlanHandler struct {
	planRepo domain.PlanRepository
}

// NewGetPlanHandler creates a new GetPlanHandler.
func NewGetPlanHandler(planRepo domain.PlanRepository) *GetPlanHandler {
	return &GetPlanHandler{planRepo: planRepo}
}

// Handle executes the GetPlanQuery. A missing plan is ErrPlanNotFound.
func (h *GetPlanHandler) Handle(ctx context.Context, query GetPlanQuery) (*PlanDTO, error) {
	plan, err := h.planRepo.FindByUserAndDate(ctx, query.UserID, query.Date)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}
	now := query.Now
	if now.IsZero() {
		now = time.Now()
	}
	return ToPlanDTO(plan, now), nil
}

// ToPlanDTO converts a plan with statuses derived at now.
func ToPlanDTO(plan *domain.Plan, now time.Time) *PlanDTO {
	tasks := plan.Tasks()
	dto := &PlanDTO{
		ID:               plan.ID(),
		Date:             plan.Date().Format(time.DateOnly),
		CapacityScore:    plan.CapacityScore(),
		Mode:             plan.Mode(),
		AvailableMinutes: plan.AvailableMinutes(),
		ScheduledMinutes: plan.ScheduledMinutes(),
		RemainingBudget:  plan.RemainingBudget(),
		Rescue:           plan.Rescue(),
		Justification:    plan.Justification(),
		Tasks:            make([]TaskDTO, len(tasks)),
	}
	for i, t := range tasks {
		dto.Tasks[i] = TaskDTO{
			Position:        i + 1,
			TaskID:          t.TaskID,
			ExternalID:      t.ExternalID,
			Title:           t.Title,
			Priority:        int(t.Priority),
			Project:         t.Project,
			Start:           t.ScheduledStart,
			End:             t.ScheduledEnd,
			OriginalMinutes: t.OriginalMinutes,
			AdjustedMinutes: t.AdjustedMinutes,
			ActualMinutes:   t.ActualMinutes,
			Status:          t.Status(now),
			Justification:   t.Justification,
			DeferredReason:  t.DeferredReason,
			SkipRisk:        t.SkipRisk,
		}
	}
	return dto
}

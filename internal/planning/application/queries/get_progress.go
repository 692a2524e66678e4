package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/application/services"
	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/google/uuid"
)

// TaskRiskDTO is the skip risk of one remaining task.
type TaskRiskDTO struct {
	TaskID     uuid.UUID             `json:"task_id"`
	Title      string                `json:"title"`
	Level      domain.RiskLevel      `json:"level"`
	Percentage int                   `json:"percentage"`
	Reasoning  string                `json:"reasoning"`
	Factors    []services.RiskFactor `json:"factors"`
}

// ProgressDTO is the progress view of a day.
type ProgressDTO struct {
	PlanID               uuid.UUID                `json:"plan_id"`
	Date                 string                   `json:"date"`
	Totals               services.ProgressTotals  `json:"totals"`
	MinutesAheadBehind   int                      `json:"minutes_ahead_behind"`
	CompletionPercentage int                      `json:"completion_percentage"`
	CurrentTask          *TaskDTO                 `json:"current_task,omitempty"`
	NextTask             *TaskDTO                 `json:"next_task,omitempty"`
	Momentum             services.MomentumMetrics `json:"momentum"`
	Risks                []TaskRiskDTO            `json:"risks"`
	HighestRisk          *TaskRiskDTO             `json:"highest_risk,omitempty"`
	// Reschedule is what a reschedule would do right now, without applying it.
	Reschedule services.Decision `json:"reschedule"`
}

// GetProgressQuery contains the parameters for the progress view.
type GetProgressQuery struct {
	UserID   uuid.UUID
	Date     time.Time
	Location *time.Location
	Now      time.Time
}

// GetProgressHandler handles the GetProgressQuery.
type GetProgressHandler struct {
	planRepo domain.PlanRepository
	profiles *services.ProfileLoader
	engine   *services.RescheduleEngine
}

// NewGetProgressHandler creates a new GetProgressHandler.
func NewGetProgressHandler(planRepo domain.PlanRepository, profiles *services.ProfileLoader, engine *services.RescheduleEngine) *GetProgressHandler {
	if engine == nil {
		engine = services.NewRescheduleEngine(services.DefaultRescheduleConfig(), nil, nil, nil)
	}
	return &GetProgressHandler{planRepo: planRepo, profiles: profiles, engine: engine}
}

// Handle executes the GetProgressQuery.
func (h *GetProgressHandler) Handle(ctx context.Context, query GetProgressQuery) (*ProgressDTO, error) {
	loc := query.Location
	if loc == nil {
		loc = time.UTC
	}
	now := query.Now
	if now.IsZero() {
		now = time.Now()
	}

	plan, err := h.planRepo.FindByUserAndDate(ctx, query.UserID, query.Date)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}
	profile, err := h.profiles.Load(ctx, query.UserID, now, loc)
	if err != nil {
		return nil, err
	}

	eval := services.EvaluateDay(plan, profile.History, now, loc)
	planDTO := ToPlanDTO(plan, now)

	dto := &ProgressDTO{
		PlanID:               plan.ID(),
		Date:                 planDTO.Date,
		Totals:               eval.Progress.Totals,
		MinutesAheadBehind:   eval.Progress.MinutesAheadBehind,
		CompletionPercentage: eval.Progress.CompletionPercentage,
		Momentum:             eval.Momentum,
		Reschedule:           h.engine.Decide(eval.RescheduleInput(plan, profile, now, loc)),
		Risks:                make([]TaskRiskDTO, 0, len(eval.Risk.Tasks)),
	}

	for i, t := range planDTO.Tasks {
		if eval.Progress.CurrentTask != nil && eval.Progress.CurrentTask.TaskID == t.TaskID {
			dto.CurrentTask = &planDTO.Tasks[i]
		}
		if eval.Progress.NextTask != nil && eval.Progress.NextTask.TaskID == t.TaskID {
			dto.NextTask = &planDTO.Tasks[i]
		}
		risk, ok := eval.Risk.Tasks[t.TaskID]
		if !ok {
			continue
		}
		riskDTO := TaskRiskDTO{
			TaskID:     t.TaskID,
			Title:      t.Title,
			Level:      risk.Level,
			Percentage: risk.Percentage,
			Reasoning:  risk.Reasoning,
			Factors:    risk.Factors,
		}
		dto.Risks = append(dto.Risks, riskDTO)
		if t.TaskID == eval.Risk.TaskID {
			highest := riskDTO
			dto.HighestRisk = &highest
		}
	}
	return dto, nil
}

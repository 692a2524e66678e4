package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/application/services"
	"github.com/google/uuid"
)

// InsightsDTO summarizes what the learned models know.
type InsightsDTO struct {
	Buffer    services.BufferProfile  `json:"buffer"`
	PeakHours []int                   `json:"peak_hours"`
	LowHours  []int                   `json:"low_hours"`
	Hours     []services.HourStat     `json:"hours"`
	Samples   int                     `json:"window_samples"`
	Trends    services.MomentumTrends `json:"trends"`
	Days      int                     `json:"days"`
}

// GetInsightsQuery contains the parameters for the insights view.
type GetInsightsQuery struct {
	UserID   uuid.UUID
	Location *time.Location
	Now      time.Time
}

// GetInsightsHandler handles the GetInsightsQuery.
type GetInsightsHandler struct {
	profiles *services.ProfileLoader
}

// NewGetInsightsHandler creates a new GetInsightsHandler.
func NewGetInsightsHandler(profiles *services.ProfileLoader) *GetInsightsHandler {
	return &GetInsightsHandler{profiles: profiles}
}

// Handle executes the GetInsightsQuery. Without history every model
// reports its neutral default.
func (h *GetInsightsHandler) Handle(ctx context.Context, query GetInsightsQuery) (*InsightsDTO, error) {
	loc := query.Location
	if loc == nil {
		loc = time.UTC
	}
	now := query.Now
	if now.IsZero() {
		now = time.Now()
	}

	profile, err := h.profiles.Load(ctx, query.UserID, now, loc)
	if err != nil {
		return nil, err
	}

	return &InsightsDTO{
		Buffer:    profile.Buffer,
		PeakHours: profile.Windows.PeakHours,
		LowHours:  profile.Windows.LowHours,
		Hours:     profile.Windows.Stats(),
		Samples:   profile.Windows.SampleSize,
		Trends:    services.NewMomentumTracker(loc).Trends(profile.History, now),
		Days:      len(profile.History),
	}, nil
}

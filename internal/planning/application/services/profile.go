package services

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/felixgeelhaar/tempo/pkg/config"
	"github.com/google/uuid"
)

// LearnedProfile is what the learned models know about a user.
type LearnedProfile struct {
	Buffer  BufferProfile
	Windows WindowProfile
	// History holds the plans of the momentum window, oldest first,
	// excluding today.
	History []*domain.Plan
}

// ProfileLoader reads history and runs the learned models over it.
type ProfileLoader struct {
	history      domain.HistoryRepository
	plans        domain.PlanRepository
	buffer       *TimeBlindnessModel
	windows      *ProductivityWindowModel
	momentumDays int
}

// NewProfileLoader creates a loader with the history sizes of cfg.
func NewProfileLoader(history domain.HistoryRepository, plans domain.PlanRepository, cfg config.EngineConfig) *ProfileLoader {
	days := cfg.History.MomentumDays
	if days <= 0 {
		days = DefaultMomentumDays
	}
	return &ProfileLoader{
		history:      history,
		plans:        plans,
		buffer:       NewTimeBlindnessModel(cfg.History.BufferSamples),
		windows:      NewProductivityWindowModel(cfg.History.WindowSamples),
		momentumDays: days,
	}
}

// Load returns neutral profiles when there is no history yet.
func (l *ProfileLoader) Load(ctx context.Context, userID uuid.UUID, now time.Time, loc *time.Location) (LearnedProfile, error) {
	if loc == nil {
		loc = time.UTC
	}
	profile := LearnedProfile{Buffer: NeutralBufferProfile()}

	samples, err := l.history.RecentCompletions(ctx, userID, l.buffer.MaxSamples())
	if err != nil {
		return profile, fmt.Errorf("load completions: %w", err)
	}
	profile.Buffer = l.buffer.Learn(samples)

	outcomes, err := l.history.RecentOutcomes(ctx, userID, l.windows.MaxSamples(), now)
	if err != nil {
		return profile, fmt.Errorf("load outcomes: %w", err)
	}
	profile.Windows = l.windows.Learn(domain.BucketOutcomes(outcomes, loc))

	today := domain.NormalizeDate(now.In(loc))
	plans, err := l.plans.ListSince(ctx, userID, today.AddDate(0, 0, -l.momentumDays))
	if err != nil {
		return profile, fmt.Errorf("load recent plans: %w", err)
	}
	for _, p := range plans {
		if p.Date().Before(today) {
			profile.History = append(profile.History, p)
		}
	}
	return profile, nil
}

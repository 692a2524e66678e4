package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/cache"
	"github.com/google/uuid"
)

// DefaultPlanCacheTTL bounds how long a cached plan may be served.
const DefaultPlanCacheTTL = 5 * time.Minute

// CachedPlanRepository is a read-through cache in front of a plan
// repository. Every write invalidates the plan's entries. Cache failures
// are logged and the inner repository answers instead.
type CachedPlanRepository struct {
	inner  domain.PlanRepository
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedPlanRepository(inner domain.PlanRepository, c cache.Cache, ttl time.Duration, logger *slog.Logger) *CachedPlanRepository {
	if ttl <= 0 {
		ttl = DefaultPlanCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedPlanRepository{inner: inner, cache: c, ttl: ttl, logger: logger}
}

func planIDKey(id uuid.UUID) string {
	return "id:" + id.String()
}

func planDateKey(userID uuid.UUID, date time.Time) string {
	return "user:" + userID.String() + ":" + domain.NormalizeDate(date).Format("2006-01-02")
}

func (r *CachedPlanRepository) Create(ctx context.Context, plan *domain.Plan) error {
	if err := r.inner.Create(ctx, plan); err != nil {
		return err
	}
	r.invalidate(ctx, plan)
	return nil
}

func (r *CachedPlanRepository) Update(ctx context.Context, plan *domain.Plan) error {
	// Drop the entries first so a failed write never leaves a newer
	// snapshot behind than the database holds.
	r.invalidate(ctx, plan)
	if err := r.inner.Update(ctx, plan); err != nil {
		return err
	}
	r.invalidate(ctx, plan)
	return nil
}

func (r *CachedPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	return r.readThrough(ctx, planIDKey(id), func() (*domain.Plan, error) {
		return r.inner.FindByID(ctx, id)
	})
}

func (r *CachedPlanRepository) FindByUserAndDate(ctx context.Context, userID uuid.UUID, date time.Time) (*domain.Plan, error) {
	return r.readThrough(ctx, planDateKey(userID, date), func() (*domain.Plan, error) {
		return r.inner.FindByUserAndDate(ctx, userID, date)
	})
}

// ListSince is not cached; it feeds learning and changes with every day.
func (r *CachedPlanRepository) ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*domain.Plan, error) {
	return r.inner.ListSince(ctx, userID, since)
}

func (r *CachedPlanRepository) readThrough(ctx context.Context, key string, load func() (*domain.Plan, error)) (*domain.Plan, error) {
	raw, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		var snap planSnapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			return snap.plan(), nil
		}
		r.logger.Warn("discarding undecodable cached plan", "key", key)
	case !errors.Is(err, cache.ErrMiss):
		r.logger.Warn("plan cache read failed", "key", key, "error", err)
	}

	plan, err := load()
	if err != nil || plan == nil {
		return plan, err
	}

	value, err := json.Marshal(newPlanSnapshot(plan))
	if err != nil {
		return plan, nil
	}
	if err := r.cache.Set(ctx, key, value, r.ttl); err != nil {
		r.logger.Warn("plan cache write failed", "key", key, "error", err)
	}
	return plan, nil
}

func (r *CachedPlanRepository) invalidate(ctx context.Context, plan *domain.Plan) {
	keys := []string{planIDKey(plan.ID()), planDateKey(plan.UserID(), plan.Date())}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		r.logger.Warn("plan cache invalidation failed", "plan_id", plan.ID(), "error", err)
	}
}

// planSnapshot is the cached form of a plan.
type planSnapshot struct {
	ID               uuid.UUID              `json:"id"`
	UserID           uuid.UUID              `json:"user_id"`
	Date             time.Time              `json:"date"`
	CapacityScore    int                    `json:"capacity_score"`
	Mode             domain.Mode            `json:"mode"`
	AvailableMinutes int                    `json:"available_minutes"`
	Justification    string                 `json:"justification"`
	Rescue           bool                   `json:"rescue"`
	Tasks            []domain.ScheduledTask `json:"tasks"`
	Version          int                    `json:"version"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

func newPlanSnapshot(p *domain.Plan) planSnapshot {
	return planSnapshot{
		ID:               p.ID(),
		UserID:           p.UserID(),
		Date:             p.Date(),
		CapacityScore:    p.CapacityScore(),
		Mode:             p.Mode(),
		AvailableMinutes: p.AvailableMinutes(),
		Justification:    p.Justification(),
		Rescue:           p.Rescue(),
		Tasks:            p.Tasks(),
		Version:          p.Version(),
		CreatedAt:        p.CreatedAt(),
		UpdatedAt:        p.UpdatedAt(),
	}
}

func (s planSnapshot) plan() *domain.Plan {
	return domain.RehydratePlan(
		s.ID, s.UserID, s.Date, s.CapacityScore, s.Mode, s.AvailableMinutes,
		s.Justification, s.Rescue, s.Tasks, s.Version, s.CreatedAt, s.UpdatedAt,
	)
}

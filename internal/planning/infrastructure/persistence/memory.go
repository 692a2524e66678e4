package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/google/uuid"
)

// InMemoryStore keeps plans, history and the reschedule log in process.
// Plans are copied in and out, so callers never share state with the store.
type InMemoryStore struct {
	mu    sync.RWMutex
	plans map[uuid.UUID]*domain.Plan
	logs  map[uuid.UUID][]domain.RescheduleRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		plans: make(map[uuid.UUID]*domain.Plan),
		logs:  make(map[uuid.UUID][]domain.RescheduleRecord),
	}
}

func copyPlan(p *domain.Plan, version int) *domain.Plan {
	return domain.RehydratePlan(
		p.ID(), p.UserID(), p.Date(), p.CapacityScore(), p.Mode(), p.AvailableMinutes(),
		p.Justification(), p.Rescue(), p.Tasks(), version, p.CreatedAt(), p.UpdatedAt(),
	)
}

func (s *InMemoryStore) Create(_ context.Context, plan *domain.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.plans {
		if existing.UserID() == plan.UserID() && existing.Date().Equal(plan.Date()) {
			return domain.ErrPlanAlreadyExists
		}
	}
	s.plans[plan.ID()] = copyPlan(plan, plan.Version()+1)
	plan.MarkPersisted()
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, plan *domain.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.plans[plan.ID()]
	if !ok {
		return domain.ErrPlanNotFound
	}
	if stored.Version() != plan.Version() {
		return domain.ErrConcurrentModification
	}
	s.plans[plan.ID()] = copyPlan(plan, plan.Version()+1)
	plan.MarkPersisted()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*domain.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.plans[id]
	if !ok {
		return nil, nil
	}
	return copyPlan(stored, stored.Version()), nil
}

func (s *InMemoryStore) FindByUserAndDate(_ context.Context, userID uuid.UUID, date time.Time) (*domain.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := domain.NormalizeDate(date)
	for _, stored := range s.plans {
		if stored.UserID() == userID && stored.Date().Equal(day) {
			return copyPlan(stored, stored.Version()), nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) ListSince(_ context.Context, userID uuid.UUID, since time.Time) ([]*domain.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := domain.NormalizeDate(since)
	var out []*domain.Plan
	for _, stored := range s.plans {
		if stored.UserID() == userID && !stored.Date().Before(day) {
			out = append(out, copyPlan(stored, stored.Version()))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date().Before(out[j].Date()) })
	return out, nil
}

// tasksNewestFirst flattens every task of the user, newest key first.
func (s *InMemoryStore) tasksNewestFirst(userID uuid.UUID, key func(domain.ScheduledTask) time.Time) []domain.ScheduledTask {
	var tasks []domain.ScheduledTask
	for _, stored := range s.plans {
		if stored.UserID() == userID {
			tasks = append(tasks, stored.Tasks()...)
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return key(tasks[i]).After(key(tasks[j]))
	})
	return tasks
}

func completedAt(t domain.ScheduledTask) time.Time {
	if t.ActualEnd != nil {
		return *t.ActualEnd
	}
	return time.Time{}
}

func scheduledAt(t domain.ScheduledTask) time.Time {
	if t.ScheduledStart != nil {
		return *t.ScheduledStart
	}
	return time.Time{}
}

func (s *InMemoryStore) RecentCompletions(_ context.Context, userID uuid.UUID, limit int) ([]domain.CompletionSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CompletionSample
	for _, t := range s.tasksNewestFirst(userID, completedAt) {
		if len(out) >= limit {
			break
		}
		if !t.Completed || t.OriginalMinutes <= 0 || t.ActualMinutes <= 0 {
			continue
		}
		out = append(out, domain.CompletionSample{EstimatedMinutes: t.OriginalMinutes, ActualMinutes: t.ActualMinutes})
	}
	return out, nil
}

func (s *InMemoryStore) RecentOutcomes(_ context.Context, userID uuid.UUID, limit int, before time.Time) ([]domain.TaskOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.TaskOutcome
	for _, t := range s.tasksNewestFirst(userID, scheduledAt) {
		if len(out) >= limit {
			break
		}
		if t.ScheduledStart == nil || !t.ScheduledStart.Before(before) {
			continue
		}
		out = append(out, domain.TaskOutcome{
			ScheduledStart: *t.ScheduledStart,
			CompletedAt:    t.ActualEnd,
			Completed:      t.Completed,
		})
	}
	return out, nil
}

func (s *InMemoryStore) Append(_ context.Context, record domain.RescheduleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[record.PlanID] = append(s.logs[record.PlanID], record)
	return nil
}

func (s *InMemoryStore) ListByPlan(_ context.Context, planID uuid.UUID) ([]domain.RescheduleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.RescheduleRecord(nil), s.logs[planID]...), nil
}

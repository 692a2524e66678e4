package commands

import (
	"context"
	"sync"
	"testing"
	"time"

	notificationApp "github.com/felixgeelhaar/tempo/internal/notification/application"
	"github.com/felixgeelhaar/tempo/internal/planning/application/services"
	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/felixgeelhaar/tempo/internal/planning/infrastructure/persistence"
	sharedApplication "github.com/felixgeelhaar/tempo/internal/shared/application"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/lock"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/outbox"
	tasksyncApp "github.com/felixgeelhaar/tempo/internal/tasksync/application"
	"github.com/felixgeelhaar/tempo/pkg/config"
	"github.com/felixgeelhaar/tempo/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return testDay.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type fixture struct {
	userID   uuid.UUID
	store    *persistence.InMemoryStore
	outbox   *outbox.InMemoryRepository
	uow      sharedApplication.UnitOfWork
	locker   *lock.LocalLocker
	metrics  *observability.InMemoryMetrics
	profiles *services.ProfileLoader
	now      time.Time
	mirror   *recordingMirror
	notifier *recordingNotifier
}

func newFixture(now time.Time) *fixture {
	store := persistence.NewInMemoryStore()
	return &fixture{
		userID:   uuid.New(),
		store:    store,
		outbox:   outbox.NewInMemoryRepository(),
		uow:      sharedApplication.NoopUnitOfWork{},
		locker:   lock.NewLocalLocker(20 * time.Millisecond),
		metrics:  observability.NewInMemoryMetrics(),
		profiles: services.NewProfileLoader(store, store, config.DefaultEngineConfig()),
		now:      now,
		mirror:   &recordingMirror{},
		notifier: &recordingNotifier{},
	}
}

func (f *fixture) clock() Clock {
	return func() time.Time { return f.now }
}

// seed stores a plan built from fixed windows.
func (f *fixture) seed(t *testing.T, tasks ...domain.ScheduledTask) *domain.Plan {
	t.Helper()
	plan, err := domain.NewPlan(f.userID, testDay, 100, domain.ModeBalanced, "seeded plan", tasks, at(7, 0))
	require.NoError(t, err)
	require.NoError(t, f.store.Create(context.Background(), plan))
	return plan
}

func (f *fixture) routingKeys() []string {
	var keys []string
	for _, msg := range f.outbox.Messages() {
		keys = append(keys, msg.RoutingKey)
	}
	return keys
}

func (f *fixture) reload(t *testing.T) *domain.Plan {
	t.Helper()
	plan, err := f.store.FindByUserAndDate(context.Background(), f.userID, testDay)
	require.NoError(t, err)
	require.NotNil(t, plan)
	return plan
}

func window(title string, priority domain.Priority, start time.Time, minutes int) domain.ScheduledTask {
	return domain.ScheduledTask{
		TaskID:          uuid.New(),
		Title:           title,
		Priority:        priority,
		ScheduledStart:  domain.TimePtr(start),
		ScheduledEnd:    domain.TimePtr(start.Add(time.Duration(minutes) * time.Minute)),
		OriginalMinutes: minutes,
		AdjustedMinutes: minutes,
		Justification:   "seeded window",
	}
}

type recordingMirror struct {
	mu    sync.Mutex
	plans []uuid.UUID
}

func (m *recordingMirror) MirrorPlan(_ context.Context, plan *domain.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans = append(m.plans, plan.ID())
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notificationApp.Message
}

func (n *recordingNotifier) Notify(_ context.Context, msg notificationApp.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

type fakeSource struct {
	tasks []tasksyncApp.ExternalTask
	err   error
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) ListTasks(context.Context, uuid.UUID) ([]tasksyncApp.ExternalTask, error) {
	return s.tasks, s.err
}

package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/tempo/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type testAggregate struct {
	domain.BaseAggregateRoot
}

type testEvent struct {
	domain.BaseEvent
}

func newTestEvent(id uuid.UUID, at time.Time) *testEvent {
	return &testEvent{BaseEvent: domain.NewBaseEvent(id, "Test", "test.thing.happened", at)}
}

func TestBaseAggregateRoot_EventsAndVersion(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	agg := &testAggregate{BaseAggregateRoot: domain.NewBaseAggregateRoot(now)}

	assert.NotEqual(t, uuid.Nil, agg.ID())
	assert.Equal(t, 0, agg.Version())
	assert.Empty(t, agg.DomainEvents())

	agg.AddDomainEvent(newTestEvent(agg.ID(), now))
	agg.AddDomainEvent(newTestEvent(agg.ID(), now))
	assert.Len(t, agg.DomainEvents(), 2)

	agg.ClearDomainEvents()
	assert.Empty(t, agg.DomainEvents())

	agg.MarkPersisted()
	assert.Equal(t, 1, agg.Version())
}

func TestBaseAggregateRoot_DomainEventsReturnsCopy(t *testing.T) {
	now := time.Now()
	agg := &testAggregate{BaseAggregateRoot: domain.NewBaseAggregateRoot(now)}
	agg.AddDomainEvent(newTestEvent(agg.ID(), now))

	events := agg.DomainEvents()
	events[0] = nil

	assert.NotNil(t, agg.DomainEvents()[0])
}

func TestRehydrateBaseAggregateRoot(t *testing.T) {
	id := uuid.New()
	created := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)

	agg := domain.RehydrateBaseAggregateRoot(domain.RehydrateBaseEntity(id, created, updated), 7)

	assert.Equal(t, id, agg.ID())
	assert.Equal(t, 7, agg.Version())
	assert.Equal(t, created, agg.CreatedAt())
	assert.Equal(t, updated, agg.UpdatedAt())
}

func TestBaseEntity_TouchIsMonotonic(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	e := domain.NewBaseEntity(start)

	e.Touch(start.Add(time.Minute))
	assert.Equal(t, start.Add(time.Minute), e.UpdatedAt())

	e.Touch(start)
	assert.Equal(t, start.Add(time.Minute), e.UpdatedAt())
	assert.Equal(t, start, e.CreatedAt())
}

func TestSameIdentity(t *testing.T) {
	id := uuid.New()
	a := domain.NewBaseEntityWithID(id, time.Now())
	b := domain.NewBaseEntityWithID(id, time.Now().Add(time.Hour))

	assert.True(t, domain.SameIdentity(a, b))
	assert.False(t, domain.SameIdentity(a, domain.NewBaseEntity(time.Now())))
	assert.False(t, domain.SameIdentity(a, nil))
}

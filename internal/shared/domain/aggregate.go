package domain

import (
	"time"

	"github.com/google/uuid"
)

// AggregateRoot is the consistency boundary persisted as one unit.
type AggregateRoot interface {
	Entity
	DomainEvents() []DomainEvent
	ClearDomainEvents()
	Version() int
}

// BaseAggregateRoot records pending domain events and the persisted version
// used for optimistic concurrency checks.
type BaseAggregateRoot struct {
	BaseEntity
	domainEvents []DomainEvent
	version      int
}

// NewBaseAggregateRoot creates an unsaved aggregate (version 0).
func NewBaseAggregateRoot(now time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntity(now)}
}

// NewBaseAggregateRootWithID creates an unsaved aggregate with a fixed ID.
func NewBaseAggregateRootWithID(id uuid.UUID, now time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntityWithID(id, now)}
}

// RehydrateBaseAggregateRoot rebuilds an aggregate at its stored version.
func RehydrateBaseAggregateRoot(entity BaseEntity, version int) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: entity, version: version}
}

// DomainEvents returns events raised since the last save.
func (a *BaseAggregateRoot) DomainEvents() []DomainEvent {
	out := make([]DomainEvent, len(a.domainEvents))
	copy(out, a.domainEvents)
	return out
}

// ClearDomainEvents drops pending events once they reached the outbox.
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// AddDomainEvent queues an event for the outbox.
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// Version is the version the aggregate was loaded at.
func (a *BaseAggregateRoot) Version() int {
	return a.version
}

// MarkPersisted advances the version after a successful write.
func (a *BaseAggregateRoot) MarkPersisted() {
	a.version++
}

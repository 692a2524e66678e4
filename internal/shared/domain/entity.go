package domain

import (
	"time"

	"github.com/google/uuid"
)

// Entity is anything in the domain identified by a UUID rather than by its values.
type Entity interface {
	ID() uuid.UUID
	CreatedAt() time.Time
	UpdatedAt() time.Time
}

// BaseEntity carries identity and audit timestamps. Timestamps are always UTC.
type BaseEntity struct {
	id        uuid.UUID
	createdAt time.Time
	updatedAt time.Time
}

// NewBaseEntity creates an entity with a fresh ID stamped at now.
func NewBaseEntity(now time.Time) BaseEntity {
	return NewBaseEntityWithID(uuid.New(), now)
}

// NewBaseEntityWithID creates an entity with a caller-supplied ID.
func NewBaseEntityWithID(id uuid.UUID, now time.Time) BaseEntity {
	now = now.UTC()
	return BaseEntity{id: id, createdAt: now, updatedAt: now}
}

// RehydrateBaseEntity rebuilds an entity from stored columns.
func RehydrateBaseEntity(id uuid.UUID, createdAt, updatedAt time.Time) BaseEntity {
	return BaseEntity{id: id, createdAt: createdAt.UTC(), updatedAt: updatedAt.UTC()}
}

func (e BaseEntity) ID() uuid.UUID        { return e.id }
func (e BaseEntity) CreatedAt() time.Time { return e.createdAt }
func (e BaseEntity) UpdatedAt() time.Time { return e.updatedAt }

// Touch moves updatedAt forward. Older timestamps are ignored so replays stay monotonic.
func (e *BaseEntity) Touch(now time.Time) {
	now = now.UTC()
	if now.After(e.updatedAt) {
		e.updatedAt = now
	}
}

// SameIdentity reports whether two entities share an ID.
func SameIdentity(a, b Entity) bool {
	if a == nil || b == nil {
		return false
	}
	return a.ID() == b.ID()
}

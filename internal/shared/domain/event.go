package domain

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact raised by an aggregate and relayed through the outbox.
type DomainEvent interface {
	EventID() uuid.UUID
	AggregateID() uuid.UUID
	AggregateType() string
	RoutingKey() string
	OccurredAt() time.Time
	Metadata() EventMetadata
}

// EventMetadata links an event to the request that caused it.
type EventMetadata struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	CausationID   uuid.UUID `json:"causation_id"`
	UserID        uuid.UUID `json:"user_id"`
}

// BaseEvent implements the DomainEvent accessors. The exported JSON fields
// make the envelope part of the outbox payload.
type BaseEvent struct {
	ID            uuid.UUID     `json:"event_id"`
	Aggregate     uuid.UUID     `json:"aggregate_id"`
	AggregateKind string        `json:"aggregate_type"`
	Key           string        `json:"routing_key"`
	At            time.Time     `json:"occurred_at"`
	Meta          EventMetadata `json:"metadata"`
}

// NewBaseEvent stamps a new event at the given time.
func NewBaseEvent(aggregateID uuid.UUID, aggregateType, routingKey string, at time.Time) BaseEvent {
	return BaseEvent{
		ID:            uuid.New(),
		Aggregate:     aggregateID,
		AggregateKind: aggregateType,
		Key:           routingKey,
		At:            at.UTC(),
	}
}

func (e BaseEvent) EventID() uuid.UUID      { return e.ID }
func (e BaseEvent) AggregateID() uuid.UUID  { return e.Aggregate }
func (e BaseEvent) AggregateType() string   { return e.AggregateKind }
func (e BaseEvent) RoutingKey() string      { return e.Key }
func (e BaseEvent) OccurredAt() time.Time   { return e.At }
func (e BaseEvent) Metadata() EventMetadata { return e.Meta }

// SetMetadata attaches request metadata before the event is stored.
func (e *BaseEvent) SetMetadata(metadata EventMetadata) {
	e.Meta = metadata
}

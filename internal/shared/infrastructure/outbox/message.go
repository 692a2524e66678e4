package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/tempo/internal/shared/domain"
	"github.com/google/uuid"
)

// Message is a domain event waiting in the outbox for the broker.
type Message struct {
	ID               int64
	EventID          uuid.UUID
	AggregateType    string
	AggregateID      uuid.UUID
	EventType        string
	RoutingKey       string
	Payload          json.RawMessage
	Metadata         json.RawMessage
	CreatedAt        time.Time
	PublishedAt      *time.Time
	NextRetryAt      *time.Time
	RetryCount       int
	LastError        *string
	DeadLetteredAt   *time.Time
	DeadLetterReason *string
}

// NewMessage serializes event. The routing key doubles as the event type.
func NewMessage(event domain.DomainEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event.RoutingKey(), err)
	}
	metadata, err := json.Marshal(event.Metadata())
	if err != nil {
		return nil, fmt.Errorf("marshal %s metadata: %w", event.RoutingKey(), err)
	}

	return &Message{
		EventID:       event.EventID(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		EventType:     event.RoutingKey(),
		RoutingKey:    event.RoutingKey(),
		Payload:       payload,
		Metadata:      metadata,
		CreatedAt:     event.OccurredAt().UTC(),
	}, nil
}

// FromEvents converts a batch of events, failing on the first that cannot
// be serialized.
func FromEvents(events []domain.DomainEvent) ([]*Message, error) {
	msgs := make([]*Message, 0, len(events))
	for _, event := range events {
		msg, err := NewMessage(event)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (m *Message) IsPublished() bool {
	return m.PublishedAt != nil
}

func (m *Message) IsDead() bool {
	return m.DeadLetteredAt != nil
}

// CanRetry reports whether another attempt stays under maxRetries.
func (m *Message) CanRetry(maxRetries int) bool {
	return m.RetryCount < maxRetries
}

// DueAt reports whether the message may be attempted at now.
func (m *Message) DueAt(now time.Time) bool {
	if m.IsPublished() || m.IsDead() {
		return false
	}
	return m.NextRetryAt == nil || !m.NextRetryAt.After(now)
}

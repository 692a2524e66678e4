package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a received domain event. Body is the full serialized event so
// handlers can decode the fields specific to its type.
type Event struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	RoutingKey    string          `json:"routing_key"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Metadata      EventMetadata   `json:"metadata"`
	Body          json.RawMessage `json:"-"`
}

type EventMetadata struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	CausationID   uuid.UUID `json:"causation_id"`
	UserID        uuid.UUID `json:"user_id"`
}

// DecodeEvent reads the envelope of payload. routingKey fills in a missing
// routing key.
func DecodeEvent(routingKey string, payload []byte) (*Event, error) {
	event := &Event{}
	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if event.RoutingKey == "" {
		event.RoutingKey = routingKey
	}
	event.Body = append(json.RawMessage(nil), payload...)
	return event, nil
}

// Handler reacts to the routing keys it names.
type Handler interface {
	EventTypes() []string
	Handle(ctx context.Context, event *Event) error
}

// Registry routes events to handlers by routing key.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{handlers: make(map[string][]Handler), logger: logger}
}

func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range h.EventTypes() {
		r.handlers[key] = append(r.handlers[key], h)
	}
}

// EventTypes lists the routing keys with at least one handler, sorted.
func (r *Registry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.handlers))
	for key := range r.handlers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Dispatch runs every handler for the event. All handlers run even when
// one fails; their errors are joined.
func (r *Registry) Dispatch(ctx context.Context, event *Event) error {
	r.mu.RLock()
	handlers := append([]Handler(nil), r.handlers[event.RoutingKey]...)
	r.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h.Handle(ctx, event); err != nil {
			r.logger.ErrorContext(ctx, "event handler failed",
				"routing_key", event.RoutingKey,
				"event_id", event.EventID,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LocalBus is a Publisher that dispatches straight to a Registry. It stands
// in for the broker in local mode; handler failures are logged, not
// returned, so the outbox does not retry them.
type LocalBus struct {
	registry *Registry
	logger   *slog.Logger
}

func NewLocalBus(registry *Registry, logger *slog.Logger) *LocalBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalBus{registry: registry, logger: logger}
}

func (b *LocalBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	event, err := DecodeEvent(routingKey, payload)
	if err != nil {
		b.logger.ErrorContext(ctx, "dropping undecodable event", "routing_key", routingKey, "error", err)
		return nil
	}
	if err := b.registry.Dispatch(ctx, event); err != nil {
		b.logger.WarnContext(ctx, "local event dispatch failed", "routing_key", routingKey, "error", err)
	}
	return nil
}

func (b *LocalBus) Close() error { return nil }

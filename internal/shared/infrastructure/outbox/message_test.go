package outbox_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/tempo/internal/shared/domain"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/outbox"
)

type taskCompleted struct {
	domain.BaseEvent
	TaskID uuid.UUID `json:"task_id"`
}

func newTaskCompleted(at time.Time) *taskCompleted {
	return &taskCompleted{
		BaseEvent: domain.NewBaseEvent(uuid.New(), "plan", "planning.task.completed", at),
		TaskID:    uuid.New(),
	}
}

func TestNewMessage(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	event := newTaskCompleted(at)
	userID := uuid.New()
	event.SetMetadata(domain.EventMetadata{UserID: userID})

	msg, err := outbox.NewMessage(event)
	require.NoError(t, err)

	assert.Equal(t, event.EventID(), msg.EventID)
	assert.Equal(t, "plan", msg.AggregateType)
	assert.Equal(t, "planning.task.completed", msg.RoutingKey)
	assert.Equal(t, msg.RoutingKey, msg.EventType)
	assert.Equal(t, at, msg.CreatedAt)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &body))
	assert.Equal(t, event.TaskID.String(), body["task_id"])
	assert.Equal(t, event.EventID().String(), body["event_id"])

	var meta domain.EventMetadata
	require.NoError(t, json.Unmarshal(msg.Metadata, &meta))
	assert.Equal(t, userID, meta.UserID)
}

func TestFromEvents(t *testing.T) {
	now := time.Now()
	msgs, err := outbox.FromEvents([]domain.DomainEvent{newTaskCompleted(now), newTaskCompleted(now)})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	msgs, err = outbox.FromEvents(nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMessage_State(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Minute)

	msg := &outbox.Message{}
	assert.True(t, msg.DueAt(now))
	assert.True(t, msg.CanRetry(3))

	msg.NextRetryAt = &later
	assert.False(t, msg.DueAt(now))
	assert.True(t, msg.DueAt(later))

	msg.RetryCount = 3
	assert.False(t, msg.CanRetry(3))

	msg.PublishedAt = &now
	assert.True(t, msg.IsPublished())
	assert.False(t, msg.DueAt(later))

	dead := &outbox.Message{DeadLetteredAt: &now}
	assert.True(t, dead.IsDead())
	assert.False(t, dead.DueAt(now))
}

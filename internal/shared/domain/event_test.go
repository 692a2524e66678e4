package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/felixgeelhaar/tempo/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	aggregateID := uuid.New()
	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.FixedZone("CET", 3600))

	event := domain.NewBaseEvent(aggregateID, "Plan", "planning.plan.created", at)

	assert.NotEqual(t, uuid.Nil, event.EventID())
	assert.Equal(t, aggregateID, event.AggregateID())
	assert.Equal(t, "Plan", event.AggregateType())
	assert.Equal(t, "planning.plan.created", event.RoutingKey())
	assert.Equal(t, time.UTC, event.OccurredAt().Location())
	assert.True(t, event.OccurredAt().Equal(at))
}

func TestBaseEvent_MetadataIsSerialized(t *testing.T) {
	event := newTestEvent(uuid.New(), time.Now())
	meta := domain.EventMetadata{
		CorrelationID: uuid.New(),
		CausationID:   uuid.New(),
		UserID:        uuid.New(),
	}
	event.SetMetadata(meta)

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded struct {
		Metadata domain.EventMetadata `json:"metadata"`
		Key      string               `json:"routing_key"`
	}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, meta, decoded.Metadata)
	assert.Equal(t, "test.thing.happened", decoded.Key)
}

package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/tempo/pkg/observability"
)

type stubPublisher struct {
	mu   sync.Mutex
	err  error
	keys []string
}

func (p *stubPublisher) Publish(_ context.Context, routingKey string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return p.err
}

func (p *stubPublisher) Close() error { return nil }

func (p *stubPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

func seed(t *testing.T, repo outbox.Repository, n int) []*outbox.Message {
	t.Helper()
	var msgs []*outbox.Message
	for i := 0; i < n; i++ {
		msg, err := outbox.NewMessage(newTaskCompleted(time.Now().Add(time.Duration(i) * time.Millisecond)))
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
	require.NoError(t, repo.SaveBatch(context.Background(), msgs))
	return msgs
}

func TestProcessor_PublishesAndMarks(t *testing.T) {
	repo := outbox.NewInMemoryRepository()
	seed(t, repo, 3)
	pub := &stubPublisher{}
	metrics := observability.NewInMemoryMetrics()

	p := outbox.NewProcessor(repo, pub, outbox.DefaultProcessorConfig(), nil, metrics)
	require.NoError(t, p.ProcessOnce(context.Background()))

	assert.Len(t, pub.published(), 3)
	for _, msg := range repo.Messages() {
		assert.True(t, msg.IsPublished())
	}
	assert.Equal(t, uint64(3), p.GetStats().PublishedCount)
	assert.Equal(t, int64(3), metrics.GetCounter(observability.MetricEventsPublished,
		observability.T("routing_key", "planning.task.completed")))

	require.NoError(t, p.ProcessOnce(context.Background()))
	assert.Len(t, pub.published(), 3)
}

func TestProcessor_BacksOffThenDeadLetters(t *testing.T) {
	repo := outbox.NewInMemoryRepository()
	seed(t, repo, 1)
	pub := &stubPublisher{err: errors.New("broker unavailable")}

	cfg := outbox.DefaultProcessorConfig()
	cfg.MaxRetries = 2
	cfg.RetryBackoffBase = time.Hour
	p := outbox.NewProcessor(repo, pub, cfg, nil, nil)

	require.NoError(t, p.ProcessOnce(context.Background()))
	msg := repo.Messages()[0]
	assert.Equal(t, 1, msg.RetryCount)
	require.NotNil(t, msg.NextRetryAt)
	assert.True(t, msg.NextRetryAt.After(time.Now().Add(50*time.Minute)))
	assert.False(t, msg.IsDead())

	// not due yet
	require.NoError(t, p.ProcessOnce(context.Background()))
	assert.Len(t, pub.published(), 1)

	past := time.Now().Add(-time.Second)
	msg.NextRetryAt = &past
	require.NoError(t, p.ProcessOnce(context.Background()))
	assert.True(t, msg.IsDead())
	require.NotNil(t, msg.DeadLetterReason)
	assert.Equal(t, "broker unavailable", *msg.DeadLetterReason)

	stats := p.GetStats()
	assert.Equal(t, uint64(1), stats.FailedCount)
	assert.Equal(t, uint64(1), stats.DeadCount)
	assert.Equal(t, "broker unavailable", stats.LastError)
}

func TestProcessor_StartStop(t *testing.T) {
	repo := outbox.NewInMemoryRepository()
	seed(t, repo, 2)
	pub := &stubPublisher{}

	cfg := outbox.DefaultProcessorConfig()
	cfg.PollInterval = 5 * time.Millisecond
	p := outbox.NewProcessor(repo, pub, cfg, nil, nil)

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())

	assert.Eventually(t, func() bool { return len(pub.published()) == 2 }, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
	assert.False(t, p.IsRunning())
}

func TestInMemoryRepository_DeleteOld(t *testing.T) {
	repo := outbox.NewInMemoryRepository()
	msgs := seed(t, repo, 2)
	old := time.Now().AddDate(0, 0, -30)
	msgs[0].PublishedAt = &old

	deleted, err := repo.DeleteOld(context.Background(), 14)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Len(t, repo.Messages(), 1)
}

package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/tempo/internal/shared/domain"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/tempo/pkg/observability"
)

// ProcessorConfig tunes polling and retry.
type ProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     500 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
	}
}

// Processor relays outbox messages to the broker. Failed publishes back off
// exponentially and are dead-lettered after MaxRetries attempts.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger
	metrics   observability.Metrics

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger, metrics observability.Metrics) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start launches the polling loop. Calling Start on a running processor is
// a no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.running = true
	p.stopChan = make(chan struct{})

	p.wg.Add(1)
	go p.run(ctx, p.stopChan)

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
	)
	return nil
}

// Stop waits for the in-flight batch to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("outbox processor stopped")
}

func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Processor) run(ctx context.Context, stop <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error("failed to process outbox batch", "error", err)
			}
		}
	}
}

// ProcessOnce publishes one batch synchronously.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	messages, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.recordError(err)
		return err
	}
	p.recordLag(messages)

	for _, msg := range messages {
		p.process(ctx, msg)
	}
	return nil
}

func (p *Processor) process(ctx context.Context, msg *Message) {
	tags := []observability.Tag{observability.T("routing_key", msg.RoutingKey)}

	err := p.publisher.Publish(ctx, msg.RoutingKey, msg.Payload)
	if err == nil {
		if markErr := p.repo.MarkPublished(ctx, msg.ID); markErr != nil {
			p.logger.Error("failed to mark message as published", "id", msg.ID, "event_id", msg.EventID, "error", markErr)
			return
		}
		p.metrics.Counter(observability.MetricEventsPublished, 1, tags...)
		p.statsMu.Lock()
		p.stats.PublishedCount++
		p.statsMu.Unlock()
		return
	}

	meta := decodeMetadata(msg.Metadata)
	p.logger.Warn("failed to publish message",
		"id", msg.ID,
		"routing_key", msg.RoutingKey,
		"event_id", msg.EventID,
		"correlation_id", meta.CorrelationID,
		"user_id", meta.UserID,
		"attempt", msg.RetryCount+1,
		"error", err,
	)
	p.recordError(err)

	if p.shouldDeadLetter(msg) {
		p.metrics.Counter(observability.MetricEventsDead, 1, tags...)
		p.statsMu.Lock()
		p.stats.DeadCount++
		p.statsMu.Unlock()
		if markErr := p.repo.MarkDead(ctx, msg.ID, err.Error()); markErr != nil {
			p.logger.Error("failed to dead-letter message", "id", msg.ID, "error", markErr)
		}
		return
	}

	p.metrics.Counter(observability.MetricEventsFailed, 1, tags...)
	p.statsMu.Lock()
	p.stats.FailedCount++
	p.statsMu.Unlock()
	nextRetryAt := time.Now().Add(p.retryBackoff(msg.RetryCount + 1))
	if markErr := p.repo.MarkFailed(ctx, msg.ID, err.Error(), nextRetryAt); markErr != nil {
		p.logger.Error("failed to record publish failure", "id", msg.ID, "error", markErr)
	}
}

func (p *Processor) shouldDeadLetter(msg *Message) bool {
	if p.config.MaxRetries <= 0 {
		return true
	}
	return msg.RetryCount+1 >= p.config.MaxRetries
}

// retryBackoff doubles from the base for each attempt, capped at the max.
func (p *Processor) retryBackoff(attempt int) time.Duration {
	base := p.config.RetryBackoffBase
	if base <= 0 {
		base = time.Second
	}
	limit := p.config.RetryBackoffMax
	if limit <= 0 {
		limit = time.Minute
	}

	backoff := base
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= limit {
			return limit
		}
	}
	return min(backoff, limit)
}

func decodeMetadata(raw json.RawMessage) domain.EventMetadata {
	var meta domain.EventMetadata
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &meta)
	}
	return meta
}

// Stats is a snapshot of processor activity.
type Stats struct {
	IsRunning       bool       `json:"is_running"`
	PublishedCount  uint64     `json:"published_count"`
	FailedCount     uint64     `json:"failed_count"`
	DeadCount       uint64     `json:"dead_count"`
	LagSeconds      float64    `json:"lag_seconds"`
	LastError       string     `json:"last_error,omitempty"`
	LastErrorAt     *time.Time `json:"last_error_at,omitempty"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
}

func (p *Processor) GetStats() Stats {
	running := p.IsRunning()
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	stats := p.stats
	stats.IsRunning = running
	return stats
}

func (p *Processor) recordError(err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	now := time.Now()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &now
}

// recordLag tracks how long the oldest due message has waited.
func (p *Processor) recordLag(messages []*Message) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	now := time.Now()
	p.stats.LastProcessedAt = &now
	p.stats.LagSeconds = 0
	for _, msg := range messages {
		if lag := now.Sub(msg.CreatedAt).Seconds(); lag > p.stats.LagSeconds {
			p.stats.LagSeconds = lag
		}
	}
}

package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// ExchangeName is the topic exchange planning events are published to.
	ExchangeName = "tempo.domain.events"
	// DefaultQueueName is the durable queue the worker consumes.
	DefaultQueueName = "tempo.worker"
)

// dial connects and declares the durable topic exchange.
func dial(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return conn, ch, nil
}

// RabbitMQPublisher publishes persistent JSON messages to the exchange.
type RabbitMQPublisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
}

func NewRabbitMQPublisher(url string, logger *slog.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, ch, err := dial(url, ExchangeName)
	if err != nil {
		return nil, err
	}
	logger.Info("RabbitMQ publisher connected", "exchange", ExchangeName)
	return &RabbitMQPublisher{conn: conn, channel: ch, logger: logger}, nil
}

// Publish is serialized because amqp channels are not safe for concurrent
// publishing.
func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.channel.PublishWithContext(ctx, ExchangeName, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	p.logger.DebugContext(ctx, "message published", "routing_key", routingKey, "size", len(payload))
	return nil
}

// Ping reports whether the broker connection is still open.
func (p *RabbitMQPublisher) Ping(context.Context) error {
	if p.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		p.logger.Warn("error closing channel", "error", err)
	}
	return p.conn.Close()
}

// RabbitMQConsumer binds a durable queue to the routing keys of a Registry
// and dispatches deliveries to it. Failed dispatches are requeued once and
// then dropped, since handlers here are best-effort side effects.
type RabbitMQConsumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string
	registry *Registry
	logger   *slog.Logger
}

func NewRabbitMQConsumer(url, queue string, registry *Registry, logger *slog.Logger) (*RabbitMQConsumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if queue == "" {
		queue = DefaultQueueName
	}

	conn, ch, err := dial(url, ExchangeName)
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	for _, key := range registry.EventTypes() {
		if err := ch.QueueBind(queue, key, ExchangeName, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	logger.Info("RabbitMQ consumer connected", "queue", queue, "bindings", registry.EventTypes())
	return &RabbitMQConsumer{conn: conn, channel: ch, queue: queue, registry: registry, logger: logger}, nil
}

// Run consumes until ctx is cancelled or the delivery channel closes.
func (c *RabbitMQConsumer) Run(ctx context.Context) error {
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *RabbitMQConsumer) handle(ctx context.Context, d amqp.Delivery) {
	event, err := DecodeEvent(d.RoutingKey, d.Body)
	if err != nil {
		c.logger.Error("discarding undecodable delivery", "routing_key", d.RoutingKey, "error", err)
		_ = d.Ack(false)
		return
	}

	if err := c.registry.Dispatch(ctx, event); err != nil {
		requeue := !d.Redelivered
		c.logger.Warn("event dispatch failed", "routing_key", event.RoutingKey, "event_id", event.EventID, "requeue", requeue, "error", err)
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

func (c *RabbitMQConsumer) Close() error {
	if err := c.channel.Close(); err != nil {
		c.logger.Warn("error closing channel", "error", err)
	}
	return c.conn.Close()
}

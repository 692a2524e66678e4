package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/database"
)

// PostgresRepository stores the outbox in PostgreSQL through pgx.
type PostgresRepository struct {
	conn database.Connection
}

func NewPostgresRepository(conn database.Connection) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

func (r *PostgresRepository) Save(ctx context.Context, msg *Message) error {
	return r.SaveBatch(ctx, []*Message{msg})
}

func (r *PostgresRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return database.InTx(ctx, r.conn, func(exec database.Executor) error {
		for _, msg := range msgs {
			var metadata []byte
			if len(msg.Metadata) > 0 {
				metadata = msg.Metadata
			}
			err := exec.QueryRow(ctx, `
				INSERT INTO outbox (
					event_id, aggregate_type, aggregate_id, event_type, routing_key,
					payload, metadata, created_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING id`,
				msg.EventID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.RoutingKey,
				[]byte(msg.Payload), metadata, msg.CreatedAt,
			).Scan(&msg.ID)
			if err != nil {
				return fmt.Errorf("insert outbox message %s: %w", msg.EventID, err)
			}
		}
		return nil
	})
}

func (r *PostgresRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, metadata, created_at, published_at, next_retry_at, retry_count,
			last_error, dead_lettered_at, dead_letter_reason
		FROM outbox
		WHERE published_at IS NULL
			AND dead_lettered_at IS NULL
			AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var (
			msg               Message
			payload, metadata []byte
		)
		if err := rows.Scan(
			&msg.ID, &msg.EventID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.RoutingKey,
			&payload, &metadata, &msg.CreatedAt, &msg.PublishedAt, &msg.NextRetryAt, &msg.RetryCount,
			&msg.LastError, &msg.DeadLetteredAt, &msg.DeadLetterReason,
		); err != nil {
			return nil, err
		}
		msg.Payload = payload
		msg.Metadata = metadata
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

func (r *PostgresRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`UPDATE outbox SET published_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`UPDATE outbox SET retry_count = retry_count + 1, last_error = $2, next_retry_at = $3 WHERE id = $1`,
		id, errMsg, nextRetryAt)
	return err
}

func (r *PostgresRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`UPDATE outbox
		 SET retry_count = retry_count + 1, last_error = $2, dead_lettered_at = NOW(), dead_letter_reason = $2
		 WHERE id = $1`,
		id, reason)
	return err
}

func (r *PostgresRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	res, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < NOW() - make_interval(days => $1)`,
		olderThanDays)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// NewRepository picks the implementation matching conn's driver.
func NewRepository(conn database.Connection) Repository {
	if conn.Driver() == database.DriverPostgres {
		return NewPostgresRepository(conn)
	}
	return NewSQLiteRepository(conn)
}

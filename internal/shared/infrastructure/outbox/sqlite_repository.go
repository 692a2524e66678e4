package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// SQLiteRepository stores the outbox in the local database.
type SQLiteRepository struct {
	conn database.Connection
}

func NewSQLiteRepository(conn database.Connection) *SQLiteRepository {
	return &SQLiteRepository{conn: conn}
}

const sqliteInsert = `
	INSERT INTO outbox (
		event_id, aggregate_type, aggregate_id, event_type, routing_key,
		payload, metadata, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id`

func (r *SQLiteRepository) Save(ctx context.Context, msg *Message) error {
	return r.SaveBatch(ctx, []*Message{msg})
}

func (r *SQLiteRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return database.InTx(ctx, r.conn, func(exec database.Executor) error {
		for _, msg := range msgs {
			var metadata any
			if len(msg.Metadata) > 0 {
				metadata = string(msg.Metadata)
			}
			err := exec.QueryRow(ctx, sqliteInsert,
				msg.EventID.String(),
				msg.AggregateType,
				msg.AggregateID.String(),
				msg.EventType,
				msg.RoutingKey,
				string(msg.Payload),
				metadata,
				database.FormatTime(msg.CreatedAt),
			).Scan(&msg.ID)
			if err != nil {
				return fmt.Errorf("insert outbox message %s: %w", msg.EventID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, metadata, created_at, published_at, next_retry_at, retry_count,
			last_error, dead_lettered_at, dead_letter_reason
		FROM outbox
		WHERE published_at IS NULL
			AND dead_lettered_at IS NULL
			AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at, id
		LIMIT ?`,
		database.FormatTime(time.Now()), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func scanSQLiteMessage(row database.Row) (*Message, error) {
	var (
		msg                                        Message
		eventID, aggregateID, payload, createdAt   string
		metadata, publishedAt, nextRetryAt, deadAt sql.NullString
		lastError, deadReason                      sql.NullString
	)
	if err := row.Scan(
		&msg.ID, &eventID, &msg.AggregateType, &aggregateID, &msg.EventType, &msg.RoutingKey,
		&payload, &metadata, &createdAt, &publishedAt, &nextRetryAt, &msg.RetryCount,
		&lastError, &deadAt, &deadReason,
	); err != nil {
		return nil, err
	}

	var err error
	if msg.EventID, err = uuid.Parse(eventID); err != nil {
		return nil, fmt.Errorf("outbox %d event_id: %w", msg.ID, err)
	}
	if msg.AggregateID, err = uuid.Parse(aggregateID); err != nil {
		return nil, fmt.Errorf("outbox %d aggregate_id: %w", msg.ID, err)
	}
	if msg.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("outbox %d created_at: %w", msg.ID, err)
	}
	if msg.PublishedAt, err = database.ParseNullTime(publishedAt); err != nil {
		return nil, err
	}
	if msg.NextRetryAt, err = database.ParseNullTime(nextRetryAt); err != nil {
		return nil, err
	}
	if msg.DeadLetteredAt, err = database.ParseNullTime(deadAt); err != nil {
		return nil, err
	}

	msg.Payload = []byte(payload)
	if metadata.Valid {
		msg.Metadata = []byte(metadata.String)
	}
	if lastError.Valid {
		msg.LastError = &lastError.String
	}
	if deadReason.Valid {
		msg.DeadLetterReason = &deadReason.String
	}
	return &msg, nil
}

func (r *SQLiteRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`UPDATE outbox SET published_at = ? WHERE id = ?`,
		database.FormatTime(time.Now()), id,
	)
	return err
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`UPDATE outbox SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ? WHERE id = ?`,
		errMsg, database.FormatTime(nextRetryAt), id,
	)
	return err
}

func (r *SQLiteRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`UPDATE outbox SET retry_count = retry_count + 1, last_error = ?, dead_lettered_at = ?, dead_letter_reason = ? WHERE id = ?`,
		reason, database.FormatTime(time.Now()), reason, id,
	)
	return err
}

func (r *SQLiteRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	res, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < ?`,
		database.FormatTime(cutoff),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresRescheduleLogRepository writes the reschedule audit trail through
// database/sql and lib/pq. The log is append-only, so it does not need to
// share the plan transaction.
type PostgresRescheduleLogRepository struct {
	db *sql.DB
}

func NewPostgresRescheduleLogRepository(db *sql.DB) *PostgresRescheduleLogRepository {
	return &PostgresRescheduleLogRepository{db: db}
}

// OpenRescheduleLog connects to PostgreSQL with lib/pq.
func OpenRescheduleLog(ctx context.Context, url string) (*PostgresRescheduleLogRepository, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open reschedule log database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping reschedule log database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return NewPostgresRescheduleLogRepository(db), nil
}

// Close releases the connection pool.
func (r *PostgresRescheduleLogRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresRescheduleLogRepository) Append(ctx context.Context, record domain.RescheduleRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reschedule_log (
			id, plan_id, user_id, reschedule_type, source, rescue, minutes_ahead_behind,
			scheduled_task_ids, deferred_task_ids, justification, applied_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		record.ID.String(),
		record.PlanID.String(),
		record.UserID.String(),
		string(record.Type),
		record.Source,
		record.Rescue,
		record.MinutesAheadBehind,
		pq.Array(idStrings(record.ScheduledTaskIDs)),
		pq.Array(idStrings(record.DeferredTaskIDs)),
		record.Justification,
		record.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("append reschedule log: %w", err)
	}
	return nil
}

func (r *PostgresRescheduleLogRepository) ListByPlan(ctx context.Context, planID uuid.UUID) ([]domain.RescheduleRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, plan_id, user_id, reschedule_type, source, rescue, minutes_ahead_behind,
			scheduled_task_ids, deferred_task_ids, justification, applied_at
		FROM reschedule_log
		WHERE plan_id = $1
		ORDER BY applied_at`,
		planID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.RescheduleRecord
	for rows.Next() {
		var (
			rec                 domain.RescheduleRecord
			id, plan, user, typ string
			scheduled, deferred []string
		)
		if err := rows.Scan(
			&id, &plan, &user, &typ, &rec.Source, &rec.Rescue, &rec.MinutesAheadBehind,
			pq.Array(&scheduled), pq.Array(&deferred), &rec.Justification, &rec.AppliedAt,
		); err != nil {
			return nil, err
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("reschedule log id: %w", err)
		}
		if rec.PlanID, err = uuid.Parse(plan); err != nil {
			return nil, fmt.Errorf("reschedule log %s plan_id: %w", id, err)
		}
		if rec.UserID, err = uuid.Parse(user); err != nil {
			return nil, fmt.Errorf("reschedule log %s user_id: %w", id, err)
		}
		if rec.ScheduledTaskIDs, err = parseIDs(scheduled); err != nil {
			return nil, fmt.Errorf("reschedule log %s: %w", id, err)
		}
		if rec.DeferredTaskIDs, err = parseIDs(deferred); err != nil {
			return nil, fmt.Errorf("reschedule log %s: %w", id, err)
		}
		rec.Type = domain.RescheduleType(typ)
		rec.AppliedAt = rec.AppliedAt.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

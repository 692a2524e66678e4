package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// SQLiteRescheduleLogRepository stores the reschedule audit trail locally.
// Task id lists are kept as JSON arrays.
type SQLiteRescheduleLogRepository struct {
	conn database.Connection
}

func NewSQLiteRescheduleLogRepository(conn database.Connection) *SQLiteRescheduleLogRepository {
	return &SQLiteRescheduleLogRepository{conn: conn}
}

func (r *SQLiteRescheduleLogRepository) Append(ctx context.Context, record domain.RescheduleRecord) error {
	scheduled, err := json.Marshal(idStrings(record.ScheduledTaskIDs))
	if err != nil {
		return err
	}
	deferred, err := json.Marshal(idStrings(record.DeferredTaskIDs))
	if err != nil {
		return err
	}

	_, err = database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `
		INSERT INTO reschedule_log (
			id, plan_id, user_id, reschedule_type, source, rescue, minutes_ahead_behind,
			scheduled_task_ids, deferred_task_ids, justification, applied_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID.String(),
		record.PlanID.String(),
		record.UserID.String(),
		string(record.Type),
		record.Source,
		boolToInt(record.Rescue),
		record.MinutesAheadBehind,
		string(scheduled),
		string(deferred),
		record.Justification,
		database.FormatTime(record.AppliedAt),
	)
	if err != nil {
		return fmt.Errorf("append reschedule log: %w", err)
	}
	return nil
}

// ListByPlan returns the plan's reschedules, oldest first.
func (r *SQLiteRescheduleLogRepository) ListByPlan(ctx context.Context, planID uuid.UUID) ([]domain.RescheduleRecord, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, `
		SELECT id, plan_id, user_id, reschedule_type, source, rescue, minutes_ahead_behind,
			scheduled_task_ids, deferred_task_ids, justification, applied_at
		FROM reschedule_log
		WHERE plan_id = ?
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
			rec                                      domain.RescheduleRecord
			id, plan, user, typ, scheduled, deferred string
			applied                                  string
		)
		if err := rows.Scan(
			&id, &plan, &user, &typ, &rec.Source, &rec.Rescue, &rec.MinutesAheadBehind,
			&scheduled, &deferred, &rec.Justification, &applied,
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
		if rec.AppliedAt, err = database.ParseTime(applied); err != nil {
			return nil, fmt.Errorf("reschedule log %s applied_at: %w", id, err)
		}
		if rec.ScheduledTaskIDs, err = decodeIDs(scheduled); err != nil {
			return nil, fmt.Errorf("reschedule log %s: %w", id, err)
		}
		if rec.DeferredTaskIDs, err = decodeIDs(deferred); err != nil {
			return nil, fmt.Errorf("reschedule log %s: %w", id, err)
		}
		rec.Type = domain.RescheduleType(typ)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("task id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func decodeIDs(raw string) ([]uuid.UUID, error) {
	var s []string
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, err
	}
	return parseIDs(s)
}

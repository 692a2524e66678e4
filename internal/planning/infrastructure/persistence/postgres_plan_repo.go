package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// PostgresPlanRepository implements PlanRepository and HistoryRepository
// on PostgreSQL through pgx.
type PostgresPlanRepository struct {
	conn database.Connection
}

// NewPostgresPlanRepository creates a new PostgreSQL plan repository.
func NewPostgresPlanRepository(conn database.Connection) *PostgresPlanRepository {
	return &PostgresPlanRepository{conn: conn}
}

// Create persists a new plan with its tasks.
func (r *PostgresPlanRepository) Create(ctx context.Context, plan *domain.Plan) error {
	err := database.InTx(ctx, r.conn, func(exec database.Executor) error {
		_, err := exec.Exec(ctx, `
			INSERT INTO plans (`+planColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			plan.ID(),
			plan.UserID(),
			plan.Date(),
			plan.CapacityScore(),
			plan.Mode().String(),
			plan.AvailableMinutes(),
			plan.Justification(),
			plan.Rescue(),
			plan.Version()+1,
			plan.CreatedAt(),
			plan.UpdatedAt(),
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return domain.ErrPlanAlreadyExists
			}
			return fmt.Errorf("insert plan: %w", err)
		}
		return r.insertTasks(ctx, exec, plan)
	})
	if err != nil {
		return err
	}
	plan.MarkPersisted()
	return nil
}

// Update applies optimistic concurrency: the row only changes while its
// version equals the version the plan was loaded at.
func (r *PostgresPlanRepository) Update(ctx context.Context, plan *domain.Plan) error {
	err := database.InTx(ctx, r.conn, func(exec database.Executor) error {
		res, err := exec.Exec(ctx, `
			UPDATE plans
			SET capacity_score = $1, mode = $2, available_minutes = $3, justification = $4,
				rescue = $5, version = $6, updated_at = $7
			WHERE id = $8 AND version = $9`,
			plan.CapacityScore(),
			plan.Mode().String(),
			plan.AvailableMinutes(),
			plan.Justification(),
			plan.Rescue(),
			plan.Version()+1,
			plan.UpdatedAt(),
			plan.ID(),
			plan.Version(),
		)
		if err != nil {
			return fmt.Errorf("update plan: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists bool
			if err := exec.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM plans WHERE id = $1)`, plan.ID()).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return domain.ErrPlanNotFound
			}
			return domain.ErrConcurrentModification
		}

		if _, err := exec.Exec(ctx, `DELETE FROM plan_tasks WHERE plan_id = $1`, plan.ID()); err != nil {
			return fmt.Errorf("clear plan tasks: %w", err)
		}
		return r.insertTasks(ctx, exec, plan)
	})
	if err != nil {
		return err
	}
	plan.MarkPersisted()
	return nil
}

func (r *PostgresPlanRepository) insertTasks(ctx context.Context, exec database.Executor, plan *domain.Plan) error {
	for i, t := range plan.Tasks() {
		var (
			riskLevel, momentum *string
			riskPercent         *int
		)
		if t.SkipRisk != nil {
			level := string(t.SkipRisk.Level)
			riskLevel, riskPercent = &level, &t.SkipRisk.Percentage
		}
		if t.MomentumState != nil {
			m := string(*t.MomentumState)
			momentum = &m
		}
		_, err := exec.Exec(ctx, `
			INSERT INTO plan_tasks (plan_id, position, `+taskColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
			plan.ID(),
			i+1,
			t.TaskID,
			optionalString(t.ExternalID),
			t.Title,
			int(t.Priority),
			optionalString(t.Project),
			t.DueDate,
			t.OriginalMinutes,
			t.AdjustedMinutes,
			t.ScheduledStart,
			t.ScheduledEnd,
			t.ActualStart,
			t.ActualEnd,
			t.ActualMinutes,
			t.Completed,
			t.Justification,
			optionalString(t.DeferredReason),
			riskLevel,
			riskPercent,
			momentum,
		)
		if err != nil {
			return fmt.Errorf("insert task %s: %w", t.TaskID, err)
		}
	}
	return nil
}

func (r *PostgresPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	row := exec.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id)
	return r.findOne(ctx, exec, row)
}

func (r *PostgresPlanRepository) FindByUserAndDate(ctx context.Context, userID uuid.UUID, date time.Time) (*domain.Plan, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	row := exec.QueryRow(ctx,
		`SELECT `+planColumns+` FROM plans WHERE user_id = $1 AND plan_date = $2`,
		userID, domain.NormalizeDate(date),
	)
	return r.findOne(ctx, exec, row)
}

func (r *PostgresPlanRepository) findOne(ctx context.Context, exec database.Executor, row database.Row) (*domain.Plan, error) {
	rec, err := scanPostgresPlan(row)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tasks, err := r.loadTasks(ctx, exec, rec.id)
	if err != nil {
		return nil, err
	}
	return rec.plan(tasks), nil
}

func (r *PostgresPlanRepository) ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*domain.Plan, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx,
		`SELECT `+planColumns+` FROM plans WHERE user_id = $1 AND plan_date >= $2 ORDER BY plan_date`,
		userID, domain.NormalizeDate(since),
	)
	if err != nil {
		return nil, err
	}

	var recs []planRecord
	for rows.Next() {
		rec, err := scanPostgresPlan(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	plans := make([]*domain.Plan, 0, len(recs))
	for _, rec := range recs {
		tasks, err := r.loadTasks(ctx, exec, rec.id)
		if err != nil {
			return nil, err
		}
		plans = append(plans, rec.plan(tasks))
	}
	return plans, nil
}

func (r *PostgresPlanRepository) loadTasks(ctx context.Context, exec database.Executor, planID uuid.UUID) ([]domain.ScheduledTask, error) {
	rows, err := exec.Query(ctx,
		`SELECT `+taskColumns+` FROM plan_tasks WHERE plan_id = $1 ORDER BY position`,
		planID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.ScheduledTask
	for rows.Next() {
		var (
			t                             domain.ScheduledTask
			priority                      int
			externalID, project, deferred *string
			riskLevel, momentum           *string
			actualMinutes, riskPercent    *int
		)
		if err := rows.Scan(
			&t.TaskID, &externalID, &t.Title, &priority, &project, &t.DueDate,
			&t.OriginalMinutes, &t.AdjustedMinutes, &t.ScheduledStart, &t.ScheduledEnd,
			&t.ActualStart, &t.ActualEnd, &actualMinutes, &t.Completed, &t.Justification,
			&deferred, &riskLevel, &riskPercent, &momentum,
		); err != nil {
			return nil, fmt.Errorf("plan %s: %w", planID, err)
		}
		t.Priority = domain.Priority(priority)
		t.ExternalID = derefString(externalID)
		t.Project = derefString(project)
		t.DeferredReason = derefString(deferred)
		if actualMinutes != nil {
			t.ActualMinutes = *actualMinutes
		}
		if riskLevel != nil {
			t.SkipRisk = &domain.SkipRisk{Level: domain.RiskLevel(*riskLevel)}
			if riskPercent != nil {
				t.SkipRisk.Percentage = *riskPercent
			}
		}
		if momentum != nil {
			m := domain.MomentumState(*momentum)
			t.MomentumState = &m
		}
		tasks = append(tasks, utcTimes(t))
	}
	return tasks, rows.Err()
}

func (r *PostgresPlanRepository) RecentCompletions(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CompletionSample, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, `
		SELECT t.original_minutes, t.actual_minutes
		FROM plan_tasks t
		JOIN plans p ON p.id = t.plan_id
		WHERE p.user_id = $1 AND t.completed
			AND t.original_minutes > 0 AND t.actual_minutes > 0
		ORDER BY t.actual_end DESC NULLS LAST
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CompletionSample
	for rows.Next() {
		var s domain.CompletionSample
		if err := rows.Scan(&s.EstimatedMinutes, &s.ActualMinutes); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresPlanRepository) RecentOutcomes(ctx context.Context, userID uuid.UUID, limit int, before time.Time) ([]domain.TaskOutcome, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, `
		SELECT t.scheduled_start, t.actual_end, t.completed
		FROM plan_tasks t
		JOIN plans p ON p.id = t.plan_id
		WHERE p.user_id = $1 AND t.scheduled_start IS NOT NULL AND t.scheduled_start < $2
		ORDER BY t.scheduled_start DESC
		LIMIT $3`,
		userID, before, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TaskOutcome
	for rows.Next() {
		var o domain.TaskOutcome
		if err := rows.Scan(&o.ScheduledStart, &o.CompletedAt, &o.Completed); err != nil {
			return nil, err
		}
		o.ScheduledStart = o.ScheduledStart.UTC()
		if o.CompletedAt != nil {
			o.CompletedAt = domain.TimePtr(*o.CompletedAt)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanPostgresPlan(row database.Row) (planRecord, error) {
	var (
		rec  planRecord
		mode string
	)
	if err := row.Scan(
		&rec.id, &rec.userID, &rec.date, &rec.capacityScore, &mode, &rec.availableMinutes,
		&rec.justification, &rec.rescue, &rec.version, &rec.createdAt, &rec.updatedAt,
	); err != nil {
		return planRecord{}, err
	}
	rec.mode = domain.Mode(mode)
	rec.createdAt = rec.createdAt.UTC()
	rec.updatedAt = rec.updatedAt.UTC()
	return rec, nil
}

// utcTimes normalizes the instants pgx returns in the session time zone.
func utcTimes(t domain.ScheduledTask) domain.ScheduledTask {
	for _, p := range []**time.Time{&t.DueDate, &t.ScheduledStart, &t.ScheduledEnd, &t.ActualStart, &t.ActualEnd} {
		if *p != nil {
			*p = domain.TimePtr(**p)
		}
	}
	return t
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

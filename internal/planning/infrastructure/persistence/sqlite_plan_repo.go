package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// SQLitePlanRepository implements PlanRepository and HistoryRepository on
// the local database. Instants are stored as fixed-width UTC text.
type SQLitePlanRepository struct {
	conn database.Connection
}

// NewSQLitePlanRepository creates a new SQLite plan repository.
func NewSQLitePlanRepository(conn database.Connection) *SQLitePlanRepository {
	return &SQLitePlanRepository{conn: conn}
}

const planColumns = `id, user_id, plan_date, capacity_score, mode, available_minutes,
	justification, rescue, version, created_at, updated_at`

const taskColumns = `task_id, external_id, title, priority, project, due_date,
	original_minutes, adjusted_minutes, scheduled_start, scheduled_end,
	actual_start, actual_end, actual_minutes, completed, justification,
	deferred_reason, skip_risk_level, skip_risk_percent, momentum_state`

// Create persists a new plan with its tasks.
func (r *SQLitePlanRepository) Create(ctx context.Context, plan *domain.Plan) error {
	err := database.InTx(ctx, r.conn, func(exec database.Executor) error {
		_, err := exec.Exec(ctx, `
			INSERT INTO plans (`+planColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			plan.ID().String(),
			plan.UserID().String(),
			plan.Date().Format(database.DateLayout),
			plan.CapacityScore(),
			plan.Mode().String(),
			plan.AvailableMinutes(),
			plan.Justification(),
			boolToInt(plan.Rescue()),
			plan.Version()+1,
			database.FormatTime(plan.CreatedAt()),
			database.FormatTime(plan.UpdatedAt()),
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

// Update rewrites the plan row and replaces its tasks when the stored
// version still matches the version the plan was loaded at.
func (r *SQLitePlanRepository) Update(ctx context.Context, plan *domain.Plan) error {
	err := database.InTx(ctx, r.conn, func(exec database.Executor) error {
		res, err := exec.Exec(ctx, `
			UPDATE plans
			SET capacity_score = ?, mode = ?, available_minutes = ?, justification = ?,
				rescue = ?, version = ?, updated_at = ?
			WHERE id = ? AND version = ?`,
			plan.CapacityScore(),
			plan.Mode().String(),
			plan.AvailableMinutes(),
			plan.Justification(),
			boolToInt(plan.Rescue()),
			plan.Version()+1,
			database.FormatTime(plan.UpdatedAt()),
			plan.ID().String(),
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
			return r.missingOrStale(ctx, exec, plan.ID())
		}

		if _, err := exec.Exec(ctx, `DELETE FROM plan_tasks WHERE plan_id = ?`, plan.ID().String()); err != nil {
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

func (r *SQLitePlanRepository) missingOrStale(ctx context.Context, exec database.Executor, id uuid.UUID) error {
	var version int
	err := exec.QueryRow(ctx, `SELECT version FROM plans WHERE id = ?`, id.String()).Scan(&version)
	if database.IsNoRows(err) {
		return domain.ErrPlanNotFound
	}
	if err != nil {
		return err
	}
	return domain.ErrConcurrentModification
}

func (r *SQLitePlanRepository) insertTasks(ctx context.Context, exec database.Executor, plan *domain.Plan) error {
	for i, t := range plan.Tasks() {
		var riskLevel, riskPercent, momentum any
		if t.SkipRisk != nil {
			riskLevel = string(t.SkipRisk.Level)
			riskPercent = t.SkipRisk.Percentage
		}
		if t.MomentumState != nil {
			momentum = string(*t.MomentumState)
		}
		_, err := exec.Exec(ctx, `
			INSERT INTO plan_tasks (plan_id, position, `+taskColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			plan.ID().String(),
			i+1,
			t.TaskID.String(),
			nullString(t.ExternalID),
			t.Title,
			int(t.Priority),
			nullString(t.Project),
			database.NullTime(t.DueDate),
			t.OriginalMinutes,
			t.AdjustedMinutes,
			database.NullTime(t.ScheduledStart),
			database.NullTime(t.ScheduledEnd),
			database.NullTime(t.ActualStart),
			database.NullTime(t.ActualEnd),
			t.ActualMinutes,
			boolToInt(t.Completed),
			t.Justification,
			nullString(t.DeferredReason),
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

// FindByID returns nil when the plan does not exist.
func (r *SQLitePlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	row := exec.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id.String())
	return r.findOne(ctx, exec, row)
}

// FindByUserAndDate returns nil when the user has no plan for the date.
func (r *SQLitePlanRepository) FindByUserAndDate(ctx context.Context, userID uuid.UUID, date time.Time) (*domain.Plan, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	row := exec.QueryRow(ctx,
		`SELECT `+planColumns+` FROM plans WHERE user_id = ? AND plan_date = ?`,
		userID.String(), domain.NormalizeDate(date).Format(database.DateLayout),
	)
	return r.findOne(ctx, exec, row)
}

func (r *SQLitePlanRepository) findOne(ctx context.Context, exec database.Executor, row database.Row) (*domain.Plan, error) {
	rec, err := scanSQLitePlan(row)
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

// ListSince returns plans dated on or after since, oldest first.
func (r *SQLitePlanRepository) ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*domain.Plan, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx,
		`SELECT `+planColumns+` FROM plans WHERE user_id = ? AND plan_date >= ? ORDER BY plan_date`,
		userID.String(), domain.NormalizeDate(since).Format(database.DateLayout),
	)
	if err != nil {
		return nil, err
	}

	// Drain the plan rows before loading tasks: the local database runs
	// on a single connection.
	var recs []planRecord
	for rows.Next() {
		rec, err := scanSQLitePlan(rows)
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

func (r *SQLitePlanRepository) loadTasks(ctx context.Context, exec database.Executor, planID uuid.UUID) ([]domain.ScheduledTask, error) {
	rows, err := exec.Query(ctx,
		`SELECT `+taskColumns+` FROM plan_tasks WHERE plan_id = ? ORDER BY position`,
		planID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.ScheduledTask
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", planID, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// RecentCompletions returns completed tasks with both durations known,
// most recently finished first.
func (r *SQLitePlanRepository) RecentCompletions(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CompletionSample, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, `
		SELECT t.original_minutes, t.actual_minutes
		FROM plan_tasks t
		JOIN plans p ON p.id = t.plan_id
		WHERE p.user_id = ? AND t.completed = 1
			AND t.original_minutes > 0 AND t.actual_minutes > 0
		ORDER BY t.actual_end DESC
		LIMIT ?`,
		userID.String(), limit,
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

// RecentOutcomes returns tasks whose window began before the given time,
// newest first.
func (r *SQLitePlanRepository) RecentOutcomes(ctx context.Context, userID uuid.UUID, limit int, before time.Time) ([]domain.TaskOutcome, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, `
		SELECT t.scheduled_start, t.actual_end, t.completed
		FROM plan_tasks t
		JOIN plans p ON p.id = t.plan_id
		WHERE p.user_id = ? AND t.scheduled_start IS NOT NULL AND t.scheduled_start < ?
		ORDER BY t.scheduled_start DESC
		LIMIT ?`,
		userID.String(), database.FormatTime(before), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TaskOutcome
	for rows.Next() {
		var (
			start     string
			actualEnd sql.NullString
			completed bool
		)
		if err := rows.Scan(&start, &actualEnd, &completed); err != nil {
			return nil, err
		}
		o := domain.TaskOutcome{Completed: completed}
		if o.ScheduledStart, err = database.ParseTime(start); err != nil {
			return nil, err
		}
		if o.CompletedAt, err = database.ParseNullTime(actualEnd); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// planRecord is a plans row before its tasks are attached.
type planRecord struct {
	id               uuid.UUID
	userID           uuid.UUID
	date             time.Time
	capacityScore    int
	mode             domain.Mode
	availableMinutes int
	justification    string
	rescue           bool
	version          int
	createdAt        time.Time
	updatedAt        time.Time
}

func (p planRecord) plan(tasks []domain.ScheduledTask) *domain.Plan {
	return domain.RehydratePlan(
		p.id, p.userID, p.date, p.capacityScore, p.mode, p.availableMinutes,
		p.justification, p.rescue, tasks, p.version, p.createdAt, p.updatedAt,
	)
}

func scanSQLitePlan(row database.Row) (planRecord, error) {
	var (
		rec                                     planRecord
		id, userID, date, mode, created, update string
	)
	if err := row.Scan(
		&id, &userID, &date, &rec.capacityScore, &mode, &rec.availableMinutes,
		&rec.justification, &rec.rescue, &rec.version, &created, &update,
	); err != nil {
		return planRecord{}, err
	}

	var err error
	if rec.id, err = uuid.Parse(id); err != nil {
		return planRecord{}, fmt.Errorf("plan id: %w", err)
	}
	if rec.userID, err = uuid.Parse(userID); err != nil {
		return planRecord{}, fmt.Errorf("plan %s user_id: %w", id, err)
	}
	if rec.date, err = time.Parse(database.DateLayout, date); err != nil {
		return planRecord{}, fmt.Errorf("plan %s date: %w", id, err)
	}
	if rec.createdAt, err = database.ParseTime(created); err != nil {
		return planRecord{}, fmt.Errorf("plan %s created_at: %w", id, err)
	}
	if rec.updatedAt, err = database.ParseTime(update); err != nil {
		return planRecord{}, fmt.Errorf("plan %s updated_at: %w", id, err)
	}
	rec.mode = domain.Mode(mode)
	return rec, nil
}

func scanSQLiteTask(row database.Row) (domain.ScheduledTask, error) {
	var (
		t                             domain.ScheduledTask
		id                            string
		priority                      int
		externalID, project, deferred sql.NullString
		dueDate, schedStart, schedEnd sql.NullString
		actualStart, actualEnd        sql.NullString
		actualMinutes, riskPercent    sql.NullInt64
		riskLevel, momentum           sql.NullString
	)
	if err := row.Scan(
		&id, &externalID, &t.Title, &priority, &project, &dueDate,
		&t.OriginalMinutes, &t.AdjustedMinutes, &schedStart, &schedEnd,
		&actualStart, &actualEnd, &actualMinutes, &t.Completed, &t.Justification,
		&deferred, &riskLevel, &riskPercent, &momentum,
	); err != nil {
		return domain.ScheduledTask{}, err
	}

	var err error
	if t.TaskID, err = uuid.Parse(id); err != nil {
		return domain.ScheduledTask{}, fmt.Errorf("task id: %w", err)
	}
	for _, f := range []struct {
		dst **time.Time
		src sql.NullString
	}{
		{&t.DueDate, dueDate},
		{&t.ScheduledStart, schedStart},
		{&t.ScheduledEnd, schedEnd},
		{&t.ActualStart, actualStart},
		{&t.ActualEnd, actualEnd},
	} {
		if *f.dst, err = database.ParseNullTime(f.src); err != nil {
			return domain.ScheduledTask{}, fmt.Errorf("task %s: %w", id, err)
		}
	}

	t.Priority = domain.Priority(priority)
	t.ExternalID = externalID.String
	t.Project = project.String
	t.DeferredReason = deferred.String
	t.ActualMinutes = int(actualMinutes.Int64)
	if riskLevel.Valid {
		t.SkipRisk = &domain.SkipRisk{Level: domain.RiskLevel(riskLevel.String), Percentage: int(riskPercent.Int64)}
	}
	if momentum.Valid {
		m := domain.MomentumState(momentum.String)
		t.MomentumState = &m
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

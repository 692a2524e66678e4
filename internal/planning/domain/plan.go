package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	sharedDomain "github.com/felixgeelhaar/tempo/internal/shared/domain"
	"github.com/google/uuid"
)

// Plan is one user's schedule for one calendar day.
type Plan struct {
	sharedDomain.BaseAggregateRoot
	userID           uuid.UUID
	date             time.Time
	capacityScore    int
	mode             Mode
	availableMinutes int
	justification    string
	rescue           bool
	tasks            []ScheduledTask
}

// NormalizeDate keeps the calendar date of t as midnight UTC.
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewPlan validates a freshly built schedule and raises PlanCreated.
// Tasks without a window are carried as unscheduled for the day.
func NewPlan(
	userID uuid.UUID,
	date time.Time,
	capacityScore int,
	mode Mode,
	justification string,
	tasks []ScheduledTask,
	now time.Time,
) (*Plan, error) {
	if userID == uuid.Nil {
		return nil, NewValidationError(CodeMissingIdentifier, "plan requires a user id")
	}
	if err := ValidateCapacity(capacityScore); err != nil {
		return nil, err
	}
	if !mode.IsValid() {
		return nil, NewValidationError(CodeInvalidMode, "unknown mode %q", mode)
	}
	if strings.TrimSpace(justification) == "" {
		return nil, fmt.Errorf("%w: plan justification is empty", ErrInvariantViolation)
	}

	p := &Plan{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(now),
		userID:            userID,
		date:              NormalizeDate(date),
		capacityScore:     capacityScore,
		mode:              mode,
		availableMinutes:  AvailableMinutes(capacityScore, mode),
		justification:     justification,
		tasks:             make([]ScheduledTask, 0, len(tasks)),
	}
	for _, t := range tasks {
		p.tasks = append(p.tasks, t.clone())
	}
	if err := p.checkTasks(); err != nil {
		return nil, err
	}
	p.sortTasks()
	p.AddDomainEvent(NewPlanCreated(p, now))
	return p, nil
}

// RehydratePlan rebuilds a stored plan without validation or events.
func RehydratePlan(
	id uuid.UUID,
	userID uuid.UUID,
	date time.Time,
	capacityScore int,
	mode Mode,
	availableMinutes int,
	justification string,
	rescue bool,
	tasks []ScheduledTask,
	version int,
	createdAt, updatedAt time.Time,
) *Plan {
	p := &Plan{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt), version),
		userID:           userID,
		date:             NormalizeDate(date),
		capacityScore:    capacityScore,
		mode:             mode,
		availableMinutes: availableMinutes,
		justification:    justification,
		rescue:           rescue,
		tasks:            tasks,
	}
	p.sortTasks()
	return p
}

// Getters
func (p *Plan) UserID() uuid.UUID     { return p.userID }
func (p *Plan) Date() time.Time       { return p.date }
func (p *Plan) CapacityScore() int    { return p.capacityScore }
func (p *Plan) Mode() Mode            { return p.mode }
func (p *Plan) AvailableMinutes() int { return p.availableMinutes }
func (p *Plan) Justification() string { return p.justification }
func (p *Plan) Rescue() bool          { return p.rescue }
func (p *Plan) TaskCount() int        { return len(p.tasks) }

// Tasks returns a copy of the tasks ordered by scheduled start.
func (p *Plan) Tasks() []ScheduledTask {
	out := make([]ScheduledTask, len(p.tasks))
	for i, t := range p.tasks {
		out[i] = t.clone()
	}
	return out
}

// Task finds a task by id.
func (p *Plan) Task(id uuid.UUID) (ScheduledTask, error) {
	i := p.indexOf(id)
	if i < 0 {
		return ScheduledTask{}, ErrTaskNotFound
	}
	return p.tasks[i].clone(), nil
}

// ResolveTask finds a task by id, external id or 1-based position.
func (p *Plan) ResolveTask(ref string) (ScheduledTask, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ScheduledTask{}, NewValidationError(CodeMissingIdentifier, "task reference is empty")
	}
	if id, err := uuid.Parse(ref); err == nil {
		return p.Task(id)
	}
	for _, t := range p.tasks {
		if t.ExternalID != "" && t.ExternalID == ref {
			return t.clone(), nil
		}
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(p.tasks) {
		return p.tasks[n-1].clone(), nil
	}
	return ScheduledTask{}, ErrTaskNotFound
}

// ScheduledMinutes sums adjusted minutes of tasks holding a window or
// already completed.
func (p *Plan) ScheduledMinutes() int {
	return scheduledMinutes(p.tasks)
}

// ConsumedMinutes sums adjusted minutes of completed and in-progress tasks.
func (p *Plan) ConsumedMinutes() int {
	total := 0
	for _, t := range p.tasks {
		if t.Completed || t.ActualStart != nil {
			total += t.AdjustedMinutes
		}
	}
	return total
}

// RemainingBudget is what the day still offers after consumed work.
func (p *Plan) RemainingBudget() int {
	return max(p.availableMinutes-p.ConsumedMinutes(), 0)
}

// StartTask records the start of a task. Repeated starts and starts of
// completed tasks are no-ops.
func (p *Plan) StartTask(taskID uuid.UUID, at time.Time) error {
	i := p.indexOf(taskID)
	if i < 0 {
		return ErrTaskNotFound
	}
	t := &p.tasks[i]
	if t.Completed || t.ActualStart != nil {
		return nil
	}
	t.ActualStart = TimePtr(at)
	p.Touch(at)
	p.AddDomainEvent(NewTaskStarted(p, *t, at))
	return nil
}

// CompleteTask records a completion. actualMinutes overrides the duration
// derived from the recorded start when positive. Re-recording updates the
// end time and actual minutes but never reopens the task, and without
// minutes or a start it keeps the minutes already recorded.
func (p *Plan) CompleteTask(taskID uuid.UUID, at time.Time, actualMinutes int) error {
	i := p.indexOf(taskID)
	if i < 0 {
		return ErrTaskNotFound
	}
	t := &p.tasks[i]
	if t.ActualStart != nil && at.Before(*t.ActualStart) {
		return NewValidationError(CodeInvalidTimeRange, "completion at %s precedes start at %s",
			at.UTC().Format(time.RFC3339), t.ActualStart.Format(time.RFC3339))
	}

	minutes := 0
	switch {
	case actualMinutes > 0:
		minutes = actualMinutes
	case t.ActualStart != nil:
		minutes = int(at.Sub(*t.ActualStart).Round(time.Minute) / time.Minute)
	case t.Completed:
		minutes = t.ActualMinutes
	}

	end := at.UTC()
	if t.Completed && t.ActualEnd != nil && t.ActualEnd.Equal(end) && t.ActualMinutes == minutes {
		return nil
	}
	t.Completed = true
	t.ActualEnd = &end
	t.ActualMinutes = minutes
	t.DeferredReason = ""
	p.Touch(at)
	p.AddDomainEvent(NewTaskCompleted(p, *t, at))
	return nil
}

// ReopenTask reverts a completion made elsewhere.
func (p *Plan) ReopenTask(taskID uuid.UUID, at time.Time) error {
	i := p.indexOf(taskID)
	if i < 0 {
		return ErrTaskNotFound
	}
	t := &p.tasks[i]
	if !t.Completed {
		return nil
	}
	t.Completed = false
	t.ActualEnd = nil
	t.ActualMinutes = 0
	p.Touch(at)
	p.AddDomainEvent(NewTaskReopened(p, *t, at))
	return nil
}

// AnnotateTask stores the latest skip risk and momentum seen for a task.
func (p *Plan) AnnotateTask(taskID uuid.UUID, risk *SkipRisk, momentum *MomentumState) error {
	i := p.indexOf(taskID)
	if i < 0 {
		return ErrTaskNotFound
	}
	t := &p.tasks[i]
	if risk != nil {
		r := *risk
		t.SkipRisk = &r
	}
	if momentum != nil {
		m := *momentum
		t.MomentumState = &m
	}
	return nil
}

// ApplyReschedule replaces the windows of the proposal's tasks in one
// step. The proposal is fully validated before anything changes.
func (p *Plan) ApplyReschedule(proposal RescheduleProposal, now time.Time) error {
	if strings.TrimSpace(proposal.Justification) == "" {
		return fmt.Errorf("%w: reschedule justification is empty", ErrInvariantViolation)
	}

	next := make([]ScheduledTask, len(p.tasks))
	for i, t := range p.tasks {
		next[i] = t.clone()
	}
	seen := make(map[uuid.UUID]struct{}, len(proposal.Scheduled)+len(proposal.Deferred))

	claim := func(id uuid.UUID) (*ScheduledTask, error) {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: task %s appears twice in reschedule", ErrInvariantViolation, id)
		}
		seen[id] = struct{}{}
		for i := range next {
			if next[i].TaskID == id {
				if next[i].Completed {
					return nil, fmt.Errorf("%w: completed task %s cannot be rescheduled", ErrInvariantViolation, id)
				}
				return &next[i], nil
			}
		}
		return nil, ErrTaskNotFound
	}

	for _, w := range proposal.Scheduled {
		t, err := claim(w.TaskID)
		if err != nil {
			return err
		}
		if !w.End.After(w.Start) || w.AdjustedMinutes <= 0 {
			return NewValidationError(CodeInvalidTimeRange, "task %q: window must end after it starts", t.Title)
		}
		if strings.TrimSpace(w.Reason) == "" {
			return fmt.Errorf("%w: task %q has no justification", ErrInvariantViolation, t.Title)
		}
		t.ScheduledStart = TimePtr(w.Start)
		t.ScheduledEnd = TimePtr(w.End)
		t.AdjustedMinutes = w.AdjustedMinutes
		t.Justification = w.Reason
		t.DeferredReason = ""
	}
	for _, d := range proposal.Deferred {
		t, err := claim(d.TaskID)
		if err != nil {
			return err
		}
		reason := d.Reason
		if strings.TrimSpace(reason) == "" {
			reason = DeferReasonNoTime
		}
		t.ScheduledStart = nil
		t.ScheduledEnd = nil
		t.DeferredReason = reason
	}

	for _, running := range next {
		if running.Completed || running.ActualStart == nil || !running.IsScheduled() {
			continue
		}
		for _, w := range proposal.Scheduled {
			if w.TaskID != running.TaskID && w.Start.Before(*running.ScheduledEnd) && w.End.After(*running.ScheduledStart) {
				return NewValidationError(CodeInvalidTimeRange, "window for task %s overlaps running task %q", w.TaskID, running.Title)
			}
		}
	}

	if !proposal.Rescue {
		if total := scheduledMinutes(next); total > p.availableMinutes {
			return fmt.Errorf("%w: %d scheduled minutes exceed the %d minute budget",
				ErrInvariantViolation, total, p.availableMinutes)
		}
	}

	p.tasks = next
	p.rescue = p.rescue || proposal.Rescue
	p.justification = fmt.Sprintf("%s\n[%s] %s", p.justification, now.UTC().Format("15:04"), proposal.Justification)
	p.sortTasks()
	p.Touch(now)
	p.AddDomainEvent(NewPlanRescheduled(p, proposal, now))
	return nil
}

func (p *Plan) checkTasks() error {
	ids := make(map[uuid.UUID]struct{}, len(p.tasks))
	for _, t := range p.tasks {
		if t.TaskID == uuid.Nil {
			return NewValidationError(CodeMissingIdentifier, "task %q has no id", t.Title)
		}
		if _, dup := ids[t.TaskID]; dup {
			return NewValidationError(CodeMissingIdentifier, "task %s appears twice", t.TaskID)
		}
		ids[t.TaskID] = struct{}{}
		if !t.Priority.IsValid() {
			return NewValidationError(CodeInvalidPriority, "task %q: priority must be between 1 and 4, got %d", t.Title, t.Priority)
		}
		if t.AdjustedMinutes < 0 || t.OriginalMinutes < 0 {
			return fmt.Errorf("%w: task %q has negative minutes", ErrInvariantViolation, t.Title)
		}
		if strings.TrimSpace(t.Justification) == "" {
			return fmt.Errorf("%w: task %q has no justification", ErrInvariantViolation, t.Title)
		}
		if t.IsScheduled() && !t.ScheduledEnd.After(*t.ScheduledStart) {
			return NewValidationError(CodeInvalidTimeRange, "task %q: window must end after it starts", t.Title)
		}
	}
	if total := scheduledMinutes(p.tasks); total > p.availableMinutes {
		return fmt.Errorf("%w: %d scheduled minutes exceed the %d minute budget",
			ErrInvariantViolation, total, p.availableMinutes)
	}
	return nil
}

// sortTasks orders by scheduled start; unscheduled tasks go last.
func (p *Plan) sortTasks() {
	sort.SliceStable(p.tasks, func(i, j int) bool {
		a, b := p.tasks[i], p.tasks[j]
		switch {
		case a.ScheduledStart == nil:
			return false
		case b.ScheduledStart == nil:
			return true
		default:
			return a.ScheduledStart.Before(*b.ScheduledStart)
		}
	})
}

func (p *Plan) indexOf(id uuid.UUID) int {
	for i := range p.tasks {
		if p.tasks[i].TaskID == id {
			return i
		}
	}
	return -1
}

func scheduledMinutes(tasks []ScheduledTask) int {
	total := 0
	for _, t := range tasks {
		if t.countsAgainstBudget() {
			total += t.AdjustedMinutes
		}
	}
	return total
}

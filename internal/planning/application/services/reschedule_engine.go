package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/felixgeelhaar/tempo/pkg/config"
	"github.com/felixgeelhaar/tempo/pkg/observability"
)

// RuleBasedNote marks every justification produced without the advisor.
const RuleBasedNote = "using rule-based scheduling"

// maxRecoveryWins is how many tasks a collapsed day is reduced to.
const maxRecoveryWins = 2

// RescheduleConfig holds the decision thresholds in minutes and the
// rebuild spacing.
type RescheduleConfig struct {
	AheadThreshold  int
	RescueThreshold int
	BehindThreshold int
	StartOffset     time.Duration
	BufferBetween   time.Duration
	AdvisoryTimeout time.Duration
	WorkdayEnd      time.Duration
}

// DefaultRescheduleConfig matches config.DefaultEngineConfig.
func DefaultRescheduleConfig() RescheduleConfig {
	return RescheduleConfigFrom(config.DefaultEngineConfig())
}

// RescheduleConfigFrom reads the tuning file values.
func RescheduleConfigFrom(cfg config.EngineConfig) RescheduleConfig {
	end, err := config.ParseClock(cfg.Workday.End)
	if err != nil {
		end = 17 * time.Hour
	}
	return RescheduleConfig{
		AheadThreshold:  cfg.Reschedule.AheadThreshold,
		RescueThreshold: cfg.Reschedule.RescueThreshold,
		BehindThreshold: cfg.Reschedule.BehindThreshold,
		StartOffset:     cfg.Reschedule.StartOffset,
		BufferBetween:   cfg.Reschedule.BufferBetween,
		AdvisoryTimeout: min(cfg.Reschedule.AdvisoryTimeout, config.MaxAdvisoryTimeout),
		WorkdayEnd:      end,
	}
}

// RescheduleInput is the snapshot a decision is made on.
type RescheduleInput struct {
	Plan     *domain.Plan
	Now      time.Time
	Location *time.Location
	Progress ProgressSnapshot
	Momentum MomentumMetrics
	Risk     PlanRisk
	Buffer   BufferProfile
	Windows  WindowProfile
	Goals    []string
	// InterventionRequested forces the simplify branch regardless of state.
	InterventionRequested bool
}

// Decision explains which reschedule branch applies.
type Decision struct {
	Type               domain.RescheduleType `json:"type"`
	Reason             string                `json:"reason"`
	CapacityExceeded   bool                  `json:"capacity_exceeded"`
	ProtectedRequired  int                   `json:"protected_required_minutes"`
	RemainingAvailable int                   `json:"remaining_available_minutes"`
	RemainingBudget    int                   `json:"remaining_budget_minutes"`
	MomentumMultiplier float64               `json:"momentum_multiplier"`
	MinutesUntilEnd    int                   `json:"minutes_until_workday_end"`
}

// RescheduleEngine decides whether and how to rebuild the rest of the day.
type RescheduleEngine struct {
	config  RescheduleConfig
	advisor Advisor
	logger  *slog.Logger
	metrics observability.Metrics
}

// NewRescheduleEngine creates the engine. advisor may be nil.
func NewRescheduleEngine(cfg RescheduleConfig, advisor Advisor, logger *slog.Logger, metrics observability.Metrics) *RescheduleEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if cfg.AdvisoryTimeout <= 0 || cfg.AdvisoryTimeout > config.MaxAdvisoryTimeout {
		cfg.AdvisoryTimeout = config.MaxAdvisoryTimeout
	}
	return &RescheduleEngine{config: cfg, advisor: advisor, logger: logger, metrics: metrics}
}

// remainingTasks returns tasks a reschedule may move, in plan order.
func remainingTasks(plan *domain.Plan, now time.Time) []domain.ScheduledTask {
	var out []domain.ScheduledTask
	for _, t := range plan.Tasks() {
		if t.Status(now).IsRemaining() {
			out = append(out, t)
		}
	}
	return out
}

// startAt is where rebuilt windows may begin: the start offset from now,
// or after a running task's window when that ends later.
func (e *RescheduleEngine) startAt(in RescheduleInput) time.Time {
	start := in.Now.Add(e.config.StartOffset).Truncate(time.Minute)
	for _, t := range in.Plan.Tasks() {
		if t.Status(in.Now) != domain.StatusInProgress || t.ScheduledEnd == nil {
			continue
		}
		if after := t.ScheduledEnd.Add(e.config.BufferBetween); after.After(start) {
			start = after
		}
	}
	return start
}

// offeredMinutes scales the remaining budget by momentum. A strong streak
// never offers more than the plan's own budget.
func offeredMinutes(remaining int, state domain.MomentumState) (int, float64) {
	multiplier := min(state.Multiplier(), 1.0)
	return int(math.Round(float64(remaining) * multiplier)), multiplier
}

func (e *RescheduleEngine) workdayEnd(in RescheduleInput) time.Time {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	local := in.Now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).Add(e.config.WorkdayEnd)
}

// Decide applies the decision order; the first match wins.
func (e *RescheduleEngine) Decide(in RescheduleInput) Decision {
	d := Decision{RemainingBudget: in.Plan.RemainingBudget()}
	d.MinutesUntilEnd = max(int(e.workdayEnd(in).Sub(e.startAt(in)).Minutes()), 0)
	offered, multiplier := offeredMinutes(d.RemainingBudget, in.Momentum.State)
	d.MomentumMultiplier = multiplier
	d.RemainingAvailable = min(offered, d.MinutesUntilEnd)
	for _, t := range remainingTasks(in.Plan, in.Now) {
		if t.Priority.IsProtected() {
			d.ProtectedRequired += t.AdjustedMinutes
		}
	}
	d.CapacityExceeded = d.ProtectedRequired > d.RemainingAvailable

	mab := in.Progress.MinutesAheadBehind
	cfg := e.config
	switch {
	case in.Momentum.State == domain.MomentumCollapsed || in.InterventionRequested:
		d.Type = domain.RescheduleAtRisk
		d.Reason = "momentum has collapsed; simplify to 1-2 wins"
	case mab > cfg.AheadThreshold && in.Momentum.State == domain.MomentumStrong:
		d.Type = domain.RescheduleAhead
		d.Reason = fmt.Sprintf("%d min ahead with strong momentum; room for more work or a break", mab)
	case mab < -cfg.RescueThreshold || in.Risk.Highest.Level == domain.RiskHigh:
		d.Type = domain.RescheduleAtRisk
		if mab < -cfg.RescueThreshold {
			d.Reason = fmt.Sprintf("%d min behind; rescue: protect core tasks", -mab)
		} else {
			d.Reason = fmt.Sprintf("skip risk is high (%d%%); rescue: protect core tasks", in.Risk.Highest.Percentage)
		}
	case mab < -cfg.BehindThreshold || d.CapacityExceeded:
		d.Type = domain.RescheduleBehind
		if mab < -cfg.BehindThreshold {
			d.Reason = fmt.Sprintf("%d min behind schedule", -mab)
		} else {
			d.Reason = fmt.Sprintf("protected tasks need %d min but only %d remain", d.ProtectedRequired, d.RemainingAvailable)
		}
	default:
		d.Type = domain.RescheduleNone
		d.Reason = "on track; no reschedule needed"
	}
	return d
}

// Propose decides and, unless nothing is needed, rebuilds the remaining
// day. The advisor is tried first under a timeout; any failure yields the
// rule-based proposal. Propose never fails.
func (e *RescheduleEngine) Propose(ctx context.Context, in RescheduleInput) (domain.RescheduleProposal, Decision) {
	decision := e.Decide(in)
	e.metrics.Counter(observability.MetricRescheduleDecisions, 1, observability.T("type", string(decision.Type)))

	if decision.Type == domain.RescheduleNone {
		return domain.RescheduleProposal{
			Type:               domain.RescheduleNone,
			Source:             domain.SourceRules,
			Justification:      decision.Reason,
			MinutesAheadBehind: in.Progress.MinutesAheadBehind,
		}, decision
	}

	if e.advisor != nil {
		proposal, err := e.advise(ctx, in, decision)
		if err == nil {
			return proposal, decision
		}
		e.metrics.Counter(observability.MetricRescheduleFallbacks, 1)
		e.logger.WarnContext(ctx, "advisory reschedule failed, falling back to rules",
			"plan_id", in.Plan.ID(),
			"error", err,
		)
	}
	return e.RuleBased(in, decision), decision
}

func (e *RescheduleEngine) advise(ctx context.Context, in RescheduleInput, d Decision) (domain.RescheduleProposal, error) {
	remaining := remainingTasks(in.Plan, in.Now)
	start := e.startAt(in)
	end := e.workdayEnd(in)

	req := AdvisoryRequest{
		CapacityScore:          in.Plan.CapacityScore(),
		Mode:                   in.Plan.Mode().String(),
		AvailableMinutes:       d.RemainingAvailable,
		HistoricalBuffer:       in.Buffer.Buffer,
		PerHourCompletionRates: in.Windows.Rates(),
		Goals:                  in.Goals,
		RescheduleType:         string(d.Type),
		EarliestStart:          start,
		LatestEnd:              end,
		BufferBetweenMinutes:   int(e.config.BufferBetween.Minutes()),
	}
	for _, t := range remaining {
		task := AdvisoryTask{
			TaskID:           t.TaskID.String(),
			Title:            t.Title,
			Priority:         int(t.Priority),
			EstimatedMinutes: t.AdjustedMinutes,
			Protected:        t.Priority.IsProtected(),
		}
		if t.DueDate != nil {
			task.DueDate = t.DueDate.Format("2006-01-02")
		}
		req.Tasks = append(req.Tasks, task)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.AdvisoryTimeout)
	defer cancel()

	began := time.Now()
	resp, err := e.advisor.Suggest(callCtx, req)
	e.metrics.Timing(observability.MetricAdvisoryLatency, time.Since(began))
	if err != nil {
		return domain.RescheduleProposal{}, err
	}

	proposal, err := ValidateAdvisory(resp, remaining, AdvisoryBounds{
		EarliestStart: start,
		LatestEnd:     end,
		BudgetMinutes: d.RemainingAvailable,
		AllowOverrun:  d.CapacityExceeded,
	})
	if err != nil {
		return domain.RescheduleProposal{}, err
	}
	proposal.Type = d.Type
	proposal.MinutesAheadBehind = in.Progress.MinutesAheadBehind
	proposal.Justification = fmt.Sprintf("%s; advisory schedule: %s", d.Reason, proposal.Justification)
	return proposal, nil
}

// RuleBased is the deterministic rebuild. It is valid for every input.
func (e *RescheduleEngine) RuleBased(in RescheduleInput, d Decision) domain.RescheduleProposal {
	remaining := remainingTasks(in.Plan, in.Now)

	var protected, deferrable []domain.ScheduledTask
	for _, t := range remaining {
		if t.Priority.IsProtected() {
			protected = append(protected, t)
		} else {
			deferrable = append(deferrable, t)
		}
	}
	sort.SliceStable(protected, func(i, j int) bool { return protected[i].Priority < protected[j].Priority })

	p := &packer{
		loc:       in.Location,
		cursor:    e.startAt(in),
		latestEnd: e.workdayEnd(in),
		gap:       e.config.BufferBetween,
		budget:    d.RemainingAvailable,
	}

	proposal := domain.RescheduleProposal{
		Type:               d.Type,
		Source:             domain.SourceRules,
		MinutesAheadBehind: in.Progress.MinutesAheadBehind,
	}

	simplify := d.Type == domain.RescheduleAtRisk &&
		(in.Momentum.State == domain.MomentumCollapsed || in.InterventionRequested)

	switch {
	case simplify:
		wins := append(append([]domain.ScheduledTask{}, protected...), shortestFirst(deferrable)...)
		for _, t := range wins {
			if len(proposal.Scheduled) == maxRecoveryWins {
				proposal.Deferred = append(proposal.Deferred, deferred(t, "deferred to rebuild momentum"))
				continue
			}
			p.place(&proposal, t, "a small win to rebuild momentum")
		}
	case d.CapacityExceeded:
		// Rescue relaxes the budget to the time left in the workday.
		p.budget = d.MinutesUntilEnd
		for _, t := range protected {
			p.place(&proposal, t, "protected core task")
		}
		for _, t := range deferrable {
			proposal.Deferred = append(proposal.Deferred, deferred(t, domain.DeferReasonNoTime))
		}
	default:
		for _, t := range protected {
			p.place(&proposal, t, "protected task scheduled first")
		}
		for _, t := range deferrable {
			p.place(&proposal, t, "fits the remaining time")
		}
	}

	proposal.Rescue = p.used > d.RemainingAvailable
	proposal.Justification = e.ruleJustification(d, proposal, p.used)
	return proposal
}

func (e *RescheduleEngine) ruleJustification(d Decision, proposal domain.RescheduleProposal, used int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s; %d scheduled (%d min), %d deferred", d.Reason, len(proposal.Scheduled), used, len(proposal.Deferred))
	if proposal.Rescue {
		fmt.Fprintf(&b, "; rescue mode: protected tasks exceed the remaining budget by %d min", used-d.RemainingAvailable)
	}
	b.WriteString("; " + RuleBasedNote)
	return b.String()
}

// packer lays tasks back to back with a fixed gap, within a minute budget
// and the end of the workday.
type packer struct {
	loc       *time.Location
	cursor    time.Time
	latestEnd time.Time
	gap       time.Duration
	budget    int
	used      int
}

func (p *packer) place(proposal *domain.RescheduleProposal, t domain.ScheduledTask, why string) {
	minutes := t.AdjustedMinutes
	if minutes <= 0 {
		minutes = max(t.OriginalMinutes, 1)
	}
	end := p.cursor.Add(time.Duration(minutes) * time.Minute)
	loc := p.loc
	if loc == nil {
		loc = time.UTC
	}
	if p.used+minutes > p.budget || end.After(p.latestEnd) {
		proposal.Deferred = append(proposal.Deferred, deferred(t, domain.DeferReasonNoTime))
		return
	}
	proposal.Scheduled = append(proposal.Scheduled, domain.TaskWindow{
		TaskID:          t.TaskID,
		Start:           p.cursor.UTC(),
		End:             end.UTC(),
		AdjustedMinutes: minutes,
		Reason:          fmt.Sprintf("priority %d, %s; %s-%s", t.Priority, why, p.cursor.In(loc).Format("15:04"), end.In(loc).Format("15:04")),
	})
	p.used += minutes
	p.cursor = end.Add(p.gap)
}

func deferred(t domain.ScheduledTask, reason string) domain.DeferredTask {
	return domain.DeferredTask{TaskID: t.TaskID, Reason: reason}
}

func shortestFirst(tasks []domain.ScheduledTask) []domain.ScheduledTask {
	out := append([]domain.ScheduledTask{}, tasks...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].AdjustedMinutes < out[j].AdjustedMinutes })
	return out
}

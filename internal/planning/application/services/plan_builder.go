package services

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/felixgeelhaar/tempo/pkg/config"
)

// DeferReasonCapacity marks tasks left out of a new plan.
const DeferReasonCapacity = "exceeds today's capacity"

// BuilderConfig is the placement window for new plans.
type BuilderConfig struct {
	WorkdayStart time.Duration
	WorkdayEnd   time.Duration
	BreakBetween time.Duration
}

// DefaultBuilderConfig is 09:00-17:00 with 5 minute breaks.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfigFrom(config.DefaultEngineConfig())
}

// BuilderConfigFrom reads the tuning file values.
func BuilderConfigFrom(cfg config.EngineConfig) BuilderConfig {
	start, err := config.ParseClock(cfg.Workday.Start)
	if err != nil {
		start = 9 * time.Hour
	}
	end, err := config.ParseClock(cfg.Workday.End)
	if err != nil {
		end = 17 * time.Hour
	}
	return BuilderConfig{WorkdayStart: start, WorkdayEnd: end, BreakBetween: cfg.Workday.BreakBetween}
}

// BuildInput is everything plan construction reads.
type BuildInput struct {
	Date          time.Time
	Location      *time.Location
	CapacityScore int
	Mode          domain.Mode
	Tasks         []domain.TaskToSchedule
	Buffer        BufferProfile
	Windows       WindowProfile
	// Momentum lowers the budget when weak or collapsed. Strong momentum
	// never raises it above the capacity budget.
	Momentum *domain.MomentumState
	Now      time.Time
}

// BuildResult feeds domain.NewPlan.
type BuildResult struct {
	Tasks            []domain.ScheduledTask
	Justification    string
	AvailableMinutes int
	BudgetMinutes    int
	ScheduledMinutes int
}

// PlanBuilder turns capacity and tasks into a time-boxed day.
type PlanBuilder struct {
	config BuilderConfig
}

func NewPlanBuilder(cfg BuilderConfig) *PlanBuilder {
	if cfg.WorkdayEnd <= cfg.WorkdayStart {
		cfg = DefaultBuilderConfig()
	}
	return &PlanBuilder{config: cfg}
}

type interval struct {
	start, end time.Time
}

// Build validates input, admits tasks within the budget and places them
// in free gaps of the working window.
func (b *PlanBuilder) Build(in BuildInput) (BuildResult, error) {
	if err := domain.ValidateCapacity(in.CapacityScore); err != nil {
		return BuildResult{}, err
	}
	if !in.Mode.IsValid() {
		return BuildResult{}, domain.NewValidationError(domain.CodeInvalidMode, "unknown mode %q", in.Mode)
	}
	for _, t := range in.Tasks {
		if err := t.Validate(); err != nil {
			return BuildResult{}, err
		}
	}
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	available := domain.AvailableMinutes(in.CapacityScore, in.Mode)
	budget := available
	if in.Momentum != nil && in.Momentum.Multiplier() < 1 {
		budget = int(math.Round(float64(available) * in.Momentum.Multiplier()))
	}

	ordered := SortForScheduling(in.Tasks)
	midnight := time.Date(in.Date.Year(), in.Date.Month(), in.Date.Day(), 0, 0, 0, 0, loc)
	windowStart := midnight.Add(b.config.WorkdayStart)
	windowEnd := midnight.Add(b.config.WorkdayEnd)
	if now := in.Now.In(loc); now.After(windowStart) && sameDay(now, midnight) {
		windowStart = ceilTo(now, 5*time.Minute)
	}

	result := BuildResult{AvailableMinutes: available, BudgetMinutes: budget}
	var occupied []interval
	for _, t := range ordered {
		adjusted := in.Buffer.Apply(t.EstimatedMinutes)
		st := domain.ScheduledTask{
			TaskID:          t.ID,
			ExternalID:      t.ExternalID,
			Title:           t.Title,
			Priority:        t.Priority,
			Project:         t.Project,
			DueDate:         t.DueDate,
			OriginalMinutes: t.EstimatedMinutes,
			AdjustedMinutes: adjusted,
		}

		if result.ScheduledMinutes+adjusted > budget {
			st.DeferredReason = DeferReasonCapacity
			st.Justification = fmt.Sprintf("%d min would exceed the %d min budget", adjusted, budget)
			result.Tasks = append(result.Tasks, st)
			continue
		}

		dur := time.Duration(adjusted) * time.Minute
		preferred, hourOK := in.Windows.RecommendHour(t.Priority)
		var start time.Time
		found := false
		if hourOK {
			start, found = b.findSlot(occupied, maxTime(windowStart, midnight.Add(time.Duration(preferred)*time.Hour)), windowEnd, dur)
		}
		if !found {
			hourOK = false
			start, found = b.findSlot(occupied, windowStart, windowEnd, dur)
		}
		if !found {
			st.DeferredReason = "no free slot in the working window"
			st.Justification = fmt.Sprintf("no %d min gap left between %s and %s",
				adjusted, windowStart.Format("15:04"), windowEnd.Format("15:04"))
			result.Tasks = append(result.Tasks, st)
			continue
		}

		end := start.Add(dur)
		occupied = append(occupied, interval{start: start, end: end})
		st.ScheduledStart = domain.TimePtr(start)
		st.ScheduledEnd = domain.TimePtr(end)
		st.Justification = taskJustification(t, adjusted, start, hourOK, in.Buffer, in.Windows)
		result.ScheduledMinutes += adjusted
		result.Tasks = append(result.Tasks, st)
	}

	result.Justification = planJustification(in, result)
	return result, nil
}

// SortForScheduling orders by priority, then due date, then shorter
// estimate first.
func SortForScheduling(tasks []domain.TaskToSchedule) []domain.TaskToSchedule {
	out := append([]domain.TaskToSchedule{}, tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		switch {
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		}
		return a.EstimatedMinutes < b.EstimatedMinutes
	})
	return out
}

// findSlot returns the earliest start at or after from where dur fits
// without touching an occupied interval padded by the break.
func (b *PlanBuilder) findSlot(occupied []interval, from, until time.Time, dur time.Duration) (time.Time, bool) {
	candidates := []time.Time{from}
	for _, iv := range occupied {
		if c := iv.end.Add(b.config.BreakBetween); !c.Before(from) {
			candidates = append(candidates, c)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })

	for _, c := range candidates {
		end := c.Add(dur)
		if end.After(until) {
			continue
		}
		free := true
		for _, iv := range occupied {
			if c.Before(iv.end.Add(b.config.BreakBetween)) && end.After(iv.start.Add(-b.config.BreakBetween)) {
				free = false
				break
			}
		}
		if free {
			return c, true
		}
	}
	return time.Time{}, false
}

func taskJustification(t domain.TaskToSchedule, adjusted int, start time.Time, preferredHour bool, buffer BufferProfile, windows WindowProfile) string {
	parts := []string{fmt.Sprintf("priority %d", t.Priority)}
	if t.DueDate != nil {
		parts = append(parts, "due "+t.DueDate.Format("2006-01-02"))
	}
	if preferredHour {
		rate := windows.Hours[start.Hour()].Rate
		if t.Priority.IsProtected() {
			parts = append(parts, fmt.Sprintf("placed at %s, a peak hour (%.0f%% completion)", start.Format("15:04"), rate*100))
		} else {
			parts = append(parts, fmt.Sprintf("placed at %s, a reliable hour that keeps peak time free", start.Format("15:04")))
		}
	} else {
		parts = append(parts, fmt.Sprintf("placed in the earliest free slot at %s", start.Format("15:04")))
	}
	if adjusted != t.EstimatedMinutes {
		parts = append(parts, fmt.Sprintf("%d min estimate buffered to %d min (x%.2f)", t.EstimatedMinutes, adjusted, buffer.Buffer))
	}
	return strings.Join(parts, "; ")
}

func planJustification(in BuildInput, r BuildResult) string {
	scheduled := 0
	for _, t := range r.Tasks {
		if t.IsScheduled() {
			scheduled++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Capacity %d in %s mode gives %d min", in.CapacityScore, in.Mode, r.AvailableMinutes)
	if r.BudgetMinutes != r.AvailableMinutes {
		fmt.Fprintf(&b, ", reduced to %d min for %s momentum", r.BudgetMinutes, *in.Momentum)
	}
	fmt.Fprintf(&b, "; scheduled %d of %d tasks (%d min).", scheduled, len(r.Tasks), r.ScheduledMinutes)
	if !in.Buffer.Applied() {
		b.WriteString(" Estimates used as given until more completions are recorded.")
	} else {
		fmt.Fprintf(&b, " Estimates adjusted by x%.2f (%s confidence).", in.Buffer.Buffer, in.Buffer.Confidence)
	}
	if !in.Windows.HasData() {
		b.WriteString(" No productivity window history yet; tasks fill the earliest free slots.")
	}
	return b.String()
}

func ceilTo(t time.Time, step time.Duration) time.Time {
	r := t.Truncate(step)
	if r.Before(t) {
		r = r.Add(step)
	}
	return r
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

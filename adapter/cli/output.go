package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/application/queries"
	"github.com/felixgeelhaar/tempo/internal/planning/application/services"
	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseDate reads YYYY-MM-DD, defaulting to today.
func parseDate(app *App, value string) (time.Time, error) {
	if value == "" {
		return app.Today(), nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format, use YYYY-MM-DD: %w", err)
	}
	return parsed, nil
}

// ParseTaskSpec reads MINUTES:PRIORITY:TITLE, e.g. "45:1:Write report".
// The title may itself contain colons.
func ParseTaskSpec(raw string) (domain.TaskToSchedule, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return domain.TaskToSchedule{}, fmt.Errorf("invalid task %q, use MINUTES:PRIORITY:TITLE", raw)
	}
	minutes, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return domain.TaskToSchedule{}, fmt.Errorf("invalid minutes in task %q: %w", raw, err)
	}
	p, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return domain.TaskToSchedule{}, fmt.Errorf("invalid priority in task %q: %w", raw, err)
	}
	priority, err := domain.NewPriority(p)
	if err != nil {
		return domain.TaskToSchedule{}, err
	}
	task := domain.TaskToSchedule{
		ID:               uuid.New(),
		Title:            strings.TrimSpace(parts[2]),
		Priority:         priority,
		EstimatedMinutes: minutes,
	}
	if err := task.Validate(); err != nil {
		return domain.TaskToSchedule{}, err
	}
	return task, nil
}

func clock(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "--:--"
	}
	return t.In(loc).Format("15:04")
}

func statusMark(status domain.TaskStatus) string {
	switch status {
	case domain.StatusCompleted:
		return "[x]"
	case domain.StatusInProgress:
		return "[>]"
	case domain.StatusSkipped:
		return "[!]"
	case domain.StatusUnscheduled:
		return "[-]"
	default:
		return "[ ]"
	}
}

func printPlan(w io.Writer, plan *queries.PlanDTO, loc *time.Location) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  PLAN: %s  (capacity %d, %s)\n", plan.Date, plan.CapacityScore, plan.Mode)
	fmt.Fprintln(w, strings.Repeat("=", 60))

	for _, t := range plan.Tasks {
		fmt.Fprintf(w, "  %2d %s %s-%s  %-32s P%d %3dm\n",
			t.Position,
			statusMark(t.Status),
			clock(t.Start, loc),
			clock(t.End, loc),
			truncate(t.Title, 32),
			t.Priority,
			t.AdjustedMinutes,
		)
		if verbose && t.Justification != "" {
			fmt.Fprintf(w, "       %s\n", t.Justification)
		}
		if t.DeferredReason != "" {
			fmt.Fprintf(w, "       deferred: %s\n", t.DeferredReason)
		}
	}

	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "  Scheduled %dm of %dm available, %dm budget left\n",
		plan.ScheduledMinutes, plan.AvailableMinutes, plan.RemainingBudget)
	if plan.Rescue {
		fmt.Fprintln(w, "  Rescue mode: only protected work is kept today.")
	}
	fmt.Fprintf(w, "  %s\n\n", plan.Justification)
}

func printProgress(w io.Writer, p *queries.ProgressDTO, loc *time.Location) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  PROGRESS: %s\n", p.Date)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "  Done %d/%d (%d%%)  in progress %d  skipped %d  upcoming %d\n",
		p.Totals.Completed, p.Totals.Total, p.CompletionPercentage,
		p.Totals.InProgress, p.Totals.Skipped, p.Totals.Upcoming)
	fmt.Fprintf(w, "  %s\n", aheadBehind(p.MinutesAheadBehind))
	fmt.Fprintf(w, "  Momentum: %s", p.Momentum.State)
	if p.Momentum.Intervention != "" && p.Momentum.Intervention != services.InterventionNone {
		fmt.Fprintf(w, " (%s)", p.Momentum.Intervention)
	}
	fmt.Fprintln(w)

	if p.CurrentTask != nil {
		fmt.Fprintf(w, "  Now:  %s (until %s)\n", p.CurrentTask.Title, clock(p.CurrentTask.End, loc))
	}
	if p.NextTask != nil {
		fmt.Fprintf(w, "  Next: %s at %s\n", p.NextTask.Title, clock(p.NextTask.Start, loc))
	}
	if p.HighestRisk != nil {
		fmt.Fprintf(w, "  Highest risk: %s %d%% (%s)\n", p.HighestRisk.Title, p.HighestRisk.Percentage, p.HighestRisk.Level)
		if verbose {
			fmt.Fprintf(w, "    %s\n", p.HighestRisk.Reasoning)
		}
	}

	fmt.Fprintln(w, strings.Repeat("-", 60))
	if p.Reschedule.Type == domain.RescheduleNone {
		fmt.Fprintln(w, "  On track, no reschedule needed.")
	} else {
		fmt.Fprintf(w, "  Reschedule suggested (%s): %s\n", p.Reschedule.Type, p.Reschedule.Reason)
		fmt.Fprintln(w, "  Run: tempo reschedule --apply")
	}
	fmt.Fprintln(w)
}

func aheadBehind(minutes int) string {
	switch {
	case minutes > 0:
		return fmt.Sprintf("%dm ahead of plan", minutes)
	case minutes < 0:
		return fmt.Sprintf("%dm behind plan", -minutes)
	default:
		return "Right on plan"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

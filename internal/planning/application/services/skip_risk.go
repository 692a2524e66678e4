package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/google/uuid"
)

const (
	baseSkipRisk     = 20
	afternoonHour    = 15
	morningEndHour   = 12
	morningOverrunAt = 15 * time.Minute
)

// RiskInput is everything the scorer looks at for one task.
type RiskInput struct {
	MinutesBehind  int
	TasksSkipped   int
	Momentum       domain.MomentumState
	Hour           int
	Priority       domain.Priority
	MorningOverran bool
}

// RiskFactor is one additive contribution in percentage points.
type RiskFactor struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
	Detail string `json:"detail"`
}

// RiskResult is computed fresh per task and never cached.
type RiskResult struct {
	Level               domain.RiskLevel `json:"level"`
	Percentage          int              `json:"percentage"`
	Factors             []RiskFactor     `json:"factors"`
	Reasoning           string           `json:"reasoning"`
	SuggestIntervention bool             `json:"suggest_intervention"`
}

// Snapshot is the part stored on the task.
func (r RiskResult) Snapshot() *domain.SkipRisk {
	return &domain.SkipRisk{Level: r.Level, Percentage: r.Percentage}
}

// ScoreSkipRisk starts at 20% and adds bounded contributions for delay,
// skips today, momentum, time of day and priority.
func ScoreSkipRisk(in RiskInput) RiskResult {
	var factors []RiskFactor
	add := func(name string, points int, detail string) {
		if points != 0 {
			factors = append(factors, RiskFactor{Name: name, Points: points, Detail: detail})
		}
	}

	behind := max(in.MinutesBehind, 0)
	switch {
	case behind > 30:
		add("schedule_delay", 55, fmt.Sprintf("%d min behind schedule", behind))
	case behind >= 15:
		add("schedule_delay", 30, fmt.Sprintf("%d min behind schedule", behind))
	case behind >= 1:
		add("schedule_delay", 15, fmt.Sprintf("%d min behind schedule", behind))
	}

	switch {
	case in.TasksSkipped >= 2:
		add("skip_history", 55, fmt.Sprintf("%d tasks already skipped today", in.TasksSkipped))
	case in.TasksSkipped == 1:
		add("skip_history", 40, "1 task already skipped today")
	}

	switch in.Momentum {
	case domain.MomentumCollapsed:
		add("momentum", 40, "momentum has collapsed")
	case domain.MomentumWeak:
		add("momentum", 20, "momentum is weak")
	case domain.MomentumStrong:
		add("momentum", -10, "momentum is strong")
	}

	if in.Hour >= afternoonHour {
		if in.MorningOverran {
			add("time_of_day", 20, "afternoon slot after a morning that ran over")
		} else {
			add("time_of_day", 10, "afternoon slot")
		}
	}

	switch {
	case in.Priority >= domain.PriorityMedium:
		add("priority", 15, fmt.Sprintf("priority %d task", in.Priority))
	case in.Priority == domain.PriorityHigh:
		add("priority", 5, "priority 2 task")
	}

	pct := baseSkipRisk
	for _, f := range factors {
		pct += f.Points
	}
	pct = min(max(pct, 0), 100)

	sort.SliceStable(factors, func(i, j int) bool { return factors[i].Points > factors[j].Points })
	level := domain.RiskLevelFor(pct)
	return RiskResult{
		Level:               level,
		Percentage:          pct,
		Factors:             factors,
		Reasoning:           riskReasoning(pct, level, factors),
		SuggestIntervention: level != domain.RiskLow,
	}
}

func riskReasoning(pct int, level domain.RiskLevel, factors []RiskFactor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s risk (%d%%): baseline %d%%", level, pct, baseSkipRisk)
	for _, f := range factors {
		fmt.Fprintf(&b, ", %+d%% %s", f.Points, f.Detail)
	}
	return b.String()
}

// PlanRisk is the risk of every remaining task and the highest of them.
type PlanRisk struct {
	Tasks   map[uuid.UUID]RiskResult `json:"tasks"`
	Highest RiskResult               `json:"highest"`
	TaskID  uuid.UUID                `json:"task_id"`
}

// AssessPlanRisk scores each remaining task of today's plan.
func AssessPlanRisk(
	tasks []domain.ScheduledTask,
	minutesAheadBehind int,
	momentum domain.MomentumState,
	now time.Time,
	loc *time.Location,
) PlanRisk {
	if loc == nil {
		loc = time.UTC
	}
	skipped := 0
	for _, t := range tasks {
		if t.Status(now) == domain.StatusSkipped {
			skipped++
		}
	}
	overran := MorningOverran(tasks, loc)

	risk := PlanRisk{Tasks: make(map[uuid.UUID]RiskResult)}
	first := true
	for _, t := range tasks {
		if !t.Status(now).IsRemaining() {
			continue
		}
		hour := now.In(loc).Hour()
		if t.ScheduledStart != nil && t.ScheduledStart.After(now) {
			hour = t.ScheduledStart.In(loc).Hour()
		}
		result := ScoreSkipRisk(RiskInput{
			MinutesBehind:  -minutesAheadBehind,
			TasksSkipped:   skipped,
			Momentum:       momentum,
			Hour:           hour,
			Priority:       t.Priority,
			MorningOverran: overran,
		})
		risk.Tasks[t.TaskID] = result
		if first || result.Percentage > risk.Highest.Percentage {
			risk.Highest = result
			risk.TaskID = t.TaskID
			first = false
		}
	}
	if first {
		risk.Highest = ScoreSkipRisk(RiskInput{Momentum: momentum, Priority: domain.PriorityUrgent})
	}
	return risk
}

// MorningOverran reports whether any morning task finished more than 15
// minutes after its scheduled end.
func MorningOverran(tasks []domain.ScheduledTask, loc *time.Location) bool {
	for _, t := range tasks {
		if !t.Completed || t.ActualEnd == nil || t.ScheduledStart == nil || t.ScheduledEnd == nil {
			continue
		}
		if t.ScheduledStart.In(loc).Hour() >= morningEndHour {
			continue
		}
		if t.ActualEnd.Sub(*t.ScheduledEnd) > morningOverrunAt {
			return true
		}
	}
	return false
}

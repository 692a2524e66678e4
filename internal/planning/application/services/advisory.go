package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/google/uuid"
)

// ErrInvalidAdvisory rejects an advisory response that does not fit the
// remaining day.
var ErrInvalidAdvisory = errors.New("invalid advisory response")

// Advisor is the optional model that may order and pad the remaining
// tasks. Every failure falls back to rule-based scheduling.
type Advisor interface {
	Suggest(ctx context.Context, req AdvisoryRequest) (*AdvisoryResponse, error)
}

// AdvisoryTask is a remaining task as the advisor sees it.
type AdvisoryTask struct {
	TaskID           string `json:"taskId"`
	Title            string `json:"title"`
	Priority         int    `json:"priority"`
	EstimatedMinutes int    `json:"estimatedMinutes"`
	Protected        bool   `json:"protected"`
	DueDate          string `json:"dueDate,omitempty"`
}

// AdvisoryRequest carries capacity, history and the tasks left today.
type AdvisoryRequest struct {
	Tasks                  []AdvisoryTask  `json:"tasks"`
	CapacityScore          int             `json:"capacityScore"`
	Mode                   string          `json:"mode"`
	AvailableMinutes       int             `json:"availableMinutes"`
	HistoricalBuffer       float64         `json:"historicalBuffer"`
	PerHourCompletionRates map[int]float64 `json:"perHourCompletionRates"`
	Goals                  []string        `json:"goals,omitempty"`
	RescheduleType         string          `json:"rescheduleType"`
	EarliestStart          time.Time       `json:"earliestStart"`
	LatestEnd              time.Time       `json:"latestEnd"`
	BufferBetweenMinutes   int             `json:"bufferBetweenMinutes"`
}

// AdvisorySlot is one suggested window. Times are RFC 3339.
type AdvisorySlot struct {
	TaskID          string `json:"taskId"`
	Start           string `json:"start"`
	End             string `json:"end"`
	AdjustedMinutes int    `json:"adjustedMinutes"`
	Reason          string `json:"reason"`
}

// AdvisoryResponse is the schema the advisor must return.
type AdvisoryResponse struct {
	ScheduledTasks   []AdvisorySlot `json:"scheduledTasks"`
	SkippedTaskIDs   []string       `json:"skippedTaskIds"`
	OverallReasoning string         `json:"overallReasoning"`
}

// AdvisoryBounds are the limits a suggestion must respect.
type AdvisoryBounds struct {
	EarliestStart time.Time
	LatestEnd     time.Time
	BudgetMinutes int
	AllowOverrun  bool
}

const (
	defaultAdvisoryReason = "placed by the advisory scheduler"
	defaultAdvisoryDefer  = "not placed by the advisory scheduler"
)

// ValidateAdvisory converts a response into a proposal or rejects it.
// Missing reasons are defaulted and tasks the advisor left out are
// deferred; anything structurally wrong is an error.
func ValidateAdvisory(resp *AdvisoryResponse, remaining []domain.ScheduledTask, bounds AdvisoryBounds) (domain.RescheduleProposal, error) {
	if resp == nil {
		return domain.RescheduleProposal{}, fmt.Errorf("%w: empty response", ErrInvalidAdvisory)
	}
	if strings.TrimSpace(resp.OverallReasoning) == "" {
		return domain.RescheduleProposal{}, fmt.Errorf("%w: missing overall reasoning", ErrInvalidAdvisory)
	}

	byID := make(map[uuid.UUID]domain.ScheduledTask, len(remaining))
	for _, t := range remaining {
		byID[t.TaskID] = t
	}
	seen := make(map[uuid.UUID]bool, len(remaining))
	claim := func(raw string) (domain.ScheduledTask, error) {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return domain.ScheduledTask{}, fmt.Errorf("%w: task id %q", ErrInvalidAdvisory, raw)
		}
		t, ok := byID[id]
		if !ok {
			return domain.ScheduledTask{}, fmt.Errorf("%w: unknown task %s", ErrInvalidAdvisory, id)
		}
		if seen[id] {
			return domain.ScheduledTask{}, fmt.Errorf("%w: task %s listed twice", ErrInvalidAdvisory, id)
		}
		seen[id] = true
		return t, nil
	}

	var proposal domain.RescheduleProposal
	total := 0
	lowestScheduled := domain.PriorityUrgent
	for _, slot := range resp.ScheduledTasks {
		t, err := claim(slot.TaskID)
		if err != nil {
			return domain.RescheduleProposal{}, err
		}
		start, err := time.Parse(time.RFC3339, slot.Start)
		if err != nil {
			return domain.RescheduleProposal{}, fmt.Errorf("%w: start of %s: %v", ErrInvalidAdvisory, t.TaskID, err)
		}
		end, err := time.Parse(time.RFC3339, slot.End)
		if err != nil {
			return domain.RescheduleProposal{}, fmt.Errorf("%w: end of %s: %v", ErrInvalidAdvisory, t.TaskID, err)
		}
		if !end.After(start) || slot.AdjustedMinutes <= 0 {
			return domain.RescheduleProposal{}, fmt.Errorf("%w: empty window for %s", ErrInvalidAdvisory, t.TaskID)
		}
		if int(end.Sub(start).Minutes()) != slot.AdjustedMinutes {
			return domain.RescheduleProposal{}, fmt.Errorf("%w: window of %s does not match %d minutes", ErrInvalidAdvisory, t.TaskID, slot.AdjustedMinutes)
		}
		if start.Before(bounds.EarliestStart) || (!bounds.LatestEnd.IsZero() && end.After(bounds.LatestEnd)) {
			return domain.RescheduleProposal{}, fmt.Errorf("%w: window of %s is outside the remaining day", ErrInvalidAdvisory, t.TaskID)
		}
		reason := strings.TrimSpace(slot.Reason)
		if reason == "" {
			reason = defaultAdvisoryReason
		}
		total += slot.AdjustedMinutes
		lowestScheduled = max(lowestScheduled, t.Priority)
		proposal.Scheduled = append(proposal.Scheduled, domain.TaskWindow{
			TaskID:          t.TaskID,
			Start:           start.UTC(),
			End:             end.UTC(),
			AdjustedMinutes: slot.AdjustedMinutes,
			Reason:          reason,
		})
	}

	if overlapping(proposal.Scheduled) {
		return domain.RescheduleProposal{}, fmt.Errorf("%w: windows overlap", ErrInvalidAdvisory)
	}
	if total > bounds.BudgetMinutes && !bounds.AllowOverrun {
		return domain.RescheduleProposal{}, fmt.Errorf("%w: %d minutes exceed the %d minute budget", ErrInvalidAdvisory, total, bounds.BudgetMinutes)
	}

	for _, raw := range resp.SkippedTaskIDs {
		t, err := claim(raw)
		if err != nil {
			return domain.RescheduleProposal{}, err
		}
		proposal.Deferred = append(proposal.Deferred, domain.DeferredTask{TaskID: t.TaskID, Reason: defaultAdvisoryDefer})
	}
	for _, t := range remaining {
		if seen[t.TaskID] {
			continue
		}
		proposal.Deferred = append(proposal.Deferred, domain.DeferredTask{TaskID: t.TaskID, Reason: defaultAdvisoryDefer})
	}

	for _, d := range proposal.Deferred {
		if byID[d.TaskID].Priority.IsProtected() && lowestScheduled > domain.PriorityHigh {
			return domain.RescheduleProposal{}, fmt.Errorf("%w: protected task %s deferred while lower priority work is kept", ErrInvalidAdvisory, d.TaskID)
		}
	}

	proposal.Source = domain.SourceAdvisory
	proposal.Rescue = total > bounds.BudgetMinutes
	proposal.Justification = strings.TrimSpace(resp.OverallReasoning)
	return proposal, nil
}

func overlapping(windows []domain.TaskWindow) bool {
	sorted := make([]domain.TaskWindow, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start.Before(sorted[i-1].End) {
			return true
		}
	}
	return false
}

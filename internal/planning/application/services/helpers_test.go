package services

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func clock(hour, minute int) time.Time {
	return testDay.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func windowTask(title string, priority domain.Priority, start time.Time, minutes int) domain.ScheduledTask {
	return domain.ScheduledTask{
		TaskID:          uuid.New(),
		Title:           title,
		Priority:        priority,
		ScheduledStart:  domain.TimePtr(start),
		ScheduledEnd:    domain.TimePtr(start.Add(time.Duration(minutes) * time.Minute)),
		OriginalMinutes: minutes,
		AdjustedMinutes: minutes,
		Justification:   "test window",
	}
}

func completedAt(t domain.ScheduledTask, end time.Time) domain.ScheduledTask {
	t.Completed = true
	t.ActualEnd = domain.TimePtr(end)
	return t
}

func startedAt(t domain.ScheduledTask, start time.Time) domain.ScheduledTask {
	t.ActualStart = domain.TimePtr(start)
	return t
}

func buildPlan(t *testing.T, capacity int, tasks ...domain.ScheduledTask) *domain.Plan {
	t.Helper()
	plan, err := domain.NewPlan(uuid.New(), testDay, capacity, domain.ModeBalanced, "test plan", tasks, clock(7, 0))
	require.NoError(t, err)
	return plan
}

package queries

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/application/services"
	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/felixgeelhaar/tempo/internal/planning/infrastructure/persistence"
	"github.com/felixgeelhaar/tempo/pkg/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(day time.Time, hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func window(day time.Time, title string, priority domain.Priority, hour, minute, minutes int) domain.ScheduledTask {
	start := at(day, hour, minute)
	return domain.ScheduledTask{
		TaskID:          uuid.New(),
		Title:           title,
		Priority:        priority,
		ScheduledStart:  domain.TimePtr(start),
		ScheduledEnd:    domain.TimePtr(start.Add(time.Duration(minutes) * time.Minute)),
		OriginalMinutes: minutes,
		AdjustedMinutes: minutes,
		Justification:   "seeded window",
	}
}

func seed(t *testing.T, store *persistence.InMemoryStore, userID uuid.UUID, day time.Time, tasks ...domain.ScheduledTask) *domain.Plan {
	t.Helper()
	plan, err := domain.NewPlan(userID, day, 80, domain.ModeBalanced, "seeded plan", tasks, day)
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), plan))
	return plan
}

func TestGetPlanHandler_Handle(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewInMemoryStore()
	userID := uuid.New()

	done := window(testDay, "report", domain.PriorityUrgent, 9, 0, 60)
	done.Completed = true
	done.ActualEnd = domain.TimePtr(at(testDay, 9, 50))
	done.ActualMinutes = 50
	missed := window(testDay, "expenses", domain.PriorityMedium, 10, 0, 30)
	later := window(testDay, "review", domain.PriorityHigh, 14, 0, 45)
	plan := seed(t, store, userID, testDay, later, missed, done)

	handler := NewGetPlanHandler(store)

	dto, err := handler.Handle(ctx, GetPlanQuery{UserID: userID, Date: testDay, Now: at(testDay, 11, 0)})
	require.NoError(t, err)

	assert.Equal(t, plan.ID(), dto.ID)
	assert.Equal(t, "2026-03-02", dto.Date)
	assert.Equal(t, 135, dto.ScheduledMinutes)
	require.Len(t, dto.Tasks, 3)
	assert.Equal(t, []string{"report", "expenses", "review"}, []string{dto.Tasks[0].Title, dto.Tasks[1].Title, dto.Tasks[2].Title})
	assert.Equal(t, 1, dto.Tasks[0].Position)
	assert.Equal(t, domain.StatusCompleted, dto.Tasks[0].Status)
	assert.Equal(t, domain.StatusSkipped, dto.Tasks[1].Status)
	assert.Equal(t, domain.StatusUpcoming, dto.Tasks[2].Status)

	_, err = handler.Handle(ctx, GetPlanQuery{UserID: userID, Date: testDay.AddDate(0, 0, 1)})
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestGetProgressHandler_Handle(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewInMemoryStore()
	userID := uuid.New()

	report := window(testDay, "report", domain.PriorityUrgent, 9, 0, 60)
	report.Completed = true
	report.ActualEnd = domain.TimePtr(at(testDay, 9, 45))
	report.ActualMinutes = 45
	review := window(testDay, "review", domain.PriorityMedium, 10, 30, 30)
	seed(t, store, userID, testDay, report, review)

	profiles := services.NewProfileLoader(store, store, config.DefaultEngineConfig())
	handler := NewGetProgressHandler(store, profiles, nil)

	dto, err := handler.Handle(ctx, GetProgressQuery{UserID: userID, Date: testDay, Now: at(testDay, 10, 0)})
	require.NoError(t, err)

	assert.Equal(t, 15, dto.MinutesAheadBehind)
	assert.Equal(t, 50, dto.CompletionPercentage)
	assert.Equal(t, 1, dto.Totals.Completed)
	assert.Equal(t, domain.MomentumStrong, dto.Momentum.State)
	assert.Equal(t, services.InterventionOfferMore, dto.Momentum.Intervention)
	require.NotNil(t, dto.NextTask)
	assert.Equal(t, review.TaskID, dto.NextTask.TaskID)
	assert.Nil(t, dto.CurrentTask)

	require.Len(t, dto.Risks, 1)
	require.NotNil(t, dto.HighestRisk)
	assert.Equal(t, review.TaskID, dto.HighestRisk.TaskID)
	// 20 base + 15 for a priority 3 task - 10 for strong momentum.
	assert.Equal(t, 25, dto.HighestRisk.Percentage)
	assert.Equal(t, domain.RiskLow, dto.HighestRisk.Level)

	assert.Equal(t, domain.RescheduleNone, dto.Reschedule.Type)
}

func TestGetInsightsHandler_Handle(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	now := at(testDay, 8, 0)

	t.Run("neutral without history", func(t *testing.T) {
		store := persistence.NewInMemoryStore()
		handler := NewGetInsightsHandler(services.NewProfileLoader(store, store, config.DefaultEngineConfig()))

		dto, err := handler.Handle(ctx, GetInsightsQuery{UserID: userID, Now: now})
		require.NoError(t, err)

		assert.Equal(t, 1.0, dto.Buffer.Buffer)
		assert.Equal(t, domain.ConfidenceLow, dto.Buffer.Confidence)
		assert.Empty(t, dto.PeakHours)
		assert.Zero(t, dto.Days)
		assert.Equal(t, domain.ConfidenceLow, dto.Trends.Confidence)
	})

	t.Run("summarizes recent days", func(t *testing.T) {
		store := persistence.NewInMemoryStore()
		for d := 1; d <= 3; d++ {
			day := testDay.AddDate(0, 0, -d)
			morning := window(day, "morning", domain.PriorityHigh, 9, 0, 60)
			morning.ActualStart = domain.TimePtr(at(day, 9, 0))
			morning.Completed = true
			morning.ActualEnd = domain.TimePtr(at(day, 10, 30))
			morning.ActualMinutes = 90
			afternoon := window(day, "afternoon", domain.PriorityMedium, 15, 0, 30)
			seed(t, store, userID, day, morning, afternoon)
		}
		handler := NewGetInsightsHandler(services.NewProfileLoader(store, store, config.DefaultEngineConfig()))

		dto, err := handler.Handle(ctx, GetInsightsQuery{UserID: userID, Now: now})
		require.NoError(t, err)

		assert.Equal(t, 3, dto.Days)
		assert.Equal(t, 1.5, dto.Buffer.Buffer)
		assert.Equal(t, 3, dto.Buffer.SampleSize)
		assert.Equal(t, 100, dto.Trends.MorningStartStrength)
		assert.Equal(t, 100, dto.Trends.AfternoonFalloff)
		assert.Equal(t, 6, dto.Trends.Samples)
		assert.Equal(t, []int{10, 15}, dto.PeakHours)
		assert.Equal(t, []int{15, 10}, dto.LowHours)
	})
}

package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/felixgeelhaar/tempo/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

type recordingSyncer struct {
	userID   uuid.UUID
	blocks   []TimeBlock
	deadline bool
	result   *SyncResult
	err      error
}

func (s *recordingSyncer) Sync(ctx context.Context, userID uuid.UUID, blocks []TimeBlock) (*SyncResult, error) {
	_, s.deadline = ctx.Deadline()
	s.userID = userID
	s.blocks = blocks
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &SyncResult{Created: len(blocks)}, nil
}

func window(title string, hour, minutes int) domain.ScheduledTask {
	start := day.Add(time.Duration(hour) * time.Hour)
	return domain.ScheduledTask{
		TaskID:          uuid.New(),
		Title:           title,
		Priority:        domain.PriorityMedium,
		ScheduledStart:  domain.TimePtr(start),
		ScheduledEnd:    domain.TimePtr(start.Add(time.Duration(minutes) * time.Minute)),
		OriginalMinutes: minutes,
		AdjustedMinutes: minutes,
		Justification:   "morning block",
	}
}

func testPlan(t *testing.T) (*domain.Plan, domain.ScheduledTask, domain.ScheduledTask) {
	t.Helper()
	early := window("inbox zero", 9, 30)
	late := window("write report", 14, 60)
	late.Project = "quarterly"
	parked := domain.ScheduledTask{
		TaskID:          uuid.New(),
		Title:           "someday",
		Priority:        domain.PriorityLow,
		OriginalMinutes: 30,
		AdjustedMinutes: 30,
		Justification:   "no room today",
		DeferredReason:  "no room today",
	}
	plan, err := domain.NewPlan(uuid.New(), day, 80, domain.ModeBalanced, "seeded", []domain.ScheduledTask{early, late, parked}, day)
	require.NoError(t, err)
	return plan, early, late
}

func TestPlanBlocks(t *testing.T) {
	plan, early, late := testPlan(t)

	blocks := PlanBlocks(plan, day.Add(12*time.Hour))

	require.Len(t, blocks, 2)
	assert.Equal(t, early.TaskID, blocks[0].ID)
	assert.Equal(t, "task", blocks[0].BlockType)
	assert.True(t, blocks[0].Missed)
	assert.Equal(t, late.TaskID, blocks[1].ID)
	assert.Equal(t, "quarterly", blocks[1].BlockType)
	assert.False(t, blocks[1].Missed)
	assert.Equal(t, *late.ScheduledEnd, blocks[1].EndTime)
}

func TestMirror_MirrorPlan(t *testing.T) {
	plan, _, _ := testPlan(t)
	syncer := &recordingSyncer{}
	metrics := observability.NewInMemoryMetrics()
	mirror := NewMirror(syncer, time.Second, nil, metrics)

	mirror.MirrorPlan(context.Background(), plan)

	assert.Equal(t, plan.UserID(), syncer.userID)
	assert.Len(t, syncer.blocks, 2)
	assert.True(t, syncer.deadline)
	assert.Zero(t, metrics.GetCounter(observability.MetricCalendarMirrorFail))
}

func TestMirror_FailuresAreCounted(t *testing.T) {
	plan, _, _ := testPlan(t)

	t.Run("sync error", func(t *testing.T) {
		metrics := observability.NewInMemoryMetrics()
		mirror := NewMirror(&recordingSyncer{err: errors.New("calendar down")}, 0, nil, metrics)

		assert.NotPanics(t, func() { mirror.MirrorPlan(context.Background(), plan) })
		assert.Equal(t, int64(2), metrics.GetCounter(observability.MetricCalendarMirrorFail))
	})

	t.Run("partial failure", func(t *testing.T) {
		metrics := observability.NewInMemoryMetrics()
		mirror := NewMirror(&recordingSyncer{result: &SyncResult{Created: 1, Failed: 1}}, 0, nil, metrics)

		mirror.MirrorPlan(context.Background(), plan)
		assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricCalendarMirrorFail))
	})
}

func TestMirror_NilSafe(t *testing.T) {
	var mirror *Mirror
	assert.NotPanics(t, func() { mirror.MirrorPlan(context.Background(), nil) })
	assert.NotPanics(t, func() { NewMirror(nil, 0, nil, nil).MirrorPlan(context.Background(), nil) })
}

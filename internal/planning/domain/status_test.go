package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name string
		snap TaskSnapshot
		now  time.Time
		want TaskStatus
	}{
		{"completed wins", TaskSnapshot{Completed: true, ScheduledStart: &start, ScheduledEnd: &end}, end.Add(time.Hour), StatusCompleted},
		{"started is in progress even after end", TaskSnapshot{ActualStart: &start, ScheduledStart: &start, ScheduledEnd: &end}, end.Add(time.Hour), StatusInProgress},
		{"no window", TaskSnapshot{}, start, StatusUnscheduled},
		{"past end and never started is skipped", TaskSnapshot{ScheduledStart: &start, ScheduledEnd: &end}, end.Add(time.Minute), StatusSkipped},
		{"exactly at end is not yet skipped", TaskSnapshot{ScheduledStart: &start, ScheduledEnd: &end}, end, StatusPending},
		{"inside window", TaskSnapshot{ScheduledStart: &start, ScheduledEnd: &end}, start.Add(10 * time.Minute), StatusPending},
		{"before window", TaskSnapshot{ScheduledStart: &start, ScheduledEnd: &end}, start.Add(-time.Minute), StatusUpcoming},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.snap, tt.now))
		})
	}
}

func TestTaskStatus_IsRemaining(t *testing.T) {
	assert.True(t, StatusSkipped.IsRemaining())
	assert.True(t, StatusUnscheduled.IsRemaining())
	assert.False(t, StatusCompleted.IsRemaining())
	assert.False(t, StatusInProgress.IsRemaining())
}

func TestBucketOutcomes(t *testing.T) {
	done := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	outcomes := []TaskOutcome{
		{ScheduledStart: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), CompletedAt: &done, Completed: true},
		{ScheduledStart: time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)},
		{},
	}

	got := BucketOutcomes(outcomes, time.UTC)
	assert.Equal(t, []HourlyOutcome{{Hour: 14, Completed: true}, {Hour: 11}}, got)

	berlin := time.FixedZone("CET", 3600)
	assert.Equal(t, 15, BucketOutcomes(outcomes[:1], berlin)[0].Hour)
}

func TestRiskLevelFor(t *testing.T) {
	assert.Equal(t, RiskLow, RiskLevelFor(39))
	assert.Equal(t, RiskMedium, RiskLevelFor(40))
	assert.Equal(t, RiskHigh, RiskLevelFor(60))
}

func TestConfidenceFor(t *testing.T) {
	assert.Equal(t, ConfidenceLow, ConfidenceFor(4, 5, 15))
	assert.Equal(t, ConfidenceMedium, ConfidenceFor(5, 5, 15))
	assert.Equal(t, ConfidenceHigh, ConfidenceFor(15, 5, 15))
}

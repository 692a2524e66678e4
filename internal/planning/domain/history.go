package domain

import "time"

// CompletionSample is one finished task with both durations known.
type CompletionSample struct {
	EstimatedMinutes int
	ActualMinutes    int
}

// TaskOutcome is a past scheduled task and whether it got done.
type TaskOutcome struct {
	ScheduledStart time.Time
	CompletedAt    *time.Time
	Completed      bool
}

// HourlyOutcome attributes an outcome to an hour of the day.
type HourlyOutcome struct {
	Hour      int
	Completed bool
}

// BucketOutcomes assigns completed tasks to their completion hour and
// missed ones to their scheduled hour, in loc.
func BucketOutcomes(outcomes []TaskOutcome, loc *time.Location) []HourlyOutcome {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]HourlyOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		at := o.ScheduledStart
		if o.Completed && o.CompletedAt != nil {
			at = *o.CompletedAt
		}
		if at.IsZero() {
			continue
		}
		out = append(out, HourlyOutcome{Hour: at.In(loc).Hour(), Completed: o.Completed})
	}
	return out
}

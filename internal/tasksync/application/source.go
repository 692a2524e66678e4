package application

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ExternalTask is a task as an external task list reports it. Priority is
// already on the engine scale, 1 being the most important.
type ExternalTask struct {
	ID               string
	Title            string
	Priority         int
	EstimatedMinutes int
	DueDate          *time.Time
	Project          string
	Completed        bool
	CompletedAt      *time.Time
}

// Source lists a user's tasks from an external task manager.
type Source interface {
	Name() string
	ListTasks(ctx context.Context, userID uuid.UUID) ([]ExternalTask, error)
}

// taskNamespace scopes the deterministic IDs of imported tasks.
var taskNamespace = uuid.MustParse("6f1c2a8e-3d4b-5c6d-8e7f-901a2b3c4d5e")

// TaskID maps an external task to a stable engine task ID, so the same
// external task keeps its identity across plans.
func TaskID(source, externalID string) uuid.UUID {
	return uuid.NewSHA1(taskNamespace, []byte(source+":"+externalID))
}

// DefaultEstimateMinutes is used when the source has no duration.
const DefaultEstimateMinutes = 30

// Pending returns the tasks that are not completed, with missing
// estimates and priorities filled in.
func Pending(tasks []ExternalTask) []ExternalTask {
	out := make([]ExternalTask, 0, len(tasks))
	for _, t := range tasks {
		if t.Completed {
			continue
		}
		if t.EstimatedMinutes <= 0 {
			t.EstimatedMinutes = DefaultEstimateMinutes
		}
		if t.Priority < 1 || t.Priority > 4 {
			t.Priority = 3
		}
		out = append(out, t)
	}
	return out
}

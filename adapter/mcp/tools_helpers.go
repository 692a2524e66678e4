package mcp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

var errNoDatabase = errors.New("requires database connection")

func parseDate(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format, use YYYY-MM-DD: %w", err)
	}
	return parsed, nil
}

func parseOptionalTime(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time format, use RFC3339: %w", err)
	}
	return parsed, nil
}

// toTasks converts tool input into tasks to schedule. Tasks without an id
// get a fresh one.
func toTasks(input []planTaskInput) ([]domain.TaskToSchedule, error) {
	tasks := make([]domain.TaskToSchedule, 0, len(input))
	for i, in := range input {
		id := uuid.New()
		if in.ID != "" {
			parsed, err := uuid.Parse(in.ID)
			if err != nil {
				return nil, fmt.Errorf("task %d: invalid id: %w", i+1, err)
			}
			id = parsed
		}
		priority, err := domain.NewPriority(in.Priority)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i+1, err)
		}
		task := domain.TaskToSchedule{
			ID:               id,
			ExternalID:       in.ExternalID,
			Title:            strings.TrimSpace(in.Title),
			Priority:         priority,
			EstimatedMinutes: in.EstimatedMinutes,
			Project:          in.Project,
		}
		if in.DueDate != "" {
			due, err := time.Parse(dateLayout, in.DueDate)
			if err != nil {
				return nil, fmt.Errorf("task %d: invalid due date format, use YYYY-MM-DD: %w", i+1, err)
			}
			task.DueDate = &due
		}
		if err := task.Validate(); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

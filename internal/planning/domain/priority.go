package domain

// Priority runs from 1 (highest) to 4 (lowest).
type Priority int

const (
	PriorityUrgent Priority = 1
	PriorityHigh   Priority = 2
	PriorityMedium Priority = 3
	PriorityLow    Priority = 4
)

func NewPriority(p int) (Priority, error) {
	pr := Priority(p)
	if !pr.IsValid() {
		return 0, NewValidationError(CodeInvalidPriority, "priority must be between 1 and 4, got %d", p)
	}
	return pr, nil
}

func (p Priority) IsValid() bool {
	return p >= PriorityUrgent && p <= PriorityLow
}

// IsProtected reports whether a reschedule must try to keep the task.
func (p Priority) IsProtected() bool {
	return p <= PriorityHigh
}

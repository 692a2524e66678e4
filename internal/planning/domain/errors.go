package domain

import (
	"errors"
	"fmt"
)

// Validation error codes.
const (
	CodeInvalidCapacity   = "INVALID_CAPACITY"
	CodeInvalidMode       = "INVALID_MODE"
	CodeInvalidPriority   = "INVALID_PRIORITY"
	CodeInvalidEstimate   = "INVALID_ESTIMATE"
	CodeMissingIdentifier = "MISSING_IDENTIFIER"
	CodeInvalidTimeRange  = "INVALID_TIME_RANGE"
)

var (
	ErrPlanNotFound      = errors.New("plan not found")
	ErrTaskNotFound      = errors.New("task not found in plan")
	ErrPlanAlreadyExists = errors.New("plan already exists for this date")

	// ErrConcurrentModification means another request changed the plan
	// first. The caller should reload and retry.
	ErrConcurrentModification = errors.New("plan was modified concurrently")

	// ErrInvariantViolation marks a computation that broke a plan
	// invariant. It indicates a bug, never bad input.
	ErrInvariantViolation = errors.New("plan invariant violated")
)

// ValidationError rejects malformed input before any state changes.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError formats a ValidationError.
func NewValidationError(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsRetryable reports whether repeating the request may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

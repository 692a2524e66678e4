package domain

import (
	"math"
	"strings"
)

// BaseDailyMinutes is the working day at full capacity.
const BaseDailyMinutes = 480

// Mode is a coarse capacity tier.
type Mode string

const (
	ModeRecovery Mode = "recovery"
	ModeBalanced Mode = "balanced"
	ModeDeepWork Mode = "deep_work"
)

// ParseMode accepts the mode names case-insensitively; "deep-work" is
// accepted for deep_work.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !m.IsValid() {
		return "", NewValidationError(CodeInvalidMode, "mode must be recovery, balanced or deep_work, got %q", s)
	}
	return m, nil
}

func (m Mode) IsValid() bool {
	switch m {
	case ModeRecovery, ModeBalanced, ModeDeepWork:
		return true
	}
	return false
}

// Multiplier scales the daily budget.
func (m Mode) Multiplier() float64 {
	switch m {
	case ModeRecovery:
		return 0.5
	case ModeDeepWork:
		return 1.2
	default:
		return 1.0
	}
}

func (m Mode) String() string { return string(m) }

// ValidateCapacity rejects scores outside [0,100].
func ValidateCapacity(score int) error {
	if score < 0 || score > 100 {
		return NewValidationError(CodeInvalidCapacity, "capacity score must be between 0 and 100, got %d", score)
	}
	return nil
}

// ClampCapacity forces score into [0,100].
func ClampCapacity(score int) int {
	return min(max(score, 0), 100)
}

// AvailableMinutes converts capacity and mode into a daily budget:
// round(480 × score/100 × multiplier).
func AvailableMinutes(score int, mode Mode) int {
	score = ClampCapacity(score)
	minutes := float64(BaseDailyMinutes) * float64(score) / 100 * mode.Multiplier()
	return int(math.Round(minutes))
}

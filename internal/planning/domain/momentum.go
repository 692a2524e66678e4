package domain

// MomentumState summarizes today's completion behavior.
type MomentumState string

const (
	MomentumStrong    MomentumState = "strong"
	MomentumNormal    MomentumState = "normal"
	MomentumWeak      MomentumState = "weak"
	MomentumCollapsed MomentumState = "collapsed"
)

// Multiplier scales the minutes offered for the rest of the day.
func (m MomentumState) Multiplier() float64 {
	switch m {
	case MomentumStrong:
		return 1.15
	case MomentumWeak:
		return 0.80
	case MomentumCollapsed:
		return 0.50
	default:
		return 1.0
	}
}

func (m MomentumState) IsValid() bool {
	switch m {
	case MomentumStrong, MomentumNormal, MomentumWeak, MomentumCollapsed:
		return true
	}
	return false
}

// Confidence grades a learned model by its sample size.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ConfidenceFor grades n samples: below mediumAt is low, from highAt on
// it is high.
func ConfidenceFor(n, mediumAt, highAt int) Confidence {
	switch {
	case n >= highAt:
		return ConfidenceHigh
	case n >= mediumAt:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// RiskLevel bands a skip-risk percentage.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskLevelFor maps a percentage to its band: high from 60, medium from 40.
func RiskLevelFor(percentage int) RiskLevel {
	switch {
	case percentage >= 60:
		return RiskHigh
	case percentage >= 40:
		return RiskMedium
	default:
		return RiskLow
	}
}

// SkipRisk is the risk snapshot stored on a scheduled task.
type SkipRisk struct {
	Level      RiskLevel `json:"level"`
	Percentage int       `json:"percentage"`
}

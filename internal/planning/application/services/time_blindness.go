package services

import (
	"fmt"
	"math"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
)

// DefaultBufferSamples bounds the completion history the model reads.
const DefaultBufferSamples = 30

// BufferProfile is the learned estimate-accuracy multiplier.
type BufferProfile struct {
	Buffer         float64           `json:"buffer"`
	Confidence     domain.Confidence `json:"confidence"`
	SampleSize     int               `json:"sample_size"`
	Recommendation string            `json:"recommendation"`
}

// NeutralBufferProfile leaves estimates untouched.
func NeutralBufferProfile() BufferProfile {
	return BufferProfile{
		Buffer:         1.0,
		Confidence:     domain.ConfidenceLow,
		Recommendation: "No completed tasks with recorded durations yet; estimates are used as given.",
	}
}

// Applied reports whether Apply changes estimates. Low confidence buffers
// are never applied.
func (b BufferProfile) Applied() bool {
	return b.Confidence != domain.ConfidenceLow
}

// Apply returns round(estimated × buffer), or the estimate unchanged
// while confidence is low.
func (b BufferProfile) Apply(estimated int) int {
	if estimated <= 0 {
		return 0
	}
	if !b.Applied() {
		return estimated
	}
	// A positive estimate never collapses to an empty window.
	return max(int(math.Round(float64(estimated)*math.Max(b.Buffer, 0))), 1)
}

// TimeBlindnessModel learns how far actual durations drift from estimates.
type TimeBlindnessModel struct {
	maxSamples int
}

// NewTimeBlindnessModel reads at most maxSamples completions.
func NewTimeBlindnessModel(maxSamples int) *TimeBlindnessModel {
	if maxSamples <= 0 {
		maxSamples = DefaultBufferSamples
	}
	return &TimeBlindnessModel{maxSamples: maxSamples}
}

// MaxSamples is the history limit callers should request.
func (m *TimeBlindnessModel) MaxSamples() int { return m.maxSamples }

// Learn averages actual/estimated over the newest samples. Samples without
// a positive estimate and actual are ignored.
func (m *TimeBlindnessModel) Learn(samples []domain.CompletionSample) BufferProfile {
	var (
		sum float64
		n   int
	)
	for _, s := range samples {
		if n == m.maxSamples {
			break
		}
		if s.EstimatedMinutes <= 0 || s.ActualMinutes <= 0 {
			continue
		}
		sum += float64(s.ActualMinutes) / float64(s.EstimatedMinutes)
		n++
	}
	if n == 0 {
		return NeutralBufferProfile()
	}

	buffer := math.Round(sum/float64(n)*100) / 100
	profile := BufferProfile{
		Buffer:     buffer,
		Confidence: domain.ConfidenceFor(n, 5, 15),
		SampleSize: n,
	}
	profile.Recommendation = bufferRecommendation(profile)
	return profile
}

func bufferRecommendation(p BufferProfile) string {
	if !p.Applied() {
		return fmt.Sprintf("Only %d completed tasks recorded; estimates stay unadjusted until at least 5.", p.SampleSize)
	}
	pct := int(math.Round(math.Abs(p.Buffer-1) * 100))
	switch {
	case p.Buffer > 1.05:
		return fmt.Sprintf("Tasks take about %d%% longer than estimated; durations are padded by %.2fx.", pct, p.Buffer)
	case p.Buffer < 0.95:
		return fmt.Sprintf("Tasks finish about %d%% faster than estimated; durations are shortened by %.2fx.", pct, p.Buffer)
	default:
		return "Estimates match actual durations closely; no padding needed."
	}
}

package services

import (
	"sort"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
)

const (
	// DefaultWindowSamples bounds the outcome history the model reads.
	DefaultWindowSamples = 50

	minHourSamples = 3
	rankedHours    = 3
)

// HourStat is the completion record of one hour of the day.
type HourStat struct {
	Hour      int     `json:"hour"`
	Total     int     `json:"total"`
	Completed int     `json:"completed"`
	Rate      float64 `json:"rate"`
}

// Reliable reports whether the hour has enough samples to rank.
func (h HourStat) Reliable() bool { return h.Total >= minHourSamples }

// WindowProfile is the learned per-hour completion profile.
type WindowProfile struct {
	Hours      [24]HourStat `json:"-"`
	PeakHours  []int        `json:"peak_hours"`
	LowHours   []int        `json:"low_hours"`
	SampleSize int          `json:"sample_size"`
}

// ProductivityWindowModel learns when tasks tend to get done.
type ProductivityWindowModel struct {
	maxSamples int
}

func NewProductivityWindowModel(maxSamples int) *ProductivityWindowModel {
	if maxSamples <= 0 {
		maxSamples = DefaultWindowSamples
	}
	return &ProductivityWindowModel{maxSamples: maxSamples}
}

func (m *ProductivityWindowModel) MaxSamples() int { return m.maxSamples }

// Learn buckets the newest outcomes by hour and ranks reliable hours.
func (m *ProductivityWindowModel) Learn(outcomes []domain.HourlyOutcome) WindowProfile {
	var p WindowProfile
	for h := range p.Hours {
		p.Hours[h].Hour = h
	}
	for _, o := range outcomes {
		if p.SampleSize == m.maxSamples {
			break
		}
		if o.Hour < 0 || o.Hour > 23 {
			continue
		}
		p.Hours[o.Hour].Total++
		if o.Completed {
			p.Hours[o.Hour].Completed++
		}
		p.SampleSize++
	}

	reliable := make([]HourStat, 0, 24)
	for h := range p.Hours {
		s := &p.Hours[h]
		if s.Total > 0 {
			s.Rate = float64(s.Completed) / float64(s.Total)
		}
		if s.Reliable() {
			reliable = append(reliable, *s)
		}
	}

	sort.SliceStable(reliable, func(i, j int) bool { return reliable[i].Rate > reliable[j].Rate })
	for i := 0; i < len(reliable) && i < rankedHours; i++ {
		p.PeakHours = append(p.PeakHours, reliable[i].Hour)
	}
	sort.SliceStable(reliable, func(i, j int) bool { return reliable[i].Rate < reliable[j].Rate })
	for i := 0; i < len(reliable) && i < rankedHours; i++ {
		p.LowHours = append(p.LowHours, reliable[i].Hour)
	}
	return p
}

// HasData reports whether any hour is reliable.
func (p WindowProfile) HasData() bool { return len(p.PeakHours) > 0 }

// RecommendHour picks a start hour: the best peak hour for priority 1-2,
// and the median of reliable hours with at least 50% completion for
// lower priorities, keeping peak hours free for important work. ok is
// false when history is too thin to prefer any hour.
func (p WindowProfile) RecommendHour(priority domain.Priority) (hour int, ok bool) {
	if !p.HasData() {
		return 0, false
	}
	if priority.IsProtected() {
		return p.PeakHours[0], true
	}
	return p.MidTierHour()
}

// MidTierHour is the median of reliable hours with a rate of at least 50%.
func (p WindowProfile) MidTierHour() (int, bool) {
	var acceptable []int
	for _, s := range p.Hours {
		if s.Reliable() && s.Rate >= 0.5 {
			acceptable = append(acceptable, s.Hour)
		}
	}
	if len(acceptable) == 0 {
		return 0, false
	}
	return acceptable[(len(acceptable)-1)/2], true
}

// Rates returns the completion rate of every hour with samples.
func (p WindowProfile) Rates() map[int]float64 {
	rates := make(map[int]float64)
	for _, s := range p.Hours {
		if s.Total > 0 {
			rates[s.Hour] = s.Rate
		}
	}
	return rates
}

// Stats returns the hours that have samples.
func (p WindowProfile) Stats() []HourStat {
	out := make([]HourStat, 0, 24)
	for _, s := range p.Hours {
		if s.Total > 0 {
			out = append(out, s)
		}
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxAdvisoryTimeout caps how long a reschedule may wait on the advisory
// model.
const MaxAdvisoryTimeout = 10 * time.Second

// EngineConfig is the engine tuning file. Durations use Go syntax ("15m").
type EngineConfig struct {
	Reschedule RescheduleTuning `yaml:"reschedule"`
	Workday    WorkdayTuning    `yaml:"workday"`
	History    HistoryTuning    `yaml:"history"`
}

// RescheduleTuning holds the decision thresholds in minutes.
type RescheduleTuning struct {
	AheadThreshold  int           `yaml:"ahead_threshold"`
	RescueThreshold int           `yaml:"rescue_threshold"`
	BehindThreshold int           `yaml:"behind_threshold"`
	StartOffset     time.Duration `yaml:"start_offset"`
	BufferBetween   time.Duration `yaml:"buffer_between"`
	AdvisoryTimeout time.Duration `yaml:"advisory_timeout"`
}

// WorkdayTuning is the placement window for new plans, as "HH:MM".
type WorkdayTuning struct {
	Start        string        `yaml:"start"`
	End          string        `yaml:"end"`
	BreakBetween time.Duration `yaml:"break_between"`
}

// HistoryTuning sizes the history windows the models read.
type HistoryTuning struct {
	BufferSamples int `yaml:"buffer_samples"`
	WindowSamples int `yaml:"window_samples"`
	MomentumDays  int `yaml:"momentum_days"`
}

// DefaultEngineConfig returns the built-in tuning.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Reschedule: RescheduleTuning{
			AheadThreshold:  30,
			RescueThreshold: 30,
			BehindThreshold: 15,
			StartOffset:     15 * time.Minute,
			BufferBetween:   15 * time.Minute,
			AdvisoryTimeout: MaxAdvisoryTimeout,
		},
		Workday: WorkdayTuning{
			Start:        "09:00",
			End:          "17:00",
			BreakBetween: 5 * time.Minute,
		},
		History: HistoryTuning{
			BufferSamples: 30,
			WindowSamples: 50,
			MomentumDays:  7,
		},
	}
}

// LoadEngineConfig overlays the file at path onto the defaults. An empty
// path returns the defaults.
func LoadEngineConfig(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read engine config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse engine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid engine config: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and ordering.
func (c EngineConfig) Validate() error {
	var errs []error

	r := c.Reschedule
	if r.AheadThreshold < 0 || r.RescueThreshold < 0 || r.BehindThreshold < 0 {
		errs = append(errs, errors.New("reschedule thresholds must not be negative"))
	}
	if r.RescueThreshold < r.BehindThreshold {
		errs = append(errs, errors.New("rescue_threshold must be at least behind_threshold"))
	}
	if r.StartOffset < 0 || r.BufferBetween < 0 {
		errs = append(errs, errors.New("start_offset and buffer_between must not be negative"))
	}
	if r.AdvisoryTimeout <= 0 || r.AdvisoryTimeout > MaxAdvisoryTimeout {
		errs = append(errs, fmt.Errorf("advisory_timeout must be in (0, %s]", MaxAdvisoryTimeout))
	}

	start, err := ParseClock(c.Workday.Start)
	if err != nil {
		errs = append(errs, fmt.Errorf("workday.start: %w", err))
	}
	end, err := ParseClock(c.Workday.End)
	if err != nil {
		errs = append(errs, fmt.Errorf("workday.end: %w", err))
	}
	if start >= end {
		errs = append(errs, errors.New("workday.start must be before workday.end"))
	}
	if c.Workday.BreakBetween < 0 {
		errs = append(errs, errors.New("workday.break_between must not be negative"))
	}

	h := c.History
	if h.BufferSamples <= 0 || h.WindowSamples <= 0 || h.MomentumDays <= 0 {
		errs = append(errs, errors.New("history sizes must be positive"))
	}

	return errors.Join(errs...)
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

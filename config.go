package energyflow

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Feature levels gate the pattern detector.
const (
	FeatureBasic        = 1
	FeatureInterference = 2
	FeatureResonance    = 3
)

// Post-drain policies decide what happens to tokens arriving after StateDrained.
const (
	PostDrainReject     = "reject"
	PostDrainNewSession = "new_session"
)

// Config is the immutable configuration of one scheduler instance.
type Config struct {
	Tick    TickConfig    `json:"tick" yaml:"tick"`
	Queue   QueueConfig   `json:"queue" yaml:"queue"`
	Energy  EnergyConfig  `json:"energy" yaml:"energy"`
	Session SessionConfig `json:"session" yaml:"session"`
	Pattern PatternConfig `json:"pattern" yaml:"pattern"`
	Degrade DegradeConfig `json:"degrade" yaml:"degrade"`
}

type TickConfig struct {
	RateHz float64 `json:"rate_hz" yaml:"rate_hz"`
	// AnalysisBudgetFraction is the share of the budget after which pattern
	// detection no longer starts.
	AnalysisBudgetFraction float64 `json:"analysis_budget_fraction" yaml:"analysis_budget_fraction"`
}

// Budget is the duration of one tick.
func (t TickConfig) Budget() time.Duration {
	return time.Duration(float64(time.Second) / t.RateHz)
}

type QueueConfig struct {
	Capacity        int           `json:"capacity" yaml:"capacity"`
	CoalesceWindow  time.Duration `json:"coalesce_window" yaml:"coalesce_window"`
	MaxDrainPerTick int           `json:"max_drain_per_tick" yaml:"max_drain_per_tick"`
}

type EnergyConfig struct {
	SmoothingAlpha float64 `json:"smoothing_alpha" yaml:"smoothing_alpha"`
	// ModelFactors overlays the built-in model factor table.
	ModelFactors        map[string]float64 `json:"model_factors,omitempty" yaml:"model_factors,omitempty"`
	RejectUnknownModels bool               `json:"reject_unknown_models" yaml:"reject_unknown_models"`
}

type SessionConfig struct {
	StallThreshold  time.Duration `json:"stall_threshold" yaml:"stall_threshold"`
	DrainTimeout    time.Duration `json:"drain_timeout" yaml:"drain_timeout"`
	PostDrainPolicy string        `json:"post_drain_policy" yaml:"post_drain_policy"`
}

type PatternConfig struct {
	FeatureLevel       int     `json:"feature_level" yaml:"feature_level"`
	HistoryCapacity    int     `json:"history_capacity" yaml:"history_capacity"`
	CorrelationWindow  int     `json:"correlation_window" yaml:"correlation_window"`
	MinCorrelation     float64 `json:"min_correlation" yaml:"min_correlation"`
	ResonanceWindow    int     `json:"resonance_window" yaml:"resonance_window"`
	ResonanceThreshold float64 `json:"resonance_threshold" yaml:"resonance_threshold"`
	MaxIntensity       float64 `json:"max_intensity" yaml:"max_intensity"`
}

type DegradeConfig struct {
	Window          int     `json:"window" yaml:"window"`
	LowThreshold    float64 `json:"low_threshold" yaml:"low_threshold"`
	MediumThreshold float64 `json:"medium_threshold" yaml:"medium_threshold"`
	AllThreshold    float64 `json:"all_threshold" yaml:"all_threshold"`
	RecoverBelow    float64 `json:"recover_below" yaml:"recover_below"`
	DegradeAbove    float64 `json:"degrade_above" yaml:"degrade_above"`
	RecoverStep     float64 `json:"recover_step" yaml:"recover_step"`
	DegradeStep     float64 `json:"degrade_step" yaml:"degrade_step"`
	MinQuality      float64 `json:"min_quality" yaml:"min_quality"`
	MaxQuality      float64 `json:"max_quality" yaml:"max_quality"`
}

// DefaultConfig returns a 60 Hz configuration.
func DefaultConfig() Config {
	return Config{
		Tick: TickConfig{
			RateHz:                 60,
			AnalysisBudgetFraction: 0.7,
		},
		Queue: QueueConfig{
			Capacity:        1000,
			CoalesceWindow:  100 * time.Millisecond,
			MaxDrainPerTick: 1000,
		},
		Energy: EnergyConfig{
			SmoothingAlpha: 0.2,
		},
		Session: SessionConfig{
			StallThreshold:  500 * time.Millisecond,
			DrainTimeout:    2000 * time.Millisecond,
			PostDrainPolicy: PostDrainReject,
		},
		Pattern: PatternConfig{
			FeatureLevel:       FeatureResonance,
			HistoryCapacity:    100,
			CorrelationWindow:  5,
			MinCorrelation:     0.7,
			ResonanceWindow:    10,
			ResonanceThreshold: 5.0,
			MaxIntensity:       10.0,
		},
		Degrade: DegradeConfig{
			Window:          60,
			LowThreshold:    1.1,
			MediumThreshold: 1.2,
			AllThreshold:    1.5,
			RecoverBelow:    0.8,
			DegradeAbove:    1.0,
			RecoverStep:     0.01,
			DegradeStep:     0.02,
			MinQuality:      0.3,
			MaxQuality:      1.0,
		},
	}
}

// Validate checks every section and reports the first problem found.
func (c *Config) Validate() error {
	if c.Tick.RateHz <= 0 {
		return fmt.Errorf("tick: rate_hz must be positive, got %v", c.Tick.RateHz)
	}
	if c.Tick.AnalysisBudgetFraction <= 0 || c.Tick.AnalysisBudgetFraction > 1 {
		return fmt.Errorf("tick: analysis_budget_fraction must be in (0, 1], got %v", c.Tick.AnalysisBudgetFraction)
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue: capacity must be positive, got %d", c.Queue.Capacity)
	}
	if c.Queue.CoalesceWindow < 0 {
		return fmt.Errorf("queue: coalesce_window must not be negative, got %v", c.Queue.CoalesceWindow)
	}
	if c.Queue.MaxDrainPerTick < 0 {
		return fmt.Errorf("queue: max_drain_per_tick must not be negative, got %d", c.Queue.MaxDrainPerTick)
	}
	if c.Energy.SmoothingAlpha <= 0 || c.Energy.SmoothingAlpha > 1 {
		return fmt.Errorf("energy: smoothing_alpha must be in (0, 1], got %v", c.Energy.SmoothingAlpha)
	}
	for model, f := range c.Energy.ModelFactors {
		if f <= 0 {
			return fmt.Errorf("energy: model factor for %q must be positive, got %v", model, f)
		}
	}
	if err := c.Session.validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Pattern.validate(); err != nil {
		return fmt.Errorf("pattern: %w", err)
	}
	if err := c.Degrade.validate(); err != nil {
		return fmt.Errorf("degrade: %w", err)
	}
	return nil
}

func (s SessionConfig) validate() error {
	if s.StallThreshold <= 0 {
		return errors.New("stall_threshold must be positive")
	}
	if s.DrainTimeout <= s.StallThreshold {
		return fmt.Errorf("drain_timeout (%v) must exceed stall_threshold (%v)", s.DrainTimeout, s.StallThreshold)
	}
	switch s.PostDrainPolicy {
	case PostDrainReject, PostDrainNewSession:
		return nil
	default:
		return fmt.Errorf("unknown post_drain_policy %q", s.PostDrainPolicy)
	}
}

func (p PatternConfig) validate() error {
	if p.FeatureLevel < FeatureBasic || p.FeatureLevel > FeatureResonance {
		return fmt.Errorf("feature_level must be in [%d, %d], got %d", FeatureBasic, FeatureResonance, p.FeatureLevel)
	}
	if p.CorrelationWindow < 2 {
		return fmt.Errorf("correlation_window must be at least 2, got %d", p.CorrelationWindow)
	}
	if p.HistoryCapacity < p.CorrelationWindow || p.HistoryCapacity < p.ResonanceWindow {
		return fmt.Errorf("history_capacity %d is smaller than the analysis windows", p.HistoryCapacity)
	}
	if p.ResonanceWindow <= 0 {
		return fmt.Errorf("resonance_window must be positive, got %d", p.ResonanceWindow)
	}
	if p.MinCorrelation <= 0 || p.MinCorrelation >= 1 {
		return fmt.Errorf("min_correlation must be in (0, 1), got %v", p.MinCorrelation)
	}
	if p.MaxIntensity <= 0 {
		return fmt.Errorf("max_intensity must be positive, got %v", p.MaxIntensity)
	}
	return nil
}

func (d DegradeConfig) validate() error {
	if d.Window <= 0 {
		return fmt.Errorf("window must be positive, got %d", d.Window)
	}
	if !(d.LowThreshold <= d.MediumThreshold && d.MediumThreshold <= d.AllThreshold) {
		return fmt.Errorf("thresholds must be ordered low <= medium <= all, got %v/%v/%v", d.LowThreshold, d.MediumThreshold, d.AllThreshold)
	}
	if d.RecoverBelow > d.DegradeAbove {
		return fmt.Errorf("recover_below (%v) must not exceed degrade_above (%v)", d.RecoverBelow, d.DegradeAbove)
	}
	if d.RecoverStep < 0 || d.DegradeStep < 0 {
		return errors.New("quality steps must not be negative")
	}
	if d.MinQuality <= 0 || d.MinQuality > d.MaxQuality || d.MaxQuality > 1 {
		return fmt.Errorf("quality bounds must satisfy 0 < min <= max <= 1, got %v/%v", d.MinQuality, d.MaxQuality)
	}
	return nil
}

// LoadConfig reads a YAML file on top of DefaultConfig and validates the result.
// Durations use Go syntax ("500ms", "2s").
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("yaml unmarshal %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

package pattern

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/comalice/energyflow"
)

// Detector runs read-only analyses over a History.
type Detector struct {
	cfg      energyflow.PatternConfig
	tickRate float64
}

// NewDetector creates a detector. tickRate is reported as resonance frequency.
func NewDetector(cfg energyflow.PatternConfig, tickRate float64) *Detector {
	return &Detector{cfg: cfg, tickRate: tickRate}
}

// InterferenceEnabled reports whether the feature level allows interference
// detection for the given number of active streams.
func (d *Detector) InterferenceEnabled(activeStreams int) bool {
	return d.cfg.FeatureLevel >= energyflow.FeatureInterference && activeStreams >= 2
}

// ResonanceEnabled reports whether the feature level allows resonance detection.
func (d *Detector) ResonanceEnabled() bool {
	return d.cfg.FeatureLevel >= energyflow.FeatureResonance
}

// Interference returns the first pair of active streams, in sorted order,
// whose recent energy correlates beyond the configured threshold.
func (d *Detector) Interference(h *History, active []string) *energyflow.Interference {
	if !d.InterferenceEnabled(len(active)) {
		return nil
	}
	window := d.cfg.CorrelationWindow
	series := make([][]float64, len(active))
	for i, id := range active {
		if r := h.Ring(id); r != nil && r.Len() >= window {
			series[i] = r.Last(window)
		}
	}
	for i := 0; i < len(active); i++ {
		if series[i] == nil {
			continue
		}
		for j := i + 1; j < len(active); j++ {
			if series[j] == nil {
				continue
			}
			r := stat.Correlation(series[i], series[j], nil)
			if math.IsNaN(r) || math.Abs(r) <= d.cfg.MinCorrelation {
				continue
			}
			kind := energyflow.Constructive
			if r < 0 {
				kind = energyflow.Destructive
			}
			return &energyflow.Interference{
				StreamA:     active[i],
				StreamB:     active[j],
				Kind:        kind,
				Strength:    math.Abs(r),
				Correlation: r,
			}
		}
	}
	return nil
}

// Resonance sums the most recent samples of every active stream and reports
// a resonance when the total exceeds the threshold.
func (d *Detector) Resonance(h *History, active []string) *energyflow.Resonance {
	if !d.ResonanceEnabled() || len(active) == 0 {
		return nil
	}
	total := 0.0
	for _, id := range active {
		r := h.Ring(id)
		if r == nil {
			continue
		}
		total += floats.Sum(r.Last(d.cfg.ResonanceWindow))
	}
	if total <= d.cfg.ResonanceThreshold {
		return nil
	}
	return &energyflow.Resonance{
		Intensity:   math.Min(total, d.cfg.MaxIntensity),
		Frequency:   d.tickRate,
		StreamCount: len(active),
	}
}

package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/energyflow"
)

func historyOf(series map[string][]float64) *History {
	h := NewHistory(100)
	for id, values := range series {
		for _, v := range values {
			h.Record(id, v)
		}
	}
	return h
}

func detector(level int) *Detector {
	cfg := energyflow.DefaultConfig().Pattern
	cfg.FeatureLevel = level
	return NewDetector(cfg, 60)
}

func TestInterference(t *testing.T) {
	tests := []struct {
		name     string
		series   map[string][]float64
		level    int
		wantKind energyflow.InterferenceKind
		wantPair [2]string
	}{
		{
			name:     "constructive",
			series:   map[string][]float64{"a": {1, 2, 3, 4, 5}, "b": {2, 4, 6, 8, 10}},
			level:    energyflow.FeatureInterference,
			wantKind: energyflow.Constructive,
			wantPair: [2]string{"a", "b"},
		},
		{
			name:     "destructive",
			series:   map[string][]float64{"a": {1, 2, 3, 4, 5}, "b": {5, 4, 3, 2, 1}},
			level:    energyflow.FeatureResonance,
			wantKind: energyflow.Destructive,
			wantPair: [2]string{"a", "b"},
		},
		{
			name: "only last five samples count",
			series: map[string][]float64{
				"a": {9, 0, 9, 0, 1, 2, 3, 4, 5},
				"b": {0, 9, 0, 9, 1, 2, 3, 4, 5},
			},
			level:    energyflow.FeatureInterference,
			wantKind: energyflow.Constructive,
			wantPair: [2]string{"a", "b"},
		},
		{
			name:     "first qualifying pair in sorted order",
			series:   map[string][]float64{"c": {1, 2, 3, 4, 5}, "a": {1, 3, 2, 3, 1}, "b": {1, 2, 3, 4, 6}},
			level:    energyflow.FeatureInterference,
			wantKind: energyflow.Constructive,
			wantPair: [2]string{"b", "c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := historyOf(tt.series)
			got := detector(tt.level).Interference(h, h.Streams())
			require.NotNil(t, got)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantPair, [2]string{got.StreamA, got.StreamB})
			assert.Greater(t, got.Strength, 0.7)
			assert.InDelta(t, got.Strength, abs(got.Correlation), 1e-12)
		})
	}
}

func TestInterferenceNotReported(t *testing.T) {
	tests := []struct {
		name   string
		series map[string][]float64
		level  int
	}{
		{name: "feature level too low", series: map[string][]float64{"a": {1, 2, 3, 4, 5}, "b": {1, 2, 3, 4, 5}}, level: energyflow.FeatureBasic},
		{name: "single stream", series: map[string][]float64{"a": {1, 2, 3, 4, 5}}, level: energyflow.FeatureResonance},
		{name: "not enough samples", series: map[string][]float64{"a": {1, 2, 3, 4}, "b": {1, 2, 3, 4}}, level: energyflow.FeatureResonance},
		{name: "flat series", series: map[string][]float64{"a": {1, 1, 1, 1, 1}, "b": {1, 2, 3, 4, 5}}, level: energyflow.FeatureResonance},
		{name: "weak correlation", series: map[string][]float64{"a": {1, 2, 3, 4, 5}, "b": {2, 1, 2, 1, 2}}, level: energyflow.FeatureResonance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := historyOf(tt.series)
			assert.Nil(t, detector(tt.level).Interference(h, h.Streams()))
		})
	}
}

func TestResonance(t *testing.T) {
	h := historyOf(map[string][]float64{
		"a": {100, 100, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5},
		"b": {0.2, 0.2, 0.2},
	})
	got := detector(energyflow.FeatureResonance).Resonance(h, h.Streams())
	require.NotNil(t, got)
	assert.InDelta(t, 5.6, got.Intensity, 1e-9)
	assert.Equal(t, 60.0, got.Frequency)
	assert.Equal(t, 2, got.StreamCount)

	assert.Nil(t, detector(energyflow.FeatureInterference).Resonance(h, h.Streams()), "needs top feature level")
}

func TestResonanceCappedAndThreshold(t *testing.T) {
	loud := historyOf(map[string][]float64{"a": {50, 50}})
	got := detector(energyflow.FeatureResonance).Resonance(loud, loud.Streams())
	require.NotNil(t, got)
	assert.Equal(t, 10.0, got.Intensity)

	quiet := historyOf(map[string][]float64{"a": {1, 1}, "b": {1, 2}})
	assert.Nil(t, detector(energyflow.FeatureResonance).Resonance(quiet, quiet.Streams()))
}

func TestDetectorDoesNotMutateHistory(t *testing.T) {
	h := historyOf(map[string][]float64{"a": {1, 2, 3, 4, 5}, "b": {2, 4, 6, 8, 10}})
	before := h.Ring("a").Last(100)
	d := detector(energyflow.FeatureResonance)
	d.Interference(h, h.Streams())
	d.Resonance(h, h.Streams())
	assert.Equal(t, before, h.Ring("a").Last(100))
	assert.Equal(t, 5, h.Ring("b").Len())
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

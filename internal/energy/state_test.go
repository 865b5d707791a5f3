package energy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEMAFirstUpdateIsVerbatim(t *testing.T) {
	e := NewEMA(0.2)
	assert.False(t, e.Initialized())
	assert.Equal(t, 5.0, e.Update(5.0))
	assert.True(t, e.Initialized())
	assert.InDelta(t, 0.2*10+0.8*5, e.Update(10), 1e-12)

	e.Reset()
	assert.Equal(t, 3.0, e.Update(3.0))
}

func TestStateUpdate(t *testing.T) {
	s := NewState(0.1)
	s.Update(2, 0)
	snap := s.Snapshot()
	assert.Equal(t, Snapshot{Current: 2, Smoothed: 2, Accumulated: 2, Peak: 2, Rate: 0}, snap)

	s.Update(1, 500*time.Millisecond)
	snap = s.Snapshot()
	assert.Equal(t, 1.0, snap.Current)
	assert.Equal(t, 3.0, snap.Accumulated)
	assert.Equal(t, 2.0, snap.Peak)
	assert.InDelta(t, 2.0, snap.Rate, 1e-12)
	assert.InDelta(t, 0.1*1+0.9*2, snap.Smoothed, 1e-12)

	// A zero-length tick keeps the previous rate.
	s.Update(4, 0)
	assert.InDelta(t, 2.0, s.Snapshot().Rate, 1e-12)
}

func TestAccumulatorMonotonic(t *testing.T) {
	s := NewState(0.3)
	prev := 0.0
	for i, e := range []float64{0, 0.5, 0, 3.2, 0.001, 0, 7, 0.25} {
		s.Update(e, 16*time.Millisecond)
		acc := s.Snapshot().Accumulated
		assert.GreaterOrEqual(t, acc, prev, "tick %d", i)
		prev = acc
	}
	assert.InDelta(t, 10.951, prev, 1e-9)
}

func TestStateReset(t *testing.T) {
	s := NewState(0.2)
	s.Update(3, time.Second)
	s.Reset()
	assert.Equal(t, Snapshot{}, s.Snapshot())
	s.Update(1, 0)
	assert.Equal(t, 1.0, s.Snapshot().Smoothed)
}

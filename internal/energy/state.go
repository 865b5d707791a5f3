package energy

import "time"

// EMA is an exponential moving average that takes its first sample verbatim.
type EMA struct {
	alpha       float64
	value       float64
	initialized bool
}

// NewEMA creates an uninitialized filter.
func NewEMA(alpha float64) *EMA {
	return &EMA{alpha: alpha}
}

// Update blends v into the average and returns the new value.
func (e *EMA) Update(v float64) float64 {
	if !e.initialized {
		e.value = v
		e.initialized = true
		return e.value
	}
	e.value = e.alpha*v + (1-e.alpha)*e.value
	return e.value
}

// Value returns the current average.
func (e *EMA) Value() float64 { return e.value }

// Initialized reports whether Update has been called since the last Reset.
func (e *EMA) Initialized() bool { return e.initialized }

// Reset forgets all samples.
func (e *EMA) Reset() {
	e.value = 0
	e.initialized = false
}

// Snapshot holds raw, unrounded energy values.
type Snapshot struct {
	Current     float64
	Smoothed    float64
	Accumulated float64
	Peak        float64
	Rate        float64
}

// State is the running energy accumulator of a session. It is owned by the
// tick loop and mutated once per tick.
type State struct {
	current     float64
	accumulated float64
	peak        float64
	rate        float64
	smoothed    *EMA
}

// NewState creates a state with the given smoothing constant.
func NewState(alpha float64) *State {
	return &State{smoothed: NewEMA(alpha)}
}

// Update records the energy e produced during a tick that lasted dt.
func (s *State) Update(e float64, dt time.Duration) {
	s.current = e
	if e > 0 {
		s.accumulated += e
	}
	s.smoothed.Update(e)
	if e > s.peak {
		s.peak = e
	}
	if dt > 0 {
		s.rate = e / dt.Seconds()
	}
}

// Reset clears every value, including the smoothing filter.
func (s *State) Reset() {
	s.current, s.accumulated, s.peak, s.rate = 0, 0, 0, 0
	s.smoothed.Reset()
}

// Snapshot returns the raw values.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Current:     s.current,
		Smoothed:    s.smoothed.Value(),
		Accumulated: s.accumulated,
		Peak:        s.peak,
		Rate:        s.rate,
	}
}

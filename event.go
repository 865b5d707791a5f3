package energyflow

import (
	"fmt"
	"time"
)

// Event is delivered to sinks: either *TickEvent or *ErrorEvent.
type Event interface {
	EventSeq() uint64
}

// EnergySnapshot holds the energy state as emitted, rounded to three decimals.
type EnergySnapshot struct {
	Current     float64 `json:"current" yaml:"current"`
	Smoothed    float64 `json:"smoothed" yaml:"smoothed"`
	Accumulated float64 `json:"accumulated" yaml:"accumulated"`
	Peak        float64 `json:"peak" yaml:"peak"`
	Rate        float64 `json:"rate" yaml:"rate"`
}

// InterferenceKind is the sign of a cross-stream correlation.
type InterferenceKind string

const (
	Constructive InterferenceKind = "constructive"
	Destructive  InterferenceKind = "destructive"
)

// Interference reports two streams whose recent energy is strongly correlated.
type Interference struct {
	StreamA     string           `json:"stream_a" yaml:"stream_a"`
	StreamB     string           `json:"stream_b" yaml:"stream_b"`
	Kind        InterferenceKind `json:"kind" yaml:"kind"`
	Strength    float64          `json:"strength" yaml:"strength"`
	Correlation float64          `json:"correlation" yaml:"correlation"`
}

// Resonance reports sustained energy across all active streams.
type Resonance struct {
	Intensity   float64 `json:"intensity" yaml:"intensity"`
	Frequency   float64 `json:"frequency" yaml:"frequency"`
	StreamCount int     `json:"stream_count" yaml:"stream_count"`
}

// QueueStatus exposes ingestion queue depth and its cumulative counters.
type QueueStatus struct {
	Depth    int    `json:"depth" yaml:"depth"`
	Merged   uint64 `json:"merged" yaml:"merged"`
	Dropped  uint64 `json:"dropped" yaml:"dropped"`
	Rejected uint64 `json:"rejected" yaml:"rejected"`
}

// Performance is the timing metadata of a tick.
type Performance struct {
	TickDuration time.Duration `json:"tick_duration" yaml:"tick_duration"`
	Budget       time.Duration `json:"budget" yaml:"budget"`
	Overruns     uint64        `json:"overruns" yaml:"overruns"`
	Degraded     bool          `json:"degraded" yaml:"degraded"`
	Quality      float64       `json:"quality" yaml:"quality"`
	SkippedTasks []string      `json:"skipped_tasks,omitempty" yaml:"skipped_tasks,omitempty"`
	Failed       bool          `json:"failed" yaml:"failed"`
}

// TickEvent is emitted once per tick.
type TickEvent struct {
	Seq              uint64             `json:"seq" yaml:"seq"`
	Timestamp        time.Time          `json:"timestamp" yaml:"timestamp"`
	SessionID        string             `json:"session_id" yaml:"session_id"`
	Energy           EnergySnapshot     `json:"energy" yaml:"energy"`
	TokensProcessed  int                `json:"tokens_processed" yaml:"tokens_processed"`
	BatchesProcessed int                `json:"batches_processed" yaml:"batches_processed"`
	Queue            QueueStatus        `json:"queue" yaml:"queue"`
	SessionState     SessionState       `json:"session_state" yaml:"session_state"`
	StreamEnergy     map[string]float64 `json:"stream_energy,omitempty" yaml:"stream_energy,omitempty"`
	Interference     *Interference      `json:"interference,omitempty" yaml:"interference,omitempty"`
	Resonance        *Resonance         `json:"resonance,omitempty" yaml:"resonance,omitempty"`
	Performance      Performance        `json:"performance" yaml:"performance"`
}

func (e *TickEvent) EventSeq() uint64 { return e.Seq }

// ErrorEvent is emitted for recoverable failures inside a tick.
type ErrorEvent struct {
	Seq       uint64    `json:"seq" yaml:"seq"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	SessionID string    `json:"session_id" yaml:"session_id"`
	Code      ErrorCode `json:"code" yaml:"code"`
	Message   string    `json:"message" yaml:"message"`
	Severity  Severity  `json:"severity" yaml:"severity"`
	Task      string    `json:"task,omitempty" yaml:"task,omitempty"`
}

func (e *ErrorEvent) EventSeq() uint64 { return e.Seq }

func (e *ErrorEvent) Error() string {
	return fmt.Sprintf("tick %d: %s: %s", e.Seq, e.Code, e.Message)
}

// Sink receives events on the tick loop goroutine. Implementations must not
// block; slow consumers hand events off to their own goroutine.
type Sink interface {
	Emit(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Emit(e Event) error { return f(e) }

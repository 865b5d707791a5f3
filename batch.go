package energyflow

import (
	"fmt"
	"math"
	"time"
)

const (
	// MinComplexity and MaxComplexity bound the complexity score of a batch.
	MinComplexity = 0.1
	MaxComplexity = 10.0
)

// TokenBatch is one unit of generation output waiting to be converted into energy.
type TokenBatch struct {
	Arrival    time.Time
	StreamID   string
	ModelID    string
	TokenCount int
	Complexity float64
	Speed      float64 // tokens per second
	Metadata   *Metadata
}

// NewTokenBatch builds a batch stamped with arrival and clamps its complexity.
func NewTokenBatch(arrival time.Time, streamID, modelID string, tokenCount int, complexity, speed float64, metadata map[string]string) TokenBatch {
	return TokenBatch{
		Arrival:    arrival,
		StreamID:   streamID,
		ModelID:    modelID,
		TokenCount: tokenCount,
		Complexity: ClampComplexity(complexity),
		Speed:      speed,
		Metadata:   NewMetadata(metadata),
	}
}

// ClampComplexity bounds c to [MinComplexity, MaxComplexity]. NaN is left untouched
// so that Validate can reject it.
func ClampComplexity(c float64) float64 {
	if math.IsNaN(c) {
		return c
	}
	return math.Min(MaxComplexity, math.Max(MinComplexity, c))
}

// Validate reports why a batch may not be enqueued.
func (b TokenBatch) Validate() error {
	if b.StreamID == "" {
		return ErrMissingStream
	}
	if b.ModelID == "" {
		return ErrMissingModel
	}
	if b.TokenCount <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTokenCount, b.TokenCount)
	}
	if math.IsNaN(b.Speed) || math.IsInf(b.Speed, 0) || b.Speed < 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidSpeed, b.Speed)
	}
	if math.IsNaN(b.Complexity) || math.IsInf(b.Complexity, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidComplexity, b.Complexity)
	}
	return nil
}

// CanMerge reports whether next may be coalesced into b.
func (b TokenBatch) CanMerge(next TokenBatch, window time.Duration) bool {
	if b.StreamID != next.StreamID {
		return false
	}
	gap := next.Arrival.Sub(b.Arrival)
	if gap < 0 {
		gap = -gap
	}
	return gap <= window
}

// Merge coalesces next into b. Token counts add up, complexity becomes the
// token-weighted average, speed the maximum of the two and metadata the union
// of both with next winning on shared keys.
func (b TokenBatch) Merge(next TokenBatch) TokenBatch {
	total := b.TokenCount + next.TokenCount
	complexity := (b.Complexity*float64(b.TokenCount) + next.Complexity*float64(next.TokenCount)) / float64(total)

	merged := b
	merged.TokenCount = total
	merged.Complexity = ClampComplexity(complexity)
	merged.Speed = math.Max(b.Speed, next.Speed)
	if next.Arrival.After(b.Arrival) {
		merged.Arrival = next.Arrival
	}
	merged.Metadata = b.Metadata.Union(next.Metadata)
	return merged
}

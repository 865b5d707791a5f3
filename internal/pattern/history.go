// Package pattern tracks per-stream activity and looks for cross-stream
// patterns in recent energy history.
package pattern

import "sort"

// Ring is a fixed-size buffer of float64 samples. When full, the oldest
// sample is overwritten.
type Ring struct {
	values []float64
	next   int
	full   bool
}

// NewRing creates a ring holding up to size samples.
func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{values: make([]float64, size)}
}

// Push appends v, evicting the oldest sample if the ring is full.
func (r *Ring) Push(v float64) {
	r.values[r.next] = v
	r.next = (r.next + 1) % len(r.values)
	if r.next == 0 {
		r.full = true
	}
}

// Len returns the number of stored samples.
func (r *Ring) Len() int {
	if r.full {
		return len(r.values)
	}
	return r.next
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.values)
}

// Last copies up to n of the most recent samples, oldest first.
func (r *Ring) Last(n int) []float64 {
	if n > r.Len() {
		n = r.Len()
	}
	out := make([]float64, n)
	start := r.next - n
	if start < 0 {
		start += len(r.values)
	}
	for i := 0; i < n; i++ {
		out[i] = r.values[(start+i)%len(r.values)]
	}
	return out
}

// History maps stream ids to their recent per-tick energy.
type History struct {
	capacity int
	streams  map[string]*Ring
}

// NewHistory creates an empty history whose rings hold capacity samples.
func NewHistory(capacity int) *History {
	return &History{capacity: capacity, streams: make(map[string]*Ring)}
}

// Record pushes one tick's energy for stream.
func (h *History) Record(stream string, energy float64) {
	r, ok := h.streams[stream]
	if !ok {
		r = NewRing(h.capacity)
		h.streams[stream] = r
	}
	r.Push(energy)
}

// Ring returns the ring of stream, or nil.
func (h *History) Ring(stream string) *Ring {
	return h.streams[stream]
}

// Streams returns the recorded stream ids in sorted order.
func (h *History) Streams() []string {
	ids := make([]string, 0, len(h.streams))
	for id := range h.streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reset drops every ring.
func (h *History) Reset() {
	h.streams = make(map[string]*Ring)
}

package pattern

import (
	"sort"
	"time"
)

// StreamInfo is the cumulative record of one stream.
type StreamInfo struct {
	StreamID     string
	ModelID      string
	CreatedAt    time.Time
	Tokens       int64
	Energy       float64
	LastActivity time.Time
}

// Registry records every stream seen by the tick loop. Entries are never
// removed except by Reset.
type Registry struct {
	streams map[string]*StreamInfo
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]*StreamInfo)}
}

// Observe adds a batch's contribution to stream, creating the entry on first sight.
func (r *Registry) Observe(stream, model string, tokens int, energy float64, at time.Time) *StreamInfo {
	info, ok := r.streams[stream]
	if !ok {
		info = &StreamInfo{StreamID: stream, ModelID: model, CreatedAt: at}
		r.streams[stream] = info
	}
	info.Tokens += int64(tokens)
	info.Energy += energy
	if at.After(info.LastActivity) {
		info.LastActivity = at
	}
	return info
}

// Get returns a copy of the entry for stream.
func (r *Registry) Get(stream string) (StreamInfo, bool) {
	info, ok := r.streams[stream]
	if !ok {
		return StreamInfo{}, false
	}
	return *info, true
}

// Active returns, sorted, the streams whose last activity is within window of now.
func (r *Registry) Active(now time.Time, window time.Duration) []string {
	ids := make([]string, 0, len(r.streams))
	for id, info := range r.streams {
		if now.Sub(info.LastActivity) <= window {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of known streams.
func (r *Registry) Len() int {
	return len(r.streams)
}

// Reset forgets every stream.
func (r *Registry) Reset() {
	r.streams = make(map[string]*StreamInfo)
}

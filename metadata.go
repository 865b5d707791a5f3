package energyflow

import "sync"

// Metadata is free-form key/value data attached to a token batch.
// It is safe for concurrent use and merges without aliasing.
type Metadata struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMetadata creates metadata from a plain map. The map is copied.
func NewMetadata(kv map[string]string) *Metadata {
	m := &Metadata{data: make(map[string]string, len(kv))}
	for k, v := range kv {
		m.data[k] = v
	}
	return m
}

// Get retrieves a value by key.
func (m *Metadata) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

// Set stores a value by key.
func (m *Metadata) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]string)
	}
	m.data[key] = value
}

// Len returns the number of keys.
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Map returns a copy of the underlying data.
func (m *Metadata) Map() map[string]string {
	out := make(map[string]string)
	if m == nil {
		return out
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

// Union returns new metadata holding every key of m and incoming.
// Keys present in both take the incoming value.
func (m *Metadata) Union(incoming *Metadata) *Metadata {
	out := NewMetadata(m.Map())
	for k, v := range incoming.Map() {
		out.data[k] = v
	}
	return out
}

package energyflow

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadata(t *testing.T) {
	src := map[string]string{"prompt": "p1"}
	m := NewMetadata(src)
	src["prompt"] = "changed"

	v, ok := m.Get("prompt")
	assert.True(t, ok)
	assert.Equal(t, "p1", v)

	m.Set("user", "u1")
	assert.Equal(t, 2, m.Len())

	_, ok = m.Get("missing")
	assert.False(t, ok)

	var nilMeta *Metadata
	_, ok = nilMeta.Get("x")
	assert.False(t, ok)
	assert.Zero(t, nilMeta.Len())
	assert.Empty(t, nilMeta.Map())
	assert.Equal(t, map[string]string{"prompt": "p1", "user": "u1"}, nilMeta.Union(m).Map())
}

func TestMetadataConcurrentAccess(t *testing.T) {
	m := NewMetadata(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Set("k", "v")
				m.Get("k")
				m.Map()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, m.Len())
}

package queue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/energyflow"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func batch(stream string, at time.Duration, count int, complexity float64) energyflow.TokenBatch {
	return energyflow.NewTokenBatch(t0.Add(at), stream, "llama2_7b", count, complexity, 40, nil)
}

func TestEnqueueDrainFIFO(t *testing.T) {
	q := New(10, 100*time.Millisecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(batch(fmt.Sprintf("s%d", i), time.Duration(i)*time.Millisecond, i+1, 1)))
	}
	assert.Equal(t, 5, q.Len())

	first := q.Drain(2)
	require.Len(t, first, 2)
	assert.Equal(t, "s0", first[0].StreamID)
	assert.Equal(t, "s1", first[1].StreamID)

	rest := q.Drain(0)
	require.Len(t, rest, 3)
	assert.Equal(t, "s4", rest[2].StreamID)
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.Drain(0))
}

func TestCapacityInvariant(t *testing.T) {
	q := New(4, 100*time.Millisecond)
	streams := []string{"a", "b", "a", "a", "c", "b", "b", "a", "c", "c", "a"}
	for i, s := range streams {
		q.Enqueue(batch(s, time.Duration(i*30)*time.Millisecond, 1+i%3, 1))
		require.LessOrEqual(t, q.Len(), q.Capacity(), "after enqueue %d", i)
	}
	st := q.Stats()
	assert.Equal(t, uint64(len(streams)), st.Enqueued)
	assert.Equal(t, uint64(len(streams)-4), st.Merged+st.Dropped)
}

func TestOverflowMergesSameStreamWithinWindow(t *testing.T) {
	q := New(2, 100*time.Millisecond)
	require.NoError(t, q.Enqueue(batch("x", 0, 1, 1)))
	a := batch("a", 10*time.Millisecond, 10, 1.0)
	a.Metadata.Set("k", "old")
	a.Metadata.Set("only_a", "1")
	require.NoError(t, q.Enqueue(a))

	b := batch("a", 60*time.Millisecond, 30, 3.0)
	b.Speed = 90
	b.Metadata.Set("k", "new")
	require.NoError(t, q.Enqueue(b))

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, Stats{Enqueued: 3, Merged: 1}, q.Stats())

	out := q.Drain(0)
	require.Len(t, out, 2)
	merged := out[1]
	assert.Equal(t, 40, merged.TokenCount)
	assert.InDelta(t, (1.0*10+3.0*30)/40, merged.Complexity, 1e-9)
	assert.Equal(t, 90.0, merged.Speed)
	assert.Equal(t, t0.Add(60*time.Millisecond), merged.Arrival)
	v, _ := merged.Metadata.Get("k")
	assert.Equal(t, "new", v)
	v, _ = merged.Metadata.Get("only_a")
	assert.Equal(t, "1", v)
}

func TestOverflowDropsOldestOutsideWindow(t *testing.T) {
	tests := []struct {
		name     string
		incoming energyflow.TokenBatch
	}{
		{name: "other stream", incoming: batch("b", 20*time.Millisecond, 5, 1)},
		{name: "same stream, too late", incoming: batch("a", 250*time.Millisecond, 5, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(2, 100*time.Millisecond)
			q.Enqueue(batch("first", 0, 1, 1))
			q.Enqueue(batch("a", 10*time.Millisecond, 1, 1))
			require.NoError(t, q.Enqueue(tt.incoming))

			assert.Equal(t, uint64(1), q.Stats().Dropped)
			out := q.Drain(0)
			require.Len(t, out, 2)
			assert.Equal(t, "a", out[0].StreamID)
			assert.Equal(t, tt.incoming.TokenCount, out[1].TokenCount)
		})
	}
}

func TestEnqueueRejectsEmptyBatch(t *testing.T) {
	q := New(2, time.Second)
	assert.ErrorIs(t, q.Enqueue(batch("a", 0, 0, 1)), energyflow.ErrInvalidTokenCount)
	assert.Equal(t, 0, q.Len())
}

func TestConcurrentEnqueueAndDrain(t *testing.T) {
	q := New(64, 100*time.Millisecond)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				q.Enqueue(batch(fmt.Sprintf("p%d", p), time.Duration(i)*time.Millisecond, 1, 1))
			}
		}(p)
	}

	done := make(chan struct{})
	drained := 0
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			drained += len(q.Drain(16))
			if q.Len() > q.Capacity() {
				t.Errorf("len %d exceeds capacity", q.Len())
			}
		}
	}()
	wg.Wait()
	<-done
	drained += len(q.Drain(0))

	st := q.Stats()
	assert.Equal(t, uint64(2000), st.Enqueued)
	assert.Equal(t, st.Enqueued-st.Merged-st.Dropped, uint64(drained))
}

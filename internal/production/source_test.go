package production

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/energyflow"
)

type recordingSubmitter struct {
	mu      sync.Mutex
	batches []energyflow.TokenBatch
}

func (r *recordingSubmitter) Submit(b energyflow.TokenBatch) error {
	if err := b.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
	return nil
}

func (r *recordingSubmitter) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func TestChannelSource_Forward(t *testing.T) {
	ch := make(chan energyflow.TokenBatch, 4)
	now := time.Now()
	ch <- energyflow.NewTokenBatch(now, "a", "llama2_7b", 5, 1, 10, nil)
	ch <- energyflow.NewTokenBatch(now, "a", "llama2_7b", 0, 1, 10, nil)
	ch <- energyflow.NewTokenBatch(now, "b", "mistral_7b", 7, 1, 10, nil)
	close(ch)

	src := NewChannelSource(ch)
	sub := &recordingSubmitter{}
	src.Forward(context.Background(), sub)

	assert.Equal(t, 2, sub.len())
	assert.Equal(t, uint64(2), src.Accepted())
	assert.Equal(t, uint64(1), src.Rejected())
}

func TestChannelSource_StopsOnContext(t *testing.T) {
	src := NewChannelSource(make(chan energyflow.TokenBatch))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		src.Forward(ctx, &recordingSubmitter{})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Forward did not return after cancel")
	}
}

func TestSyntheticSource(t *testing.T) {
	src := NewSyntheticSource("s", "llama2_7b", 2*time.Millisecond, 0, 0)

	select {
	case b := <-src.Batches():
		require.NoError(t, b.Validate())
		assert.Equal(t, "s", b.StreamID)
		assert.Equal(t, "llama2_7b", b.ModelID)
		assert.GreaterOrEqual(t, b.Complexity, energyflow.MinComplexity)
	case <-time.After(time.Second):
		t.Fatal("no batch generated")
	}

	src.Stop()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-src.Batches():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after Stop")
		}
	}
}

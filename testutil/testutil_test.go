package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/energyflow"
)

func TestManualClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(time.Second)
	assert.Equal(t, start.Add(time.Second), c.Now())

	c.Sleep(context.Background(), 16*time.Millisecond)
	assert.Equal(t, start.Add(time.Second+16*time.Millisecond), c.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Sleep(ctx, time.Hour)
	assert.Equal(t, start.Add(time.Second+16*time.Millisecond), c.Now(), "cancelled sleep must not advance")
}

func TestRecordingSink(t *testing.T) {
	var r RecordingSink
	assert.Nil(t, r.Last())

	require.NoError(t, r.Emit(&energyflow.ErrorEvent{Seq: 1}))
	require.NoError(t, r.Emit(&energyflow.TickEvent{Seq: 1}))
	require.NoError(t, r.Emit(&energyflow.TickEvent{Seq: 2}))

	assert.Len(t, r.Ticks(), 2)
	assert.Len(t, r.Errors(), 1)
	assert.Equal(t, uint64(2), r.Last().Seq)
	assert.Equal(t, []uint64{1, 1, 2}, r.Sequence())
	assert.NoError(t, r.WaitForTicks(2, 10*time.Millisecond))
	assert.Error(t, r.WaitForTicks(3, 5*time.Millisecond))
}

func TestFailingSink(t *testing.T) {
	assert.Error(t, FailingSink{}.Emit(&energyflow.TickEvent{}))
	assert.Panics(t, func() { _ = FailingSink{Panic: true}.Emit(&energyflow.TickEvent{}) })
}

package production

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/comalice/energyflow"
)

func openTestAudit(t *testing.T, opts ...AuditOption) *AuditSink {
	t.Helper()
	opts = append(opts, WithAuditLogger(zaptest.NewLogger(t)))
	a, err := OpenAuditSink(context.Background(), filepath.Join(t.TempDir(), "audit", "events.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAuditSink_RecordsEvents(t *testing.T) {
	ctx := context.Background()
	a := openTestAudit(t)
	now := time.Now()

	for i := 1; i <= 3; i++ {
		require.NoError(t, a.Emit(&energyflow.TickEvent{
			Seq:          uint64(i),
			Timestamp:    now,
			SessionID:    "s1",
			SessionState: energyflow.StateFlowing,
			Energy:       energyflow.EnergySnapshot{Accumulated: float64(i)},
			Performance:  energyflow.Performance{TickDuration: time.Millisecond},
		}))
	}
	require.NoError(t, a.Emit(&energyflow.TickEvent{Seq: 4, Timestamp: now, SessionID: "s2", Energy: energyflow.EnergySnapshot{Accumulated: 0.5}}))
	require.NoError(t, a.Emit(&energyflow.ErrorEvent{
		Seq:       2,
		Timestamp: now,
		SessionID: "s1",
		Code:      energyflow.CodeTaskFailed,
		Severity:  energyflow.SeverityError,
		Task:      "interference",
		Message:   "boom",
	}))
	require.NoError(t, a.Flush(ctx))

	ticks, err := a.TickCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, ticks)

	errs, err := a.ErrorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, errs)

	totals, err := a.SessionTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"s1": 3, "s2": 0.5}, totals)
	assert.Zero(t, a.WriteFailures())
	assert.Zero(t, a.Dropped())
}

func TestAuditSink_Close(t *testing.T) {
	a := openTestAudit(t)
	require.NoError(t, a.Emit(&energyflow.TickEvent{Seq: 1}))
	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "close is idempotent")

	assert.ErrorIs(t, a.Emit(&energyflow.TickEvent{Seq: 2}), ErrAuditClosed)
	assert.ErrorIs(t, a.Flush(context.Background()), ErrAuditClosed)
}

func TestAuditSink_ReopenKeepsRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")

	a, err := OpenAuditSink(ctx, path)
	require.NoError(t, err)
	require.NoError(t, a.Emit(&energyflow.TickEvent{Seq: 1, SessionID: "s"}))
	require.NoError(t, a.Close())

	b, err := OpenAuditSink(ctx, path)
	require.NoError(t, err)
	defer b.Close() //nolint:errcheck
	n, err := b.TickCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

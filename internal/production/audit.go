package production

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/comalice/energyflow"
)

// ErrAuditClosed is returned by Emit and Flush after Close.
var ErrAuditClosed = errors.New("audit sink closed")

const auditSchema = `
CREATE TABLE IF NOT EXISTS tick_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	seq INTEGER NOT NULL,
	ts TEXT NOT NULL,
	session_id TEXT NOT NULL,
	session_state TEXT NOT NULL,
	tokens INTEGER NOT NULL,
	batches INTEGER NOT NULL,
	energy_current REAL NOT NULL,
	energy_accumulated REAL NOT NULL,
	energy_smoothed REAL NOT NULL,
	energy_peak REAL NOT NULL,
	energy_rate REAL NOT NULL,
	queue_depth INTEGER NOT NULL,
	tick_duration_us INTEGER NOT NULL,
	overruns INTEGER NOT NULL,
	degraded INTEGER NOT NULL,
	quality REAL NOT NULL,
	failed INTEGER NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tick_events_session ON tick_events(session_id, seq);
CREATE TABLE IF NOT EXISTS error_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	seq INTEGER NOT NULL,
	ts TEXT NOT NULL,
	session_id TEXT NOT NULL,
	code TEXT NOT NULL,
	severity TEXT NOT NULL,
	task TEXT NOT NULL,
	message TEXT NOT NULL
);
`

// AuditOption configures an AuditSink.
type AuditOption func(*AuditSink)

// WithAuditLogger sets the logger for write failures.
func WithAuditLogger(l *zap.Logger) AuditOption {
	return func(a *AuditSink) {
		if l != nil {
			a.log = l
		}
	}
}

// WithAuditBuffer sets how many events may wait for the writer before Emit drops.
func WithAuditBuffer(n int) AuditOption {
	return func(a *AuditSink) {
		if n > 0 {
			a.buffer = n
		}
	}
}

type auditItem struct {
	ev      energyflow.Event
	flushed chan struct{}
}

// AuditSink records tick and error events in a SQLite database. Emit only
// queues; a single writer goroutine owns the database.
type AuditSink struct {
	db      *sql.DB
	log     *zap.Logger
	buffer  int
	items   chan auditItem
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	dropped *atomic.Uint64
	failed  *atomic.Uint64
}

// OpenAuditSink opens (or creates) the database at path and starts the writer.
func OpenAuditSink(ctx context.Context, path string, opts ...AuditOption) (*AuditSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, auditSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}

	a := &AuditSink{
		db:      db,
		log:     zap.NewNop(),
		buffer:  1024,
		done:    make(chan struct{}),
		dropped: atomic.NewUint64(0),
		failed:  atomic.NewUint64(0),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.items = make(chan auditItem, a.buffer)
	go a.run()
	return a, nil
}

// Emit implements energyflow.Sink. It never blocks; events that do not fit
// in the buffer are counted and dropped.
func (a *AuditSink) Emit(ev energyflow.Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrAuditClosed
	}
	select {
	case a.items <- auditItem{ev: ev}:
	default:
		a.dropped.Inc()
	}
	return nil
}

// Flush waits until every event queued before the call is written.
func (a *AuditSink) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return ErrAuditClosed
	}
	select {
	case a.items <- auditItem{flushed: flushed}:
		a.mu.RUnlock()
	case <-ctx.Done():
		a.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and closes the database.
func (a *AuditSink) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.items)
	a.mu.Unlock()

	<-a.done
	return a.db.Close()
}

// Dropped is the number of events discarded because the writer fell behind.
func (a *AuditSink) Dropped() uint64 { return a.dropped.Load() }

// WriteFailures is the number of events the writer could not store.
func (a *AuditSink) WriteFailures() uint64 { return a.failed.Load() }

// TickCount returns the number of stored tick events.
func (a *AuditSink) TickCount(ctx context.Context) (int, error) {
	return a.count(ctx, "tick_events")
}

// ErrorCount returns the number of stored error events.
func (a *AuditSink) ErrorCount(ctx context.Context) (int, error) {
	return a.count(ctx, "error_events")
}

// SessionTotals returns the final accumulated energy of every recorded session.
func (a *AuditSink) SessionTotals(ctx context.Context) (map[string]float64, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT session_id, MAX(energy_accumulated) FROM tick_events GROUP BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("query session totals: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]float64)
	for rows.Next() {
		var (
			id    string
			total float64
		)
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("scan session total: %w", err)
		}
		out[id] = total
	}
	return out, rows.Err()
}

func (a *AuditSink) count(ctx context.Context, table string) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (a *AuditSink) run() {
	defer close(a.done)
	for item := range a.items {
		if item.flushed != nil {
			close(item.flushed)
			continue
		}
		if err := a.write(context.Background(), item.ev); err != nil {
			a.failed.Inc()
			a.log.Warn("audit write failed", zap.Uint64("seq", item.ev.EventSeq()), zap.Error(err))
		}
	}
}

func (a *AuditSink) write(ctx context.Context, ev energyflow.Event) error {
	switch e := ev.(type) {
	case *energyflow.TickEvent:
		return a.writeTick(ctx, e)
	case *energyflow.ErrorEvent:
		_, err := a.db.ExecContext(ctx, `
INSERT INTO error_events(seq, ts, session_id, code, severity, task, message)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, int64(e.Seq), ts(e.Timestamp), e.SessionID, string(e.Code), string(e.Severity), e.Task, e.Message)
		if err != nil {
			return fmt.Errorf("insert error event: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

func (a *AuditSink) writeTick(ctx context.Context, e *energyflow.TickEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal tick event: %w", err)
	}
	_, err = a.db.ExecContext(ctx, `
INSERT INTO tick_events(seq, ts, session_id, session_state, tokens, batches,
	energy_current, energy_accumulated, energy_smoothed, energy_peak, energy_rate,
	queue_depth, tick_duration_us, overruns, degraded, quality, failed, payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, int64(e.Seq), ts(e.Timestamp), e.SessionID, e.SessionState.String(), e.TokensProcessed, e.BatchesProcessed,
		e.Energy.Current, e.Energy.Accumulated, e.Energy.Smoothed, e.Energy.Peak, e.Energy.Rate,
		e.Queue.Depth, e.Performance.TickDuration.Microseconds(), int64(e.Performance.Overruns),
		boolToInt(e.Performance.Degraded), e.Performance.Quality, boolToInt(e.Performance.Failed), string(payload))
	if err != nil {
		return fmt.Errorf("insert tick event: %w", err)
	}
	return nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Package queue implements the bounded ingestion queue shared between
// producers and the tick loop.
package queue

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/comalice/energyflow"
)

// Stats are cumulative counters owned by the queue.
type Stats struct {
	Enqueued uint64
	Merged   uint64
	Dropped  uint64
}

// Queue is a bounded FIFO of token batches. On overflow the incoming batch is
// merged into the newest resident batch when both belong to the same stream
// and arrived within the coalescing window; otherwise the oldest batch is
// evicted. Enqueue never blocks.
type Queue struct {
	mu     sync.Mutex
	buf    []energyflow.TokenBatch
	head   int
	n      int
	window time.Duration

	enqueued *atomic.Uint64
	merged   *atomic.Uint64
	dropped  *atomic.Uint64
}

// New creates a queue. capacity must be positive.
func New(capacity int, window time.Duration) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		buf:      make([]energyflow.TokenBatch, capacity),
		window:   window,
		enqueued: atomic.NewUint64(0),
		merged:   atomic.NewUint64(0),
		dropped:  atomic.NewUint64(0),
	}
}

// Enqueue stores b. Validation is the caller's job; a batch without tokens is
// still refused here. A full queue never fails: it merges or evicts instead.
func (q *Queue) Enqueue(b energyflow.TokenBatch) error {
	if b.TokenCount <= 0 {
		return fmt.Errorf("enqueue: %w", energyflow.ErrInvalidTokenCount)
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.enqueued.Inc()
	if q.n < len(q.buf) {
		q.push(b)
		return nil
	}

	newest := &q.buf[q.index(q.n-1)]
	if newest.CanMerge(b, q.window) {
		*newest = newest.Merge(b)
		q.merged.Inc()
		return nil
	}

	// Evict oldest.
	q.buf[q.head] = energyflow.TokenBatch{}
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	q.dropped.Inc()
	q.push(b)
	return nil
}

// Drain removes up to limit batches in FIFO order. limit <= 0 drains everything.
func (q *Queue) Drain(limit int) []energyflow.TokenBatch {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := q.n
	if limit > 0 && limit < count {
		count = limit
	}
	if count == 0 {
		return nil
	}
	out := make([]energyflow.TokenBatch, count)
	for i := 0; i < count; i++ {
		out[i] = q.buf[q.head]
		q.buf[q.head] = energyflow.TokenBatch{}
		q.head = (q.head + 1) % len(q.buf)
	}
	q.n -= count
	return out
}

// Len returns the number of resident batches.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Capacity returns the configured capacity.
func (q *Queue) Capacity() int {
	return len(q.buf)
}

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued: q.enqueued.Load(),
		Merged:   q.merged.Load(),
		Dropped:  q.dropped.Load(),
	}
}

func (q *Queue) push(b energyflow.TokenBatch) {
	q.buf[q.index(q.n)] = b
	q.n++
}

func (q *Queue) index(i int) int {
	return (q.head + i) % len(q.buf)
}

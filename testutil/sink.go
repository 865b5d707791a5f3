package testutil

import (
	"errors"
	"sync"
	"time"

	"github.com/comalice/energyflow"
)

// RecordingSink keeps every event it receives. It is safe for concurrent use.
type RecordingSink struct {
	mu     sync.Mutex
	ticks  []*energyflow.TickEvent
	errors []*energyflow.ErrorEvent
	order  []uint64
}

// Emit implements energyflow.Sink.
func (r *RecordingSink) Emit(ev energyflow.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch e := ev.(type) {
	case *energyflow.TickEvent:
		r.ticks = append(r.ticks, e)
	case *energyflow.ErrorEvent:
		r.errors = append(r.errors, e)
	}
	r.order = append(r.order, ev.EventSeq())
	return nil
}

// Ticks returns a copy of the recorded tick events.
func (r *RecordingSink) Ticks() []*energyflow.TickEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*energyflow.TickEvent, len(r.ticks))
	copy(out, r.ticks)
	return out
}

// Errors returns a copy of the recorded error events.
func (r *RecordingSink) Errors() []*energyflow.ErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*energyflow.ErrorEvent, len(r.errors))
	copy(out, r.errors)
	return out
}

// Last returns the most recent tick event, or nil.
func (r *RecordingSink) Last() *energyflow.TickEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ticks) == 0 {
		return nil
	}
	return r.ticks[len(r.ticks)-1]
}

// Sequence returns the sequence numbers of all events in delivery order.
func (r *RecordingSink) Sequence() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, len(r.order))
	copy(out, r.order)
	return out
}

// WaitForTicks polls until at least n tick events arrived or timeout elapses.
func (r *RecordingSink) WaitForTicks(n int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		got := len(r.ticks)
		r.mu.Unlock()
		if got >= n {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return errors.New("timeout waiting for tick events")
}

// FailingSink returns an error, or panics when Panic is set, on every event.
type FailingSink struct {
	Panic bool
}

func (f FailingSink) Emit(energyflow.Event) error {
	if f.Panic {
		panic("sink exploded")
	}
	return errors.New("sink unavailable")
}

package production

import (
	"go.uber.org/atomic"

	"github.com/comalice/energyflow"
)

// ChannelPublisher forwards events to a Go channel.
// Non-blocking publish with drop on backpressure.
type ChannelPublisher struct {
	ch      chan<- energyflow.Event
	dropped *atomic.Uint64
}

// NewChannelPublisher creates a ChannelPublisher with the given output channel.
func NewChannelPublisher(ch chan<- energyflow.Event) *ChannelPublisher {
	return &ChannelPublisher{ch: ch, dropped: atomic.NewUint64(0)}
}

// Emit implements energyflow.Sink.
func (p *ChannelPublisher) Emit(ev energyflow.Event) error {
	select {
	case p.ch <- ev:
	default:
		p.dropped.Inc()
	}
	return nil
}

// Dropped is the number of events discarded because the channel was full.
func (p *ChannelPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Close closes the output channel. Emit must not be called afterwards.
func (p *ChannelPublisher) Close() error {
	close(p.ch)
	return nil
}

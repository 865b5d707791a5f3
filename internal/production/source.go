package production

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/atomic"

	"github.com/comalice/energyflow"
)

// Submitter accepts token batches. *realtime.Scheduler implements it.
type Submitter interface {
	Submit(energyflow.TokenBatch) error
}

// ChannelSource feeds token batches received on a Go channel into a Submitter.
// The channel should be buffered if producers must not wait on Forward.
type ChannelSource struct {
	ch       <-chan energyflow.TokenBatch
	accepted *atomic.Uint64
	rejected *atomic.Uint64
}

// NewChannelSource creates a ChannelSource reading from ch.
func NewChannelSource(ch <-chan energyflow.TokenBatch) *ChannelSource {
	return &ChannelSource{ch: ch, accepted: atomic.NewUint64(0), rejected: atomic.NewUint64(0)}
}

// Forward submits batches until ch is closed or ctx is done.
func (s *ChannelSource) Forward(ctx context.Context, sub Submitter) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-s.ch:
			if !ok {
				return
			}
			if err := sub.Submit(b); err != nil {
				s.rejected.Inc()
				continue
			}
			s.accepted.Inc()
		}
	}
}

// Accepted is the number of batches the submitter took.
func (s *ChannelSource) Accepted() uint64 { return s.accepted.Load() }

// Rejected is the number of batches the submitter refused.
func (s *ChannelSource) Rejected() uint64 { return s.rejected.Load() }

// SyntheticSource generates token batches for one stream on a jittered timer.
// Useful for demos and soak tests.
type SyntheticSource struct {
	ch        chan energyflow.TokenBatch
	stream    string
	model     string
	interval  time.Duration
	pauseOdds int
	pause     time.Duration
	stop      chan struct{}
}

// NewSyntheticSource starts a generator emitting roughly every interval. About
// one emission in pauseOdds is preceded by a pause long enough to stall a
// session; pauseOdds <= 0 disables pauses.
func NewSyntheticSource(stream, model string, interval time.Duration, pauseOdds int, pause time.Duration) *SyntheticSource {
	s := &SyntheticSource{
		ch:        make(chan energyflow.TokenBatch, 10),
		stream:    stream,
		model:     model,
		interval:  interval,
		pauseOdds: pauseOdds,
		pause:     pause,
		stop:      make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *SyntheticSource) run() {
	defer close(s.ch)
	for {
		wait := s.interval/2 + time.Duration(rand.Int64N(int64(s.interval)+1))
		if s.pauseOdds > 0 && rand.IntN(s.pauseOdds) == 0 {
			wait = s.pause
		}
		timer := time.NewTimer(wait)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case now := <-timer.C:
			b := energyflow.NewTokenBatch(now, s.stream, s.model,
				1+rand.IntN(12), 0.5+rand.Float64()*2, 20+rand.Float64()*60, nil)
			select {
			case s.ch <- b:
			default:
				// drop if full
			}
		}
	}
}

// Batches returns the batch channel. It is closed after Stop.
func (s *SyntheticSource) Batches() <-chan energyflow.TokenBatch {
	return s.ch
}

// Stop stops the generator and closes the channel.
func (s *SyntheticSource) Stop() {
	close(s.stop)
}

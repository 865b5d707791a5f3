package realtime

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/comalice/energyflow"
)

type controlKind int

const (
	controlStartSession controlKind = iota
	controlStartPrompt
	controlFinalToken
	controlSkipTask
	controlUnskipTask
)

// control is a session signal queued by a producer and applied by the tick loop.
type control struct {
	kind      controlKind
	sessionID string
	task      string
	metadata  map[string]string
}

// Ingest is the non-blocking token notification entry point. It reports
// whether the batch was accepted; Submit returns the reason when it was not.
func (s *Scheduler) Ingest(streamID, modelID string, tokenCount int, complexity, speed float64, metadata map[string]string) bool {
	b := energyflow.NewTokenBatch(s.clock.Now(), streamID, modelID, tokenCount, complexity, speed, metadata)
	return s.Submit(b) == nil
}

// Submit validates and enqueues a prepared batch.
func (s *Scheduler) Submit(b energyflow.TokenBatch) error {
	if b.Arrival.IsZero() {
		b.Arrival = s.clock.Now()
	}
	b.Complexity = energyflow.ClampComplexity(b.Complexity)
	if err := b.Validate(); err != nil {
		s.invalid.Inc()
		return fmt.Errorf("ingest %q: %w", b.StreamID, err)
	}
	if s.cfg.Energy.RejectUnknownModels && !s.factors.Known(b.ModelID) {
		s.invalid.Inc()
		return fmt.Errorf("ingest %q: %w: %q", b.StreamID, energyflow.ErrUnknownModel, b.ModelID)
	}
	if s.cfg.Session.PostDrainPolicy == energyflow.PostDrainReject &&
		s.SessionState() == energyflow.StateDrained && s.pendingSessions.Load() == 0 {
		s.rejected.Inc()
		return fmt.Errorf("ingest %q: %w", b.StreamID, energyflow.ErrSessionDrained)
	}
	if err := s.queue.Enqueue(b); err != nil {
		s.invalid.Inc()
		return fmt.Errorf("ingest %q: %w", b.StreamID, err)
	}
	return nil
}

// StartSession opens a new session: energy state, stream bookkeeping and the
// session machine are reset at the start of the next tick, which is also when
// SessionID starts reporting the returned id. Batches submitted in between are
// accepted and counted towards the new session.
func (s *Scheduler) StartSession() string {
	id := uuid.NewString()
	s.pendingSessions.Inc()
	s.sendControl(control{kind: controlStartSession, sessionID: id})
	return id
}

// SkipTask keeps a non-critical task from running until UnskipTask, whatever
// the budget. It takes effect at the next tick.
func (s *Scheduler) SkipTask(name string) {
	s.sendControl(control{kind: controlSkipTask, task: name})
}

// UnskipTask releases a task pinned by SkipTask.
func (s *Scheduler) UnskipTask(name string) {
	s.sendControl(control{kind: controlUnskipTask, task: name})
}

// StartPrompt signals that a prompt was submitted upstream.
func (s *Scheduler) StartPrompt(metadata map[string]string) {
	s.sendControl(control{kind: controlStartPrompt, metadata: metadata})
}

// SignalFinalToken drains the session once the tokens of the current tick are processed.
func (s *Scheduler) SignalFinalToken() {
	s.sendControl(control{kind: controlFinalToken})
}

// SessionState returns the session state as of the last tick.
func (s *Scheduler) SessionState() energyflow.SessionState {
	return energyflow.SessionState(s.published.Load())
}

// SessionID returns the id of the current session.
func (s *Scheduler) SessionID() string {
	return s.sessionID.Load()
}

// QueueDepth returns the number of batches waiting for the next tick.
func (s *Scheduler) QueueDepth() int {
	return s.queue.Len()
}

func (s *Scheduler) sendControl(c control) {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	s.controls = append(s.controls, c)
}

// collectControls atomically retrieves and clears the control batch.
func (s *Scheduler) collectControls() []control {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	controls := s.controls
	s.controls = nil
	return controls
}

// applyControls runs on the tick loop before any task. A final-token signal is
// deferred until the tick's tokens have been processed.
func (s *Scheduler) applyControls(now time.Time) {
	for _, c := range s.collectControls() {
		switch c.kind {
		case controlStartSession:
			s.resetSession(c.sessionID)
			s.pendingSessions.Dec()
			s.tick.finalToken = false
		case controlStartPrompt:
			s.session.Send(energyflow.SignalPromptStarted, now)
			s.log.Debug("prompt started", zap.String("session", s.sessionID.Load()), zap.Any("metadata", c.metadata))
		case controlFinalToken:
			s.tick.finalToken = true
		case controlSkipTask:
			s.degrade.SkipTask(c.task)
			s.log.Info("task pinned off", zap.String("task", c.task))
		case controlUnskipTask:
			s.degrade.UnskipTask(c.task)
			s.log.Info("task released", zap.String("task", c.task))
		}
	}
}

// resetSession is the only writer of the session id and the published state
// outside the machine's transition hook. Tick loop only.
func (s *Scheduler) resetSession(id string) {
	if id == "" {
		id = uuid.NewString()
	}
	s.sessionID.Store(id)
	s.energy.Reset()
	s.registry.Reset()
	s.history.Reset()
	s.session.Reset()
	s.lastTickStart = s.tick.start
	s.published.Store(int32(energyflow.StateIdle))
	s.log.Info("session started", zap.String("session", id))
}

package realtime

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/comalice/energyflow"
	"github.com/comalice/energyflow/internal/energy"
)

// Built-in task names.
const (
	TaskDrain        = "drain"
	TaskEnergy       = "energy"
	TaskInterference = "interference"
	TaskResonance    = "resonance"
)

// tickState carries the working set of one tick between tasks.
type tickState struct {
	seq          uint64
	start        time.Time
	batches      int
	tokens       int
	total        float64
	lastArrival  time.Time
	streamEnergy map[string]float64
	active       []string
	interference *energyflow.Interference
	resonance    *energyflow.Resonance
	finalToken   bool
	skipped      []string
	errors       []*energyflow.ErrorEvent
	failed       bool
}

func (s *Scheduler) registerBuiltins() {
	builtins := []Task{
		{Name: TaskDrain, Priority: Critical, Run: s.drainTask},
		{Name: TaskEnergy, Priority: Critical, Run: s.energyTask},
		{Name: TaskInterference, Priority: Medium, EstimatedCost: 500 * time.Microsecond, Analytical: true, Run: s.interferenceTask},
		{Name: TaskResonance, Priority: Low, EstimatedCost: 200 * time.Microsecond, Analytical: true, Run: s.resonanceTask},
	}
	for _, t := range builtins {
		_ = s.RegisterTask(t)
	}
}

// processTick processes one complete tick
func (s *Scheduler) processTick(start time.Time) *energyflow.TickEvent {
	// Phase 1: Reset the working set and apply session signals
	s.tick = tickState{seq: s.tickNum.Inc(), start: start}
	s.applyControls(start)
	s.refreshTasks()

	// Phase 2: Run tasks in priority order, skipping what the budget cannot afford
	tc := &TickContext{
		Seq:      s.tick.seq,
		Start:    start,
		Deadline: start.Add(s.budget),
		clock:    s.clock,
	}
	skip := s.degrade.Recommendations()
	analysisCutoff := time.Duration(float64(s.budget) * s.cfg.Tick.AnalysisBudgetFraction)
	for _, t := range s.tasks {
		if t.Priority != Critical {
			if reason := skipReason(tc, t.Task, skip.SkipsTask(t.Name, t.Priority), analysisCutoff); reason != "" {
				s.tick.skipped = append(s.tick.skipped, t.Name)
				s.log.Debug("task skipped", zap.Uint64("tick", tc.Seq), zap.String("task", t.Name), zap.String("reason", reason))
				continue
			}
		}
		s.runTask(tc, t.Task)
	}

	// Phase 3: Feed timing back into degradation before emission
	duration := s.clock.Now().Sub(start)
	s.degrade.Record(duration, s.budget)
	if duration > s.budget {
		if n := s.overruns.Inc(); n%60 == 1 {
			s.log.Warn("tick over budget",
				zap.Uint64("tick", tc.Seq),
				zap.Duration("duration", duration),
				zap.Duration("budget", s.budget),
				zap.Uint64("overruns", n))
		}
	}
	if s.tick.failed {
		s.failedTicks.Inc()
	}
	s.lastTickStart = start

	// Phase 4: Emit
	ev := s.tickEvent(duration)
	for _, e := range s.tick.errors {
		s.emit(e)
	}
	s.emit(ev)
	return ev
}

func skipReason(tc *TickContext, t Task, recommended bool, analysisCutoff time.Duration) string {
	switch {
	case recommended:
		return "degraded"
	case tc.Remaining() < t.EstimatedCost:
		return "budget"
	case t.Analytical && tc.Elapsed() >= analysisCutoff:
		return "analysis_cutoff"
	default:
		return ""
	}
}

// refreshTasks merges tasks registered since the last tick.
func (s *Scheduler) refreshTasks() {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	if len(s.pending) == 0 {
		return
	}
	s.tasks = append(s.tasks, s.pending...)
	s.pending = nil
	sortTasks(s.tasks)
}

// runTask is the task boundary: errors and panics become error events. A task
// that crosses the deadline while running counts as a task overrun.
func (s *Scheduler) runTask(tc *TickContext, t Task) {
	late := tc.Now().After(tc.Deadline)
	defer func() {
		if r := recover(); r != nil {
			s.taskFailed(tc, t, energyflow.CodeTaskPanic, fmt.Sprint(r))
		}
		if !late && tc.Now().After(tc.Deadline) {
			s.taskOverruns.Inc()
			s.log.Debug("task overran tick deadline", zap.Uint64("tick", tc.Seq), zap.String("task", t.Name))
		}
	}()
	if err := t.Run(tc); err != nil {
		code := energyflow.CodeTaskFailed
		if t.Priority == Critical {
			code = energyflow.CodeCriticalTaskFailed
		}
		s.taskFailed(tc, t, code, err.Error())
	}
}

func (s *Scheduler) taskFailed(tc *TickContext, t Task, code energyflow.ErrorCode, msg string) {
	severity := energyflow.SeverityError
	if t.Priority == Critical {
		severity = energyflow.SeverityCritical
		s.tick.failed = true
	}
	s.tick.errors = append(s.tick.errors, &energyflow.ErrorEvent{
		Seq:       tc.Seq,
		Timestamp: tc.Now(),
		SessionID: s.sessionID.Load(),
		Code:      code,
		Message:   msg,
		Severity:  severity,
		Task:      t.Name,
	})
	s.log.Error("task failed",
		zap.Uint64("tick", tc.Seq),
		zap.String("task", t.Name),
		zap.String("code", string(code)),
		zap.String("error", msg))
}

// drainTask converts the queued batches into this tick's energy contribution.
func (s *Scheduler) drainTask(tc *TickContext) error {
	batches := s.queue.Drain(s.cfg.Queue.MaxDrainPerTick)
	if len(batches) == 0 {
		return nil
	}
	if s.session.Current() == energyflow.StateDrained && s.pendingSessions.Load() > 0 {
		// StartSession raced this tick's controls; its batches belong to the new session.
		s.applyControls(tc.Start)
	}
	if s.session.Current() == energyflow.StateDrained {
		if s.cfg.Session.PostDrainPolicy == energyflow.PostDrainReject {
			s.rejected.Add(uint64(len(batches)))
			s.log.Debug("batches rejected after drain", zap.Uint64("tick", tc.Seq), zap.Int("batches", len(batches)))
			return nil
		}
		s.resetSession(uuid.NewString())
	}

	s.tick.streamEnergy = make(map[string]float64)
	for _, b := range batches {
		e := s.calc.Energy(b)
		s.tick.total += e
		s.tick.tokens += b.TokenCount
		s.tick.streamEnergy[b.StreamID] += e
		if b.Arrival.After(s.tick.lastArrival) {
			s.tick.lastArrival = b.Arrival
		}
		s.registry.Observe(b.StreamID, b.ModelID, b.TokenCount, e, b.Arrival)
	}
	s.tick.batches = len(batches)
	return nil
}

// energyTask updates energy state, the session machine and stream history.
func (s *Scheduler) energyTask(tc *TickContext) error {
	var dt time.Duration
	if !s.lastTickStart.IsZero() {
		dt = tc.Start.Sub(s.lastTickStart)
	}
	s.energy.Update(s.tick.total, dt)

	if s.tick.batches > 0 {
		s.session.Send(energyflow.SignalToken, s.tick.lastArrival)
	}
	if s.tick.finalToken {
		s.session.Send(energyflow.SignalFinalToken, tc.Start)
		s.tick.finalToken = false
	}
	s.session.Evaluate(tc.Start)

	s.tick.active = s.registry.Active(tc.Start, s.cfg.Session.DrainTimeout)
	for _, id := range s.tick.active {
		s.history.Record(id, s.tick.streamEnergy[id])
	}
	return nil
}

func (s *Scheduler) interferenceTask(tc *TickContext) error {
	s.tick.interference = s.detector.Interference(s.history, s.tick.active)
	return nil
}

func (s *Scheduler) resonanceTask(tc *TickContext) error {
	s.tick.resonance = s.detector.Resonance(s.history, s.tick.active)
	return nil
}

// tickEvent builds the tick's event. Values are rounded here and only here.
func (s *Scheduler) tickEvent(duration time.Duration) *energyflow.TickEvent {
	snap := s.energy.Snapshot()
	qs := s.queue.Stats()

	var streams map[string]float64
	if len(s.tick.streamEnergy) > 0 {
		streams = make(map[string]float64, len(s.tick.streamEnergy))
		for id, e := range s.tick.streamEnergy {
			streams[id] = energy.Round3(e)
		}
	}

	return &energyflow.TickEvent{
		Seq:       s.tick.seq,
		Timestamp: s.tick.start,
		SessionID: s.sessionID.Load(),
		Energy: energyflow.EnergySnapshot{
			Current:     energy.Round3(snap.Current),
			Smoothed:    energy.Round3(snap.Smoothed),
			Accumulated: energy.Round3(snap.Accumulated),
			Peak:        energy.Round3(snap.Peak),
			Rate:        energy.Round3(snap.Rate),
		},
		TokensProcessed:  s.tick.tokens,
		BatchesProcessed: s.tick.batches,
		Queue: energyflow.QueueStatus{
			Depth:    s.queue.Len(),
			Merged:   qs.Merged,
			Dropped:  qs.Dropped,
			Rejected: s.rejected.Load(),
		},
		SessionState: s.session.Current(),
		StreamEnergy: streams,
		Interference: s.tick.interference,
		Resonance:    s.tick.resonance,
		Performance: energyflow.Performance{
			TickDuration: duration,
			Budget:       s.budget,
			Overruns:     s.overruns.Load(),
			Degraded:     s.degrade.Degraded(),
			Quality:      s.degrade.QualityLevel(),
			SkippedTasks: s.tick.skipped,
			Failed:       s.tick.failed,
		},
	}
}

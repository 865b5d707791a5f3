package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/comalice/energyflow"
	"github.com/comalice/energyflow/internal/degrade"
	"github.com/comalice/energyflow/internal/energy"
	"github.com/comalice/energyflow/internal/pattern"
	"github.com/comalice/energyflow/internal/queue"
)

// ErrAlreadyRunning is returned by Start when the tick loop is active.
var ErrAlreadyRunning = errors.New("tick loop already running")

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithFactorTable shares a hot-swappable model factor table.
func WithFactorTable(t *energy.FactorTable) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.factors = t
		}
	}
}

// Stats are cumulative scheduler counters, safe to read from any goroutine.
type Stats struct {
	Ticks        uint64
	Overruns     uint64
	TaskOverruns uint64
	FailedTicks  uint64
	SinkFailures uint64
	Rejected     uint64
	Invalid      uint64
	Queue        queue.Stats
}

// Scheduler runs the fixed-rate tick loop. Producers call Ingest from any
// goroutine; everything else is owned by the loop.
type Scheduler struct {
	cfg    energyflow.Config
	budget time.Duration
	log    *zap.Logger
	clock  Clock

	// Shared with producers.
	queue     *queue.Queue
	factors   *energy.FactorTable
	controlMu sync.Mutex
	controls  []control
	sessionID *atomic.String
	published *atomic.Int32

	// StartSession calls not yet applied by the loop.
	pendingSessions atomic.Int32

	// Owned by the tick loop.
	calc          *energy.Calculator
	energy        *energy.State
	session       *energyflow.SessionMachine
	registry      *pattern.Registry
	history       *pattern.History
	detector      *pattern.Detector
	degrade       *degrade.Controller
	tasks         []registeredTask
	lastTickStart time.Time
	tick          tickState

	tasksMu sync.Mutex
	pending []registeredTask
	nextSeq int

	sinksMu sync.RWMutex
	sinks   []namedSink

	// Counters.
	tickNum      *atomic.Uint64
	overruns     *atomic.Uint64
	taskOverruns *atomic.Uint64
	failedTicks  *atomic.Uint64
	sinkFailures *atomic.Uint64
	rejected     *atomic.Uint64
	invalid      *atomic.Uint64

	// Control.
	running *atomic.Bool
	stopped chan struct{}
}

// NewScheduler validates cfg and builds a scheduler with the built-in tasks registered.
func NewScheduler(cfg energyflow.Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Scheduler{
		cfg:          cfg,
		budget:       cfg.Tick.Budget(),
		log:          zap.NewNop(),
		clock:        systemClock{},
		queue:        queue.New(cfg.Queue.Capacity, cfg.Queue.CoalesceWindow),
		sessionID:    atomic.NewString(""),
		published:    atomic.NewInt32(int32(energyflow.StateIdle)),
		energy:       energy.NewState(cfg.Energy.SmoothingAlpha),
		session:      energyflow.NewSessionMachine(cfg.Session.StallThreshold, cfg.Session.DrainTimeout),
		registry:     pattern.NewRegistry(),
		history:      pattern.NewHistory(cfg.Pattern.HistoryCapacity),
		detector:     pattern.NewDetector(cfg.Pattern, cfg.Tick.RateHz),
		degrade:      degrade.NewController(cfg.Degrade),
		tickNum:      atomic.NewUint64(0),
		overruns:     atomic.NewUint64(0),
		taskOverruns: atomic.NewUint64(0),
		failedTicks:  atomic.NewUint64(0),
		sinkFailures: atomic.NewUint64(0),
		rejected:     atomic.NewUint64(0),
		invalid:      atomic.NewUint64(0),
		running:      atomic.NewBool(false),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.factors == nil {
		s.factors = energy.NewFactorTable(cfg.Energy.ModelFactors)
	}
	s.calc = energy.NewCalculator(s.factors)

	s.session.OnTransition(func(from, to energyflow.SessionState, sig energyflow.Signal) {
		s.published.Store(int32(to))
		s.log.Info("session transition",
			zap.String("session", s.sessionID.Load()),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.Stringer("signal", sig))
	})
	s.registerBuiltins()
	return s, nil
}

// Start begins tick-based execution on a new goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	s.stopped = make(chan struct{})
	s.log.Info("tick loop starting",
		zap.Duration("budget", s.budget),
		zap.Int("queue_capacity", s.queue.Capacity()))
	go s.tickLoop(ctx)
	return nil
}

// StopSession asks the loop to stop. The flag is observed at the top of the
// next tick; the current tick completes.
func (s *Scheduler) StopSession() {
	s.running.Store(false)
}

// Stop stops the loop and waits for it to exit.
func (s *Scheduler) Stop() error {
	s.StopSession()
	if s.stopped != nil {
		<-s.stopped
	}
	return nil
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Budget is the duration of one tick.
func (s *Scheduler) Budget() time.Duration {
	return s.budget
}

// TickNumber returns the number of ticks started so far.
func (s *Scheduler) TickNumber() uint64 {
	return s.tickNum.Load()
}

// Stats returns a snapshot of the cumulative counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Ticks:        s.tickNum.Load(),
		Overruns:     s.overruns.Load(),
		TaskOverruns: s.taskOverruns.Load(),
		FailedTicks:  s.failedTicks.Load(),
		SinkFailures: s.sinkFailures.Load(),
		Rejected:     s.rejected.Load(),
		Invalid:      s.invalid.Load(),
		Queue:        s.queue.Stats(),
	}
}

// SwapModelFactors hot-swaps the model factor table.
func (s *Scheduler) SwapModelFactors(factors map[string]float64) error {
	return s.factors.Swap(factors)
}

// RegisterTask adds a task. It takes effect at the next tick.
func (s *Scheduler) RegisterTask(t Task) error {
	if t.Name == "" {
		return errors.New("task name is required")
	}
	if t.Run == nil {
		return fmt.Errorf("task %q has no run function", t.Name)
	}
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	s.pending = append(s.pending, registeredTask{Task: t, seq: s.nextSeq})
	s.nextSeq++
	return nil
}

// tickLoop is the main tick execution loop.
func (s *Scheduler) tickLoop(ctx context.Context) {
	defer close(s.stopped)
	defer s.log.Info("tick loop stopped", zap.Uint64("ticks", s.tickNum.Load()))

	for {
		if !s.running.Load() || ctx.Err() != nil {
			s.running.Store(false)
			return
		}
		start := s.clock.Now()
		s.safeTick(start)

		elapsed := s.clock.Now().Sub(start)
		if wait := s.budget - elapsed; wait > 0 {
			s.clock.Sleep(ctx, wait)
		}
	}
}

// safeTick runs one tick and keeps a panic outside the task boundaries from
// ending the loop.
func (s *Scheduler) safeTick(start time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.failedTicks.Inc()
			s.log.Error("tick panicked", zap.Uint64("tick", s.tickNum.Load()), zap.Any("panic", r))
		}
	}()
	s.processTick(start)
}

// Step runs exactly one tick on the calling goroutine, without pacing.
// It must not be used while the loop is running.
func (s *Scheduler) Step() *energyflow.TickEvent {
	return s.processTick(s.clock.Now())
}

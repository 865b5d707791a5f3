package energyflow

import (
	"fmt"
	"time"
)

// SessionState is the lifecycle state of a generation session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateCharging
	StateFlowing
	StateStalling
	StateDrained
)

var sessionStateNames = [...]string{
	StateIdle:     "idle",
	StateCharging: "charging",
	StateFlowing:  "flowing",
	StateStalling: "stalling",
	StateDrained:  "drained",
}

func (s SessionState) String() string {
	if s < 0 || int(s) >= len(sessionStateNames) {
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
	return sessionStateNames[s]
}

// MarshalText renders the state by name in JSON and YAML output.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *SessionState) UnmarshalText(text []byte) error {
	for i, name := range sessionStateNames {
		if name == string(text) {
			*s = SessionState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Signal drives the session machine.
type Signal int

const (
	SignalPromptStarted Signal = iota + 1
	SignalToken
	SignalStallTimeout
	SignalDrainTimeout
	SignalFinalToken
)

func (s Signal) String() string {
	switch s {
	case SignalPromptStarted:
		return "prompt_started"
	case SignalToken:
		return "token"
	case SignalStallTimeout:
		return "stall_timeout"
	case SignalDrainTimeout:
		return "drain_timeout"
	case SignalFinalToken:
		return "final_token"
	default:
		return fmt.Sprintf("Signal(%d)", int(s))
	}
}

// Transition is one edge of the session machine.
type Transition struct {
	Signal Signal
	Source SessionState
	Target SessionState
}

// sessionTransitions is evaluated in document order; the first match wins.
var sessionTransitions = []Transition{
	{Signal: SignalPromptStarted, Source: StateIdle, Target: StateCharging},
	{Signal: SignalToken, Source: StateCharging, Target: StateFlowing},
	{Signal: SignalToken, Source: StateStalling, Target: StateFlowing},
	{Signal: SignalStallTimeout, Source: StateFlowing, Target: StateStalling},
	{Signal: SignalDrainTimeout, Source: StateStalling, Target: StateDrained},
	{Signal: SignalFinalToken, Source: StateIdle, Target: StateDrained},
	{Signal: SignalFinalToken, Source: StateCharging, Target: StateDrained},
	{Signal: SignalFinalToken, Source: StateFlowing, Target: StateDrained},
	{Signal: SignalFinalToken, Source: StateStalling, Target: StateDrained},
}

// Transitions returns the session transition table.
func Transitions() []Transition {
	out := make([]Transition, len(sessionTransitions))
	copy(out, sessionTransitions)
	return out
}

// TransitionHook observes a completed transition.
type TransitionHook func(from, to SessionState, sig Signal)

// SessionMachine tracks one session's lifecycle. It is not safe for concurrent
// use; the tick loop owns it.
type SessionMachine struct {
	current        SessionState
	lastToken      time.Time
	stallThreshold time.Duration
	drainTimeout   time.Duration
	hooks          []TransitionHook
}

// NewSessionMachine creates a machine in StateIdle.
func NewSessionMachine(stallThreshold, drainTimeout time.Duration) *SessionMachine {
	return &SessionMachine{
		current:        StateIdle,
		stallThreshold: stallThreshold,
		drainTimeout:   drainTimeout,
	}
}

// OnTransition registers a hook run after every state change.
func (m *SessionMachine) OnTransition(hook TransitionHook) {
	m.hooks = append(m.hooks, hook)
}

// Current returns the current state.
func (m *SessionMachine) Current() SessionState {
	return m.current
}

// LastToken returns the arrival time of the most recent token, zero if none.
func (m *SessionMachine) LastToken() time.Time {
	return m.lastToken
}

// Send applies sig at time at and reports whether the state changed.
// A token seen while idle opens an implicit prompt first. Nothing leaves
// StateDrained except Reset.
func (m *SessionMachine) Send(sig Signal, at time.Time) bool {
	if m.current == StateDrained {
		return false
	}
	if sig == SignalToken {
		if at.After(m.lastToken) {
			m.lastToken = at
		}
		if m.current == StateIdle {
			m.fire(SignalPromptStarted)
		}
	}
	return m.fire(sig)
}

// Evaluate derives stall and drain timeouts from the time since the last token.
func (m *SessionMachine) Evaluate(now time.Time) SessionState {
	if m.lastToken.IsZero() {
		return m.current
	}
	gap := now.Sub(m.lastToken)
	if m.current == StateFlowing && gap > m.stallThreshold {
		m.fire(SignalStallTimeout)
	}
	if m.current == StateStalling && gap > m.drainTimeout {
		m.fire(SignalDrainTimeout)
	}
	return m.current
}

// Reset returns the machine to StateIdle and forgets the last token.
func (m *SessionMachine) Reset() {
	m.current = StateIdle
	m.lastToken = time.Time{}
}

func (m *SessionMachine) fire(sig Signal) bool {
	t := pickTransition(m.current, sig)
	if t == nil {
		return false
	}
	from := m.current
	m.current = t.Target
	for _, h := range m.hooks {
		h(from, t.Target, sig)
	}
	return true
}

// pickTransition grabs the first transition matching state and signal.
func pickTransition(state SessionState, sig Signal) *Transition {
	for i := range sessionTransitions {
		t := &sessionTransitions[i]
		if t.Source == state && t.Signal == sig {
			return t
		}
	}
	return nil
}

// Package energyflow turns live token streams from concurrent model sessions
// into a bounded energy signal, updated once per fixed-rate tick.
//
// This package holds the domain vocabulary shared by the runtime and its
// adapters: token batches, the session state machine, tick and error events,
// sinks and configuration. The tick loop itself lives in package realtime.
//
// # Energy
//
// Each batch contributes
//
//	0.01 × tokens × clamp(complexity, 0.1, 10) × (1 + speed/100) × modelFactor
//
// energy units. Values are accumulated unrounded and rounded to three
// decimals only when a TickEvent is built.
//
// # Session lifecycle
//
//	idle --prompt--> charging --token--> flowing --stall--> stalling --drain--> drained
//	                                        ^                  |
//	                                        +------token-------+
//
// A final-token signal drains the session from any state. Drained is terminal
// until a new session is started.
package energyflow

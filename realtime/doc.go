// Package realtime provides the fixed-rate tick loop that turns queued token
// batches into energy events.
//
// The scheduler differs from an event-driven pipeline in how work is paced:
//   - Producers enqueue batches at any time; nothing is processed on arrival
//   - Batches are drained and converted at fixed tick boundaries (60 Hz by default)
//   - Tasks run in strict priority order within a fixed time budget
//   - Non-critical work is skipped, never the tick itself, when the budget runs out
//
// # Example Usage
//
//	s, _ := realtime.NewScheduler(energyflow.DefaultConfig(), realtime.WithLogger(logger))
//	s.RegisterSink("ui", energyflow.SinkFunc(func(ev energyflow.Event) error {
//		// hand off to a channel; never block here
//		return nil
//	}))
//	s.StartSession()
//	s.Start(ctx)
//	s.Ingest("stream-a", "llama2_7b", 12, 1.2, 45, nil)
//
// # Tick Phases
//
//  1. Apply queued session control signals (start session, start prompt)
//  2. Run tasks: critical (drain, energy), then high, medium, low
//  3. Feed the tick duration to the degradation controller
//  4. Emit error events, then the tick event, to every sink
//  5. Sleep until the next tick boundary; an overrun starts the next tick
//     immediately and is never caught up
//
// # Task Ordering Guarantees
//
// Tasks are ordered by:
//  1. Priority (critical first)
//  2. Registration order (stable for equal priority)
//
// Critical tasks always run. Other tasks are skipped when the remaining budget
// is smaller than their estimated cost, when the degradation controller
// recommends skipping them, or, for analytical tasks, once the analysis share
// of the budget is spent.
//
// # Failure Isolation
//
// Errors and panics are caught at each task and sink boundary. A failing
// critical task marks the tick failed; the loop itself keeps running.
package realtime

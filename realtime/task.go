package realtime

import (
	"sort"
	"time"

	"github.com/comalice/energyflow/internal/degrade"
)

// Priority orders tasks inside a tick.
type Priority = degrade.Tier

const (
	Critical = degrade.TierCritical
	High     = degrade.TierHigh
	Medium   = degrade.TierMedium
	Low      = degrade.TierLow
)

// TaskFunc does one bounded unit of work inside a tick.
type TaskFunc func(tc *TickContext) error

// Task is a unit of work registered with the scheduler.
type Task struct {
	Name     string
	Priority Priority
	// EstimatedCost is compared to the remaining budget before a non-critical task runs.
	EstimatedCost time.Duration
	// Analytical tasks only start while the tick is inside its analysis share of the budget.
	Analytical bool
	Run        TaskFunc
}

// TickContext is handed to every task of a tick.
type TickContext struct {
	Seq      uint64
	Start    time.Time
	Deadline time.Time
	clock    Clock
}

// Now reads the scheduler clock.
func (tc *TickContext) Now() time.Time { return tc.clock.Now() }

// Elapsed is the time spent in the tick so far.
func (tc *TickContext) Elapsed() time.Duration { return tc.clock.Now().Sub(tc.Start) }

// Remaining is the budget left before the deadline, never negative.
func (tc *TickContext) Remaining() time.Duration {
	r := tc.Deadline.Sub(tc.clock.Now())
	if r < 0 {
		return 0
	}
	return r
}

type registeredTask struct {
	Task
	seq int
}

// sortTasks orders tasks deterministically.
// Stable sort preserves registration order for equal priorities.
func sortTasks(tasks []registeredTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority < tasks[j].Priority
		}
		return tasks[i].seq < tasks[j].seq
	})
}

// Package degrade trades analytical fidelity for timing compliance when ticks
// run over budget.
package degrade

import (
	"math"
	"sort"
	"time"

	"github.com/comalice/energyflow"
)

// Tier is a task priority as seen by the controller.
type Tier int

const (
	TierCritical Tier = iota
	TierHigh
	TierMedium
	TierLow
)

func (t Tier) String() string {
	switch t {
	case TierCritical:
		return "critical"
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	default:
		return "unknown"
	}
}

// SkipSet is the set of tiers and task names the controller recommends skipping.
// Critical work is never part of it.
type SkipSet struct {
	tiers map[Tier]struct{}
	tasks map[string]struct{}
}

// SkipsTier reports whether every task of tier t should be skipped.
func (s SkipSet) SkipsTier(t Tier) bool {
	_, ok := s.tiers[t]
	return ok
}

// SkipsTask reports whether the named task, or its tier, should be skipped.
func (s SkipSet) SkipsTask(name string, t Tier) bool {
	if t == TierCritical {
		return false
	}
	if s.SkipsTier(t) {
		return true
	}
	_, ok := s.tasks[name]
	return ok
}

// Empty reports whether nothing is recommended for skipping.
func (s SkipSet) Empty() bool {
	return len(s.tiers) == 0 && len(s.tasks) == 0
}

// Tiers lists the skipped tiers in priority order.
func (s SkipSet) Tiers() []Tier {
	out := make([]Tier, 0, len(s.tiers))
	for t := range s.tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Controller keeps a rolling window of tick duration / budget ratios. It is
// owned by the tick loop and not safe for concurrent use.
type Controller struct {
	cfg     energyflow.DegradeConfig
	ratios  []float64
	next    int
	full    bool
	sum     float64
	quality float64
	pinned  map[string]struct{}
}

// NewController creates a controller at full quality.
func NewController(cfg energyflow.DegradeConfig) *Controller {
	return &Controller{
		cfg:     cfg,
		ratios:  make([]float64, cfg.Window),
		quality: cfg.MaxQuality,
		pinned:  make(map[string]struct{}),
	}
}

// Record adds one tick's timing.
func (c *Controller) Record(duration, budget time.Duration) {
	if budget <= 0 {
		return
	}
	ratio := float64(duration) / float64(budget)

	c.sum -= c.ratios[c.next]
	c.ratios[c.next] = ratio
	c.sum += ratio
	c.next = (c.next + 1) % len(c.ratios)
	if c.next == 0 {
		c.full = true
	}

	avg := c.AverageRatio()
	switch {
	case avg < c.cfg.RecoverBelow:
		c.quality += c.cfg.RecoverStep
	case avg > c.cfg.DegradeAbove:
		c.quality -= c.cfg.DegradeStep
	}
	c.quality = math.Min(c.cfg.MaxQuality, math.Max(c.cfg.MinQuality, c.quality))
}

// AverageRatio returns the mean duration/budget ratio over the window.
func (c *Controller) AverageRatio() float64 {
	n := c.samples()
	if n == 0 {
		return 0
	}
	return c.sum / float64(n)
}

// Recommendations escalates with the rolling average: low-priority work
// first, then medium, then everything that is not critical.
func (c *Controller) Recommendations() SkipSet {
	set := SkipSet{tiers: make(map[Tier]struct{}), tasks: make(map[string]struct{}, len(c.pinned))}
	for name := range c.pinned {
		set.tasks[name] = struct{}{}
	}
	avg := c.AverageRatio()
	if avg > c.cfg.LowThreshold {
		set.tiers[TierLow] = struct{}{}
	}
	if avg > c.cfg.MediumThreshold {
		set.tiers[TierMedium] = struct{}{}
	}
	if avg > c.cfg.AllThreshold {
		set.tiers[TierHigh] = struct{}{}
	}
	return set
}

// SkipTask pins a named task into every recommendation until Unskip.
func (c *Controller) SkipTask(name string) {
	c.pinned[name] = struct{}{}
}

// UnskipTask removes a pinned task.
func (c *Controller) UnskipTask(name string) {
	delete(c.pinned, name)
}

// Degraded reports whether any tier is currently recommended for skipping.
func (c *Controller) Degraded() bool {
	return c.AverageRatio() > c.cfg.LowThreshold
}

// QualityLevel is advisory output for renderers, in [MinQuality, MaxQuality].
func (c *Controller) QualityLevel() float64 {
	return c.quality
}

func (c *Controller) samples() int {
	if c.full {
		return len(c.ratios)
	}
	return c.next
}

package production

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/comalice/energyflow"
)

// MetricsSink exports tick events as Prometheus metrics.
type MetricsSink struct {
	energy       *prometheus.GaugeVec
	queueDepth   prometheus.Gauge
	quality      prometheus.Gauge
	degraded     prometheus.Gauge
	sessionState prometheus.Gauge
	ticks        prometheus.Counter
	failedTicks  prometheus.Counter
	tokens       prometheus.Counter
	skipped      *prometheus.CounterVec
	errors       *prometheus.CounterVec
	tickDuration prometheus.Histogram
}

// NewMetricsSink creates the collectors and registers them with reg.
func NewMetricsSink(reg prometheus.Registerer) (*MetricsSink, error) {
	m := &MetricsSink{
		energy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "energyflow_energy",
				Help: "Energy of the last tick by field (current, smoothed, accumulated, peak, rate)",
			},
			[]string{"field"},
		),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "energyflow_queue_depth",
			Help: "Batches waiting in the ingestion queue after the last drain",
		}),
		quality: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "energyflow_quality_level",
			Help: "Advisory quality level in [0.3, 1.0]",
		}),
		degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "energyflow_degraded",
			Help: "1 if non-critical tasks are being skipped, 0 otherwise",
		}),
		sessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "energyflow_session_state",
			Help: "Session state: 0 idle, 1 charging, 2 flowing, 3 stalling, 4 drained",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "energyflow_ticks_total",
			Help: "Ticks emitted",
		}),
		failedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "energyflow_failed_ticks_total",
			Help: "Ticks in which a critical task failed",
		}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "energyflow_tokens_total",
			Help: "Tokens converted to energy",
		}),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energyflow_skipped_tasks_total",
				Help: "Task executions skipped to stay within budget",
			},
			[]string{"task"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energyflow_error_events_total",
				Help: "Error events by code and severity",
			},
			[]string{"code", "severity"},
		),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "energyflow_tick_duration_seconds",
			Help:    "Time spent processing a tick",
			Buckets: []float64{.001, .0025, .005, .01, .0125, .015, .01667, .02, .025, .05, .1},
		}),
	}

	collectors := []prometheus.Collector{
		m.energy, m.queueDepth, m.quality, m.degraded, m.sessionState,
		m.ticks, m.failedTicks, m.tokens, m.skipped, m.errors, m.tickDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// Emit implements energyflow.Sink.
func (m *MetricsSink) Emit(ev energyflow.Event) error {
	switch e := ev.(type) {
	case *energyflow.TickEvent:
		m.energy.WithLabelValues("current").Set(e.Energy.Current)
		m.energy.WithLabelValues("smoothed").Set(e.Energy.Smoothed)
		m.energy.WithLabelValues("accumulated").Set(e.Energy.Accumulated)
		m.energy.WithLabelValues("peak").Set(e.Energy.Peak)
		m.energy.WithLabelValues("rate").Set(e.Energy.Rate)
		m.queueDepth.Set(float64(e.Queue.Depth))
		m.quality.Set(e.Performance.Quality)
		m.degraded.Set(float64(boolToInt(e.Performance.Degraded)))
		m.sessionState.Set(float64(e.SessionState))
		m.ticks.Inc()
		if e.Performance.Failed {
			m.failedTicks.Inc()
		}
		m.tokens.Add(float64(e.TokensProcessed))
		for _, name := range e.Performance.SkippedTasks {
			m.skipped.WithLabelValues(name).Inc()
		}
		m.tickDuration.Observe(e.Performance.TickDuration.Seconds())
	case *energyflow.ErrorEvent:
		m.errors.WithLabelValues(string(e.Code), string(e.Severity)).Inc()
	}
	return nil
}

// Command energyflowd runs the tick scheduler against synthetic token streams
// and exposes the result through logs, Prometheus metrics and an optional
// SQLite audit log.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/comalice/energyflow"
	"github.com/comalice/energyflow/internal/energy"
	"github.com/comalice/energyflow/internal/production"
	"github.com/comalice/energyflow/realtime"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "energyflowd: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return err
	}
	dc, err := loadDaemonConfig(fs)
	if err != nil {
		return err
	}

	logger, err := newLogger(dc.logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg := energyflow.DefaultConfig()
	if dc.configPath != "" {
		if cfg, err = energyflow.LoadConfig(dc.configPath); err != nil {
			return err
		}
	}

	factors := energy.NewFactorTable(cfg.Energy.ModelFactors)
	if dc.factorsPath != "" {
		if err := reloadFactors(factors, dc.factorsPath); err != nil {
			return err
		}
	}

	sched, err := realtime.NewScheduler(cfg,
		realtime.WithLogger(logger.Named("scheduler")),
		realtime.WithFactorTable(factors))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if dc.runFor > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, dc.runFor)
		defer stop()
	}

	// Reporting runs off the tick loop.
	events := make(chan energyflow.Event, 256)
	publisher := production.NewChannelPublisher(events)
	if err := sched.RegisterSink("report", publisher); err != nil {
		return err
	}
	var reporterDone sync.WaitGroup
	reporterDone.Add(1)
	last := &lastTick{}
	go func() {
		defer reporterDone.Done()
		report(logger.Named("report"), events, dc.reportEvery, last)
	}()

	if dc.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err := production.NewMetricsSink(reg)
		if err != nil {
			return err
		}
		if err := sched.RegisterSink("metrics", metrics); err != nil {
			return err
		}
		srv := serveMetrics(logger, dc.metricsAddr, reg)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var audit *production.AuditSink
	if dc.auditDB != "" {
		audit, err = production.OpenAuditSink(ctx, dc.auditDB, production.WithAuditLogger(logger.Named("audit")))
		if err != nil {
			return err
		}
		if err := sched.RegisterSink("audit", audit); err != nil {
			return err
		}
	}

	go watchReload(ctx, logger, sched, dc.factorsPath)

	sessionID := sched.StartSession()
	sched.StartPrompt(map[string]string{"source": "synthetic"})
	logger.Info("session opened", zap.String("session", sessionID), zap.Int("streams", dc.streams))

	// The loop outlives ctx so the final token is still processed.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	if err := sched.Start(loopCtx); err != nil {
		return err
	}

	var producers sync.WaitGroup
	sources := make([]*production.ChannelSource, dc.streams)
	for i := 0; i < dc.streams; i++ {
		gen := production.NewSyntheticSource(fmt.Sprintf("stream-%d", i), syntheticModels[i%len(syntheticModels)],
			25*time.Millisecond, 100, 700*time.Millisecond)
		defer gen.Stop()
		sources[i] = production.NewChannelSource(gen.Batches())
		producers.Add(1)
		go func(src *production.ChannelSource) {
			defer producers.Done()
			src.Forward(ctx, sched)
		}(sources[i])
	}

	<-ctx.Done()
	producers.Wait()

	sched.SignalFinalToken()
	time.Sleep(2 * sched.Budget())
	if err := sched.Stop(); err != nil {
		return err
	}

	stats := sched.Stats()
	logger.Info("scheduler stopped",
		zap.Uint64("ticks", stats.Ticks),
		zap.Uint64("overruns", stats.Overruns),
		zap.Uint64("failed_ticks", stats.FailedTicks),
		zap.Uint64("queue_merged", stats.Queue.Merged),
		zap.Uint64("queue_dropped", stats.Queue.Dropped),
		zap.Uint64("report_dropped", publisher.Dropped()),
		zap.Uint64("rejected_batches", rejectedBatches(sources)))

	_ = publisher.Close()
	reporterDone.Wait()

	vis := &production.DefaultVisualizer{}
	logger.Debug("session machine", zap.String("dot", vis.ExportDOT(sched.SessionState())))
	if ev := last.get(); ev != nil {
		if data, err := vis.ExportYAML(ev); err == nil {
			fmt.Print(string(data))
		}
	}

	if audit != nil {
		summarizeAudit(logger, audit)
		if err := audit.Close(); err != nil {
			return fmt.Errorf("close audit: %w", err)
		}
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}

func reloadFactors(table *energy.FactorTable, path string) error {
	factors, err := energy.LoadFactorTable(path)
	if err != nil {
		return err
	}
	return table.Swap(factors)
}

// watchReload hot-swaps the model factor table on SIGHUP.
func watchReload(ctx context.Context, logger *zap.Logger, sched *realtime.Scheduler, path string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if path == "" {
				logger.Warn("SIGHUP ignored, no model factor file configured")
				continue
			}
			factors, err := energy.LoadFactorTable(path)
			if err == nil {
				err = sched.SwapModelFactors(factors)
			}
			if err != nil {
				logger.Error("model factor reload failed", zap.String("path", path), zap.Error(err))
				continue
			}
			logger.Info("model factors reloaded", zap.String("path", path), zap.Int("models", len(factors)))
		}
	}
}

func serveMetrics(logger *zap.Logger, addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}

func summarizeAudit(logger *zap.Logger, audit *production.AuditSink) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := audit.Flush(ctx); err != nil {
		logger.Warn("audit flush failed", zap.Error(err))
		return
	}
	ticks, err := audit.TickCount(ctx)
	if err != nil {
		logger.Warn("audit count failed", zap.Error(err))
		return
	}
	totals, err := audit.SessionTotals(ctx)
	if err != nil {
		logger.Warn("audit totals failed", zap.Error(err))
		return
	}
	logger.Info("audit summary", zap.Int("ticks", ticks), zap.Any("session_energy", totals), zap.Uint64("dropped", audit.Dropped()))
}

var syntheticModels = []string{"llama2_7b", "codellama_13b", "mistral_7b", "mixtral_8x7b", "llama2_70b"}

func rejectedBatches(sources []*production.ChannelSource) uint64 {
	var n uint64
	for _, src := range sources {
		n += src.Rejected()
	}
	return n
}

type lastTick struct {
	mu sync.Mutex
	ev *energyflow.TickEvent
}

func (l *lastTick) set(ev *energyflow.TickEvent) {
	l.mu.Lock()
	l.ev = ev
	l.mu.Unlock()
}

func (l *lastTick) get() *energyflow.TickEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ev
}

func report(logger *zap.Logger, events <-chan energyflow.Event, every int, last *lastTick) {
	for ev := range events {
		switch e := ev.(type) {
		case *energyflow.ErrorEvent:
			logger.Warn("error event",
				zap.Uint64("seq", e.Seq),
				zap.String("code", string(e.Code)),
				zap.String("severity", string(e.Severity)),
				zap.String("task", e.Task),
				zap.String("message", e.Message))
		case *energyflow.TickEvent:
			last.set(e)
			if e.Seq%uint64(every) != 0 {
				continue
			}
			fields := []zap.Field{
				zap.Uint64("seq", e.Seq),
				zap.Stringer("state", e.SessionState),
				zap.Float64("energy", e.Energy.Current),
				zap.Float64("smoothed", e.Energy.Smoothed),
				zap.Float64("accumulated", e.Energy.Accumulated),
				zap.Int("tokens", e.TokensProcessed),
				zap.Int("queue_depth", e.Queue.Depth),
				zap.Duration("tick", e.Performance.TickDuration),
				zap.Float64("quality", e.Performance.Quality),
			}
			if e.Interference != nil {
				fields = append(fields, zap.String("interference", fmt.Sprintf("%s/%s %s %.2f",
					e.Interference.StreamA, e.Interference.StreamB, e.Interference.Kind, e.Interference.Correlation)))
			}
			if e.Resonance != nil {
				fields = append(fields, zap.Float64("resonance", e.Resonance.Intensity))
			}
			logger.Info("tick", fields...)
		}
	}
}

// Package benchmarks provides shared helpers for benchmark tests.
package benchmarks

import (
	"fmt"
	"time"

	"github.com/comalice/energyflow"
	"github.com/comalice/energyflow/realtime"
	"github.com/comalice/energyflow/testutil"
)

var benchEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var benchModels = []string{"llama2_7b", "llama2_13b", "codellama_7b", "mistral_7b", "mixtral_8x7b"}

// GenBatches creates n batches spread round-robin over streams.
func GenBatches(n, streams int, at time.Time) []energyflow.TokenBatch {
	if streams < 1 {
		streams = 1
	}
	out := make([]energyflow.TokenBatch, n)
	for i := range out {
		s := i % streams
		out[i] = energyflow.NewTokenBatch(
			at.Add(time.Duration(i)*time.Microsecond),
			fmt.Sprintf("stream-%d", s),
			benchModels[s%len(benchModels)],
			1+i%40,
			0.5+float64(i%20)/10,
			float64(i%120),
			nil,
		)
	}
	return out
}

// NewBenchScheduler builds a scheduler on a manual clock with no sinks.
func NewBenchScheduler(mutate func(*energyflow.Config)) (*realtime.Scheduler, *testutil.ManualClock, error) {
	cfg := energyflow.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	clock := testutil.NewManualClock(benchEpoch)
	s, err := realtime.NewScheduler(cfg, realtime.WithClock(clock))
	if err != nil {
		return nil, nil, err
	}
	return s, clock, nil
}

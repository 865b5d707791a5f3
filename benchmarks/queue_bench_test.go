package benchmarks

import (
	"testing"
	"time"

	"github.com/comalice/energyflow/internal/queue"
)

func BenchmarkQueueEnqueue(b *testing.B) {
	batches := GenBatches(1024, 8, benchEpoch)
	q := queue.New(1000, 100*time.Millisecond)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Enqueue(batches[i%len(batches)])
		if q.Len() == q.Capacity() {
			q.Drain(0)
		}
	}
}

// BenchmarkQueueOverflow keeps the queue full so every enqueue merges or drops.
func BenchmarkQueueOverflow(b *testing.B) {
	batches := GenBatches(1024, 8, benchEpoch)
	q := queue.New(64, 100*time.Millisecond)
	for _, batch := range batches[:64] {
		q.Enqueue(batch)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Enqueue(batches[i%len(batches)])
	}
	b.StopTimer()
	stats := q.Stats()
	b.ReportMetric(float64(stats.Merged)/float64(b.N), "merged/op")
	b.ReportMetric(float64(stats.Dropped)/float64(b.N), "dropped/op")
}

func BenchmarkQueueParallelEnqueue(b *testing.B) {
	batches := GenBatches(1024, 16, benchEpoch)
	q := queue.New(1000, 100*time.Millisecond)

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			q.Enqueue(batches[i%len(batches)])
			i++
		}
	})
}

func BenchmarkQueueDrain(b *testing.B) {
	batches := GenBatches(1000, 8, benchEpoch)
	q := queue.New(1000, 100*time.Millisecond)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		for _, batch := range batches {
			q.Enqueue(batch)
		}
		b.StartTimer()
		q.Drain(0)
	}
}

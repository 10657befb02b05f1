package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/feral-file/ff-options/internal/store"
	"github.com/feral-file/ff-options/internal/value"
)

// PhaseStats summarises one benchmark phase
type PhaseStats struct {
	Name        string
	Operations  int
	Failures    int
	Concurrency int
	StartTime   time.Time
	Duration    time.Duration
	P50         time.Duration
	P95         time.Duration
	P99         time.Duration
	Max         time.Duration
	FirstError  string
}

// opFunc runs the i-th operation of a phase
type opFunc func(ctx context.Context, i int) error

// runPhase runs n operations on a pool of the given size and records their latencies
func runPhase(ctx context.Context, name string, n int, concurrency int, op opFunc) *PhaseStats {
	stats := &PhaseStats{
		Name:        name,
		Operations:  n,
		Concurrency: concurrency,
		StartTime:   time.Now(),
	}

	latencies := make([]time.Duration, n)
	var (
		failures atomic.Int64
		firstErr atomic.Value
	)

	pool := pond.NewPool(concurrency, pond.WithContext(ctx))
	for i := range n {
		pool.Submit(func() {
			start := time.Now()
			if err := op(ctx, i); err != nil {
				failures.Add(1)
				firstErr.CompareAndSwap(nil, err.Error())
			}
			latencies[i] = time.Since(start)
		})
	}
	pool.StopAndWait()

	stats.Duration = time.Since(stats.StartTime)
	stats.Failures = int(failures.Load())
	if msg, ok := firstErr.Load().(string); ok {
		stats.FirstError = msg
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	stats.P50 = percentile(latencies, 50)
	stats.P95 = percentile(latencies, 95)
	stats.P99 = percentile(latencies, 99)
	if n > 0 {
		stats.Max = latencies[n-1]
	}
	return stats
}

// percentile returns the p-th percentile of sorted latencies using nearest rank
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// workload describes the option set a benchmark run writes and reads
type workload struct {
	keys      int
	valueSize int
	jsonRatio float64
}

func (w workload) key(i int) string {
	return fmt.Sprintf("bench_option_%06d", i%w.keys)
}

// value returns a string value, or a JSON object for the first jsonRatio share of keys
func (w workload) value(i int) value.Value {
	k := i % w.keys
	payload := strings.Repeat("x", w.valueSize)
	if float64(k) < w.jsonRatio*float64(w.keys) {
		return value.MustOf(map[string]any{
			"index":   k,
			"payload": payload,
			"tags":    []any{"bench", k%2 == 0},
		})
	}
	return value.String(payload)
}

// phase is one named batch of operations
type phase struct {
	name string
	n    int
	op   opFunc
}

// phases returns the benchmark phases in execution order
func phases(s store.OptionStore, w workload, ops int) []phase {
	autoload := true
	return []phase{
		{"insert", w.keys, func(ctx context.Context, i int) error {
			return s.Set(ctx, w.key(i), w.value(i), i%2 == 0)
		}},
		{"update", ops, func(ctx context.Context, i int) error {
			return s.Set(ctx, w.key(i), w.value(i+1), i%2 == 0)
		}},
		{"get", ops, func(ctx context.Context, i int) error {
			_, err := s.Get(ctx, w.key(i))
			return err
		}},
		{"exists", ops, func(ctx context.Context, i int) error {
			_, err := s.Exists(ctx, w.key(i))
			return err
		}},
		{"get_all_autoload", max(ops/100, 1), func(ctx context.Context, _ int) error {
			_, err := s.GetAll(ctx, &autoload)
			return err
		}},
		{"delete", w.keys, func(ctx context.Context, i int) error {
			_, err := s.Delete(ctx, w.key(i))
			return err
		}},
	}
}

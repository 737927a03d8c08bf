package scoreboard

import (
	"math"
	"time"

	"github.com/wesleyorama2/squall/internal/bench"
	"github.com/wesleyorama2/squall/internal/bench/sampling"
)

// Sentinels for an empty min/max. Accessors report 0 instead.
const (
	noMin = time.Duration(math.MaxInt64)
	noMax = time.Duration(-1)
)

// OperationSummary aggregates the results of one operation name.
// It is not safe for concurrent use.
type OperationSummary struct {
	Succeeded         int64
	Failed            int64
	Actions           int64
	Async             int64
	Sync              int64
	TotalResponseTime time.Duration

	minResponseTime time.Duration
	maxResponseTime time.Duration
	sampler         sampling.Strategy
}

// NewOperationSummary creates an empty summary backed by sampler.
func NewOperationSummary(sampler sampling.Strategy) *OperationSummary {
	if sampler == nil {
		sampler = sampling.Null{}
	}
	return &OperationSummary{
		minResponseTime: noMin,
		maxResponseTime: noMax,
		sampler:         sampler,
	}
}

// ProcessResult records one steady-state result.
func (s *OperationSummary) ProcessResult(r *bench.OperationExecution) {
	if r.Async {
		s.Async++
	} else {
		s.Sync++
	}

	if r.Failed {
		s.Failed++
		return
	}

	s.Succeeded++
	s.Actions += r.ActionsPerformed

	rt := r.ExecutionTime()
	s.TotalResponseTime += rt
	if rt < s.minResponseTime {
		s.minResponseTime = rt
	}
	if rt > s.maxResponseTime {
		s.maxResponseTime = rt
	}
	s.sampler.Accept(rt)
}

// MinResponseTime returns the fastest successful response, or 0 if none.
func (s *OperationSummary) MinResponseTime() time.Duration {
	if s.minResponseTime == noMin {
		return 0
	}
	return s.minResponseTime
}

// MaxResponseTime returns the slowest successful response, or 0 if none.
func (s *OperationSummary) MaxResponseTime() time.Duration {
	if s.maxResponseTime == noMax {
		return 0
	}
	return s.maxResponseTime
}

// AverageResponseTime is the mean over all successful responses, not only
// the sampled ones.
func (s *OperationSummary) AverageResponseTime() time.Duration {
	if s.Succeeded == 0 {
		return 0
	}
	return s.TotalResponseTime / time.Duration(s.Succeeded)
}

// Sampler returns the backing sampling strategy.
func (s *OperationSummary) Sampler() sampling.Strategy {
	return s.sampler
}

// Merge adds other's counters and samples to s. Merging the same source
// twice counts it twice.
func (s *OperationSummary) Merge(other *OperationSummary) {
	if other == nil {
		return
	}
	s.Succeeded += other.Succeeded
	s.Failed += other.Failed
	s.Actions += other.Actions
	s.Async += other.Async
	s.Sync += other.Sync
	s.TotalResponseTime += other.TotalResponseTime

	if other.minResponseTime < s.minResponseTime {
		s.minResponseTime = other.minResponseTime
	}
	if other.maxResponseTime > s.maxResponseTime {
		s.maxResponseTime = other.maxResponseTime
	}
	s.sampler.Merge(other.sampler)
}

// WaitTimeSummary aggregates the think and cycle times agents actually waited
// for one operation name.
type WaitTimeSummary struct {
	Count     int64
	TotalWait time.Duration

	minWait time.Duration
	maxWait time.Duration
	sampler sampling.Strategy
}

// NewWaitTimeSummary creates an empty summary backed by sampler.
func NewWaitTimeSummary(sampler sampling.Strategy) *WaitTimeSummary {
	if sampler == nil {
		sampler = sampling.Null{}
	}
	return &WaitTimeSummary{minWait: noMin, maxWait: noMax, sampler: sampler}
}

// Record adds one wait.
func (w *WaitTimeSummary) Record(wait time.Duration) {
	w.Count++
	w.TotalWait += wait
	if wait < w.minWait {
		w.minWait = wait
	}
	if wait > w.maxWait {
		w.maxWait = wait
	}
	w.sampler.Accept(wait)
}

// Statistics summarizes the recorded waits.
func (w *WaitTimeSummary) Statistics(name string) WaitTimeStatistics {
	stats := WaitTimeStatistics{
		Name:      name,
		Count:     w.Count,
		TotalWait: w.TotalWait,
		P90:       w.sampler.Percentile(90),
		P99:       w.sampler.Percentile(99),
	}
	if w.Count > 0 {
		stats.AverageWait = w.TotalWait / time.Duration(w.Count)
		stats.MinWait = w.minWait
		stats.MaxWait = w.maxWait
	}
	return stats
}

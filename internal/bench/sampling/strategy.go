// Package sampling provides bounded-memory samplers over response time
// streams.
//
// A Strategy sees every observation but may keep only some of them.
// Percentiles, mean and standard deviation are computed over the kept
// samples. Strategies are not safe for concurrent use; the scoreboard worker
// is their only writer.
package sampling

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Strategy is a sampler over a stream of durations.
type Strategy interface {
	// Accept offers one observation and reports whether it was kept.
	Accept(v time.Duration) bool

	// SamplesSeen returns the number of observations offered.
	SamplesSeen() int64

	// SamplesCollected returns the number of observations kept.
	SamplesCollected() int64

	// Percentile returns the nearest-rank percentile (0-100) of the kept samples.
	Percentile(pct float64) time.Duration

	Mean() time.Duration
	StdDev() time.Duration

	// RawSamples returns the kept samples. Strategies without raw storage return nil.
	RawSamples() []time.Duration

	// Merge folds other into this strategy. Samples from other are treated as
	// already thinned and are added without resampling.
	Merge(other Strategy)

	Reset()
}

// Kind selects a strategy implementation.
type Kind string

const (
	KindPoisson   Kind = "poisson"
	KindAll       Kind = "all"
	KindHistogram Kind = "histogram"
	KindNone      Kind = "none"
)

// ParseKind converts a configuration value to a Kind. An empty string selects
// the Poisson sampler.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return KindPoisson, nil
	case KindPoisson, KindAll, KindHistogram, KindNone:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown sampling strategy %q (expected poisson, all, histogram or none)", s)
	}
}

// reservoir keeps raw samples and computes statistics over them.
type reservoir struct {
	seen    int64
	samples []time.Duration
}

func (r *reservoir) SamplesSeen() int64 {
	return r.seen
}

func (r *reservoir) SamplesCollected() int64 {
	return int64(len(r.samples))
}

func (r *reservoir) RawSamples() []time.Duration {
	result := make([]time.Duration, len(r.samples))
	copy(result, r.samples)
	return result
}

func (r *reservoir) Percentile(pct float64) time.Duration {
	return percentile(r.samples, pct)
}

func (r *reservoir) Mean() time.Duration {
	if len(r.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range r.samples {
		sum += float64(s)
	}
	return time.Duration(sum / float64(len(r.samples)))
}

func (r *reservoir) StdDev() time.Duration {
	n := len(r.samples)
	if n < 2 {
		return 0
	}
	mean := float64(r.Mean())
	var sq float64
	for _, s := range r.samples {
		d := float64(s) - mean
		sq += d * d
	}
	return time.Duration(math.Sqrt(sq / float64(n-1)))
}

func (r *reservoir) merge(other Strategy) {
	if other == nil {
		return
	}
	r.seen += other.SamplesSeen()
	r.samples = append(r.samples, other.RawSamples()...)
}

func (r *reservoir) reset() {
	r.seen = 0
	r.samples = nil
}

// percentile returns the nearest-rank percentile of values without modifying them.
func percentile(values []time.Duration, pct float64) time.Duration {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]time.Duration, n)
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := int(math.Ceil(pct / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

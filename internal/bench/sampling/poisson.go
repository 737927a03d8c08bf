package sampling

import (
	"math"
	"math/rand"
	"time"
)

// Poisson keeps one observation per MeanInterval observations on average.
//
// The gaps between kept observations are drawn from an exponential
// distribution, so the kept set is an unbiased sample of the stream even when
// observations arrive in bursts. The first observation is always kept.
type Poisson struct {
	reservoir

	meanInterval float64
	next         int64
	rng          *rand.Rand
}

// NewPoisson creates a Poisson sampler with the given mean sampling interval.
// Intervals below 1 keep every observation.
func NewPoisson(meanInterval float64, rng *rand.Rand) *Poisson {
	if meanInterval < 1 {
		meanInterval = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Poisson{
		meanInterval: meanInterval,
		next:         1,
		rng:          rng,
	}
}

// MeanInterval returns the configured mean sampling interval.
func (p *Poisson) MeanInterval() float64 {
	return p.meanInterval
}

func (p *Poisson) Accept(v time.Duration) bool {
	p.seen++
	if p.seen != p.next {
		return false
	}
	p.samples = append(p.samples, v)

	step := int64(math.Ceil(p.rng.ExpFloat64() * p.meanInterval))
	if step < 1 {
		step = 1
	}
	p.next = p.seen + step
	return true
}

func (p *Poisson) Merge(other Strategy) {
	p.merge(other)
}

func (p *Poisson) Reset() {
	p.reset()
	p.next = 1
}

// All keeps every observation. Memory grows with the stream.
type All struct {
	reservoir
}

// NewAll creates a sampler that keeps everything.
func NewAll() *All {
	return &All{}
}

func (a *All) Accept(v time.Duration) bool {
	a.seen++
	a.samples = append(a.samples, v)
	return true
}

func (a *All) Merge(other Strategy) {
	a.merge(other)
}

func (a *All) Reset() {
	a.reset()
}

// Null satisfies Strategy without keeping or counting anything. It is used
// where sampling is disabled.
type Null struct{}

func (Null) Accept(time.Duration) bool        { return false }
func (Null) SamplesSeen() int64               { return 0 }
func (Null) SamplesCollected() int64          { return 0 }
func (Null) Percentile(float64) time.Duration { return 0 }
func (Null) Mean() time.Duration              { return 0 }
func (Null) StdDev() time.Duration            { return 0 }
func (Null) RawSamples() []time.Duration      { return nil }
func (Null) Merge(Strategy)                   {}
func (Null) Reset()                           {}

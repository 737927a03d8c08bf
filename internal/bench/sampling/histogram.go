package sampling

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Histogram range: 1 microsecond to 1 hour, 3 significant figures.
const (
	histogramMin     int64 = 1
	histogramMax     int64 = 3600000000
	histogramSigFigs       = 3
)

// Histogram records every observation into an HDR histogram. Memory is bounded
// by the value range instead of the stream length; percentiles are accurate to
// the configured significant figures. RawSamples returns nil.
type Histogram struct {
	hist *hdrhistogram.Histogram
}

// NewHistogram creates an empty histogram sampler.
func NewHistogram() *Histogram {
	return &Histogram{hist: hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs)}
}

func (h *Histogram) Accept(v time.Duration) bool {
	micros := v.Microseconds()
	if micros < histogramMin {
		micros = histogramMin
	}
	if micros > histogramMax {
		micros = histogramMax
	}
	return h.hist.RecordValue(micros) == nil
}

func (h *Histogram) SamplesSeen() int64 {
	return h.hist.TotalCount()
}

func (h *Histogram) SamplesCollected() int64 {
	return h.hist.TotalCount()
}

func (h *Histogram) Percentile(pct float64) time.Duration {
	if h.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(h.hist.ValueAtQuantile(pct)) * time.Microsecond
}

func (h *Histogram) Mean() time.Duration {
	if h.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(h.hist.Mean() * float64(time.Microsecond))
}

func (h *Histogram) StdDev() time.Duration {
	if h.hist.TotalCount() < 2 {
		return 0
	}
	return time.Duration(h.hist.StdDev() * float64(time.Microsecond))
}

func (h *Histogram) RawSamples() []time.Duration {
	return nil
}

// Merge adds other's recorded values. Another Histogram is merged bucket by
// bucket; any other strategy contributes its raw samples.
func (h *Histogram) Merge(other Strategy) {
	switch o := other.(type) {
	case nil:
	case *Histogram:
		h.hist.Merge(o.hist)
	default:
		for _, v := range o.RawSamples() {
			h.Accept(v)
		}
	}
}

func (h *Histogram) Reset() {
	h.hist.Reset()
}

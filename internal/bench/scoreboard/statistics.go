package scoreboard

import (
	"time"
)

// CardStatistics is the report view of a Scorecard.
type CardStatistics struct {
	Name     string        `json:"name"`
	TargetID string        `json:"targetId,omitempty"`
	Duration time.Duration `json:"duration"`

	// OfferedLoad is initiated operations per second.
	OfferedLoad float64 `json:"offeredLoad"`
	// EffectiveLoad is successful operations per second.
	EffectiveLoad float64 `json:"effectiveLoad"`

	TotalOpsInitiated   int64         `json:"totalOpsInitiated"`
	TotalOpsSuccessful  int64         `json:"totalOpsSuccessful"`
	TotalOpsFailed      int64         `json:"totalOpsFailed"`
	TotalOpsLate        int64         `json:"totalOpsLate"`
	TotalOpsAsync       int64         `json:"totalOpsAsync"`
	TotalOpsSync        int64         `json:"totalOpsSync"`
	TotalActions        int64         `json:"totalActions"`
	AverageResponseTime time.Duration `json:"averageResponseTime"`

	All        OperationStatistics   `json:"all"`
	Operations []OperationStatistics `json:"operations"`
}

// OperationStatistics is the report view of an OperationSummary.
type OperationStatistics struct {
	Name       string  `json:"name"`
	Succeeded  int64   `json:"succeeded"`
	Failed     int64   `json:"failed"`
	Actions    int64   `json:"actions"`
	Async      int64   `json:"async"`
	Sync       int64   `json:"sync"`
	Throughput float64 `json:"throughput"`

	AverageResponseTime time.Duration `json:"averageResponseTime"`
	MinResponseTime     time.Duration `json:"minResponseTime"`
	MaxResponseTime     time.Duration `json:"maxResponseTime"`

	// Sample statistics, computed over the sampled responses only.
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`

	SamplesSeen      int64 `json:"samplesSeen"`
	SamplesCollected int64 `json:"samplesCollected"`
}

// WaitTimeStatistics is the report view of a WaitTimeSummary.
type WaitTimeStatistics struct {
	Name        string        `json:"name"`
	Count       int64         `json:"count"`
	TotalWait   time.Duration `json:"totalWait"`
	AverageWait time.Duration `json:"averageWait"`
	MinWait     time.Duration `json:"minWait"`
	MaxWait     time.Duration `json:"maxWait"`
	P90         time.Duration `json:"p90"`
	P99         time.Duration `json:"p99"`
}

// DropOffStatistics describes the health of the result funnel. A large
// lock wait means the worker is falling behind the producers.
type DropOffStatistics struct {
	DropOffs          int64         `json:"dropOffs"`
	Rejected          int64         `json:"rejected"`
	Processed         int64         `json:"processed"`
	DiscardedRampUp   int64         `json:"discardedRampUp"`
	DiscardedRampDown int64         `json:"discardedRampDown"`
	Late              int64         `json:"late"`
	Abandoned         int64         `json:"abandoned"`
	TotalLockWait     time.Duration `json:"totalLockWait"`
	MaxLockWait       time.Duration `json:"maxLockWait"`
	AverageLockWait   time.Duration `json:"averageLockWait"`
	SnapshotsDropped  int64         `json:"snapshotsDropped"`
}

// TargetStatistics is the final report of one scoreboard.
type TargetStatistics struct {
	TargetID  string               `json:"targetId"`
	Final     CardStatistics       `json:"final"`
	Intervals []CardStatistics     `json:"intervals,omitempty"`
	WaitTimes []WaitTimeStatistics `json:"waitTimes,omitempty"`
	DropOff   DropOffStatistics    `json:"dropOff"`

	// Incomplete is set when the worker had not returned; the cards are empty.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Statistics computes the report view of the card.
func (c *Scorecard) Statistics() CardStatistics {
	stats := CardStatistics{
		Name:               c.Name,
		TargetID:           c.TargetID,
		Duration:           c.Duration,
		OfferedLoad:        perSecond(c.TotalOpsInitiated, c.Duration),
		EffectiveLoad:      perSecond(c.TotalOpsSuccessful, c.Duration),
		TotalOpsInitiated:  c.TotalOpsInitiated,
		TotalOpsSuccessful: c.TotalOpsSuccessful,
		TotalOpsFailed:     c.TotalOpsFailed,
		TotalOpsLate:       c.TotalOpsLate,
		TotalOpsAsync:      c.TotalOpsAsync,
		TotalOpsSync:       c.TotalOpsSync,
		TotalActions:       c.TotalActions,
		All:                c.all.Statistics(AllOperations, c.Duration),
	}
	if c.TotalOpsSuccessful > 0 {
		stats.AverageResponseTime = c.TotalResponseTime / time.Duration(c.TotalOpsSuccessful)
	}

	names := c.OperationNames()
	stats.Operations = make([]OperationStatistics, 0, len(names))
	for _, name := range names {
		stats.Operations = append(stats.Operations, c.operations[name].Statistics(name, c.Duration))
	}
	return stats
}

// Statistics computes the report view of the summary over a window.
func (s *OperationSummary) Statistics(name string, window time.Duration) OperationStatistics {
	return OperationStatistics{
		Name:                name,
		Succeeded:           s.Succeeded,
		Failed:              s.Failed,
		Actions:             s.Actions,
		Async:               s.Async,
		Sync:                s.Sync,
		Throughput:          perSecond(s.Succeeded, window),
		AverageResponseTime: s.AverageResponseTime(),
		MinResponseTime:     s.MinResponseTime(),
		MaxResponseTime:     s.MaxResponseTime(),
		Mean:                s.sampler.Mean(),
		StdDev:              s.sampler.StdDev(),
		P50:                 s.sampler.Percentile(50),
		P90:                 s.sampler.Percentile(90),
		P95:                 s.sampler.Percentile(95),
		P99:                 s.sampler.Percentile(99),
		SamplesSeen:         s.sampler.SamplesSeen(),
		SamplesCollected:    s.sampler.SamplesCollected(),
	}
}

func perSecond(count int64, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	return float64(count) / window.Seconds()
}

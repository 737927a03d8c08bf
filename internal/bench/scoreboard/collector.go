package scoreboard

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "squall_scoreboard"

var (
	dropOffsDesc = prometheus.NewDesc(
		metricPrefix+"_dropoffs_total",
		"Number of results accepted by the scoreboard.",
		[]string{"target"}, nil,
	)
	rejectedDesc = prometheus.NewDesc(
		metricPrefix+"_rejected_total",
		"Number of results refused because the scoreboard was stopping.",
		[]string{"target"}, nil,
	)
	processedDesc = prometheus.NewDesc(
		metricPrefix+"_processed_total",
		"Number of results processed by the worker, by classification.",
		[]string{"target", "label"}, nil,
	)
	lockWaitDesc = prometheus.NewDesc(
		metricPrefix+"_lock_wait_seconds_total",
		"Total time producers waited for the dropoff lock.",
		[]string{"target"}, nil,
	)
	lockWaitMaxDesc = prometheus.NewDesc(
		metricPrefix+"_lock_wait_max_seconds",
		"Longest time a producer waited for the dropoff lock.",
		[]string{"target"}, nil,
	)
	backlogDesc = prometheus.NewDesc(
		metricPrefix+"_backlog",
		"Results accepted but not yet processed.",
		[]string{"target"}, nil,
	)
)

// Collector exposes a scoreboard's funnel health to prometheus.
type Collector struct {
	scoreboards []*Scoreboard
}

// NewCollector creates a collector over the given scoreboards.
func NewCollector(scoreboards ...*Scoreboard) *Collector {
	return &Collector{scoreboards: scoreboards}
}

// Collector returns a prometheus collector for this scoreboard.
func (s *Scoreboard) Collector() *Collector {
	return NewCollector(s)
}

func (c *Collector) Describe(desc chan<- *prometheus.Desc) {
	desc <- dropOffsDesc
	desc <- rejectedDesc
	desc <- processedDesc
	desc <- lockWaitDesc
	desc <- lockWaitMaxDesc
	desc <- backlogDesc
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	for _, s := range c.scoreboards {
		stats := s.DropOffStatistics()
		target := s.targetID

		metrics <- prometheus.MustNewConstMetric(dropOffsDesc, prometheus.CounterValue, float64(stats.DropOffs), target)
		metrics <- prometheus.MustNewConstMetric(rejectedDesc, prometheus.CounterValue, float64(stats.Rejected), target)

		steady := stats.Processed - stats.Late - stats.DiscardedRampUp - stats.DiscardedRampDown
		metrics <- prometheus.MustNewConstMetric(processedDesc, prometheus.CounterValue, float64(steady), target, "steady-state")
		metrics <- prometheus.MustNewConstMetric(processedDesc, prometheus.CounterValue, float64(stats.Late), target, "late")
		metrics <- prometheus.MustNewConstMetric(processedDesc, prometheus.CounterValue, float64(stats.DiscardedRampUp), target, "ramp-up")
		metrics <- prometheus.MustNewConstMetric(processedDesc, prometheus.CounterValue, float64(stats.DiscardedRampDown), target, "ramp-down")

		metrics <- prometheus.MustNewConstMetric(lockWaitDesc, prometheus.CounterValue, stats.TotalLockWait.Seconds(), target)
		metrics <- prometheus.MustNewConstMetric(lockWaitMaxDesc, prometheus.GaugeValue, stats.MaxLockWait.Seconds(), target)
		metrics <- prometheus.MustNewConstMetric(backlogDesc, prometheus.GaugeValue, float64(stats.DropOffs-stats.Processed), target)
	}
}

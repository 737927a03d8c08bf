package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wesleyorama2/squall/internal/bench/scoreboard"
)

const metricPrefix = "squall"

var (
	activeAgentsDesc = prometheus.NewDesc(
		metricPrefix+"_agents_active",
		"Number of agents currently issuing operations.",
		[]string{"target"}, nil,
	)
	scheduleUsersDesc = prometheus.NewDesc(
		metricPrefix+"_schedule_users",
		"Number of users of the load definition in effect.",
		[]string{"target"}, nil,
	)
	loadCyclesDesc = prometheus.NewDesc(
		metricPrefix+"_schedule_cycles_total",
		"Number of completed passes over the load schedule.",
		[]string{"target"}, nil,
	)
	asyncInFlightDesc = prometheus.NewDesc(
		metricPrefix+"_async_in_flight",
		"Asynchronous operations submitted and not yet finished.",
		[]string{"target"}, nil,
	)
)

// Collector exposes the state of the engine's targets to prometheus. Targets
// are looked up at scrape time, so it can be registered before Run.
type Collector struct {
	engine *Engine
}

// Collector returns a prometheus collector over the engine's targets.
func (e *Engine) Collector() *Collector {
	return &Collector{engine: e}
}

func (c *Collector) Describe(desc chan<- *prometheus.Desc) {
	desc <- activeAgentsDesc
	desc <- scheduleUsersDesc
	desc <- loadCyclesDesc
	desc <- asyncInFlightDesc
	scoreboard.NewCollector().Describe(desc)
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.engine.mu.RLock()
	targets := c.engine.targets
	c.engine.mu.RUnlock()

	scoreboards := make([]*scoreboard.Scoreboard, 0, len(targets))
	for _, t := range targets {
		p := t.Progress()
		metrics <- prometheus.MustNewConstMetric(activeAgentsDesc, prometheus.GaugeValue, float64(p.ActiveAgents), t.Name)
		metrics <- prometheus.MustNewConstMetric(scheduleUsersDesc, prometheus.GaugeValue, float64(p.Users), t.Name)
		metrics <- prometheus.MustNewConstMetric(loadCyclesDesc, prometheus.CounterValue, float64(p.Cycles), t.Name)
		metrics <- prometheus.MustNewConstMetric(asyncInFlightDesc, prometheus.GaugeValue, float64(p.AsyncInFlight), t.Name)
		scoreboards = append(scoreboards, t.Scoreboard())
	}
	scoreboard.NewCollector(scoreboards...).Collect(metrics)
}

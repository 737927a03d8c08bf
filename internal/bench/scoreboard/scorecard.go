package scoreboard

import (
	"sort"
	"time"

	"github.com/wesleyorama2/squall/internal/bench"
	"github.com/wesleyorama2/squall/internal/bench/sampling"
)

// AllOperations is the summary name covering every operation of a card.
const AllOperations = "*"

// Scorecard aggregates results for a target, an interval of a target or a
// group of merged cards.
//
// A scorecard has a single writer: the scoreboard worker while the run is
// going, or the caller merging cards afterwards. It has no internal locking.
type Scorecard struct {
	Name     string
	TargetID string

	// Duration is the measurement window used to turn counts into rates.
	Duration time.Duration

	TotalOpsInitiated  int64
	TotalOpsSuccessful int64
	TotalOpsFailed     int64
	TotalOpsLate       int64
	TotalOpsAsync      int64
	TotalOpsSync       int64
	TotalActions       int64
	TotalResponseTime  time.Duration

	all        *OperationSummary
	operations map[string]*OperationSummary
	newSampler sampling.Factory
}

// NewScorecard creates an empty scorecard. newSampler builds the sampling
// strategy of each operation summary; nil disables sampling.
func NewScorecard(name, targetID string, duration time.Duration, newSampler sampling.Factory) *Scorecard {
	if newSampler == nil {
		newSampler = func() sampling.Strategy { return sampling.Null{} }
	}
	return &Scorecard{
		Name:       name,
		TargetID:   targetID,
		Duration:   duration,
		all:        NewOperationSummary(newSampler()),
		operations: make(map[string]*OperationSummary),
		newSampler: newSampler,
	}
}

// ProcessResult counts one steady-state result. Successful results feed the
// response time statistics of their operation and of the card.
func (c *Scorecard) ProcessResult(r *bench.OperationExecution) {
	c.TotalOpsInitiated++
	if r.Async {
		c.TotalOpsAsync++
	} else {
		c.TotalOpsSync++
	}

	if r.Failed {
		c.TotalOpsFailed++
	} else {
		c.TotalOpsSuccessful++
		c.TotalActions += r.ActionsPerformed
		c.TotalResponseTime += r.ExecutionTime()
	}

	c.all.ProcessResult(r)
	c.summary(r.OperationName).ProcessResult(r)
}

// ProcessLateOperation counts a result that finished after its window. Late
// results count as initiated but contribute nothing else.
func (c *Scorecard) ProcessLateOperation(*bench.OperationExecution) {
	c.TotalOpsInitiated++
	c.TotalOpsLate++
}

// Merge adds other's counters and operation summaries to c. The measurement
// window becomes the longer of the two, since merged cards describe
// concurrent targets.
func (c *Scorecard) Merge(other *Scorecard) {
	if other == nil {
		return
	}
	if other.Duration > c.Duration {
		c.Duration = other.Duration
	}

	c.TotalOpsInitiated += other.TotalOpsInitiated
	c.TotalOpsSuccessful += other.TotalOpsSuccessful
	c.TotalOpsFailed += other.TotalOpsFailed
	c.TotalOpsLate += other.TotalOpsLate
	c.TotalOpsAsync += other.TotalOpsAsync
	c.TotalOpsSync += other.TotalOpsSync
	c.TotalActions += other.TotalActions
	c.TotalResponseTime += other.TotalResponseTime

	c.all.Merge(other.all)
	for name, summary := range other.operations {
		c.summary(name).Merge(summary)
	}
}

// Operation returns the summary of one operation name, or nil.
func (c *Scorecard) Operation(name string) *OperationSummary {
	if name == AllOperations {
		return c.all
	}
	return c.operations[name]
}

// OperationNames returns the operation names seen, sorted.
func (c *Scorecard) OperationNames() []string {
	names := make([]string, 0, len(c.operations))
	for name := range c.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Scorecard) summary(name string) *OperationSummary {
	s, ok := c.operations[name]
	if !ok {
		s = NewOperationSummary(c.newSampler())
		c.operations[name] = s
	}
	return s
}

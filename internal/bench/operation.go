package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/wesleyorama2/squall/internal/bench/load"
)

// Operation is one unit of work produced by a Generator.
type Operation interface {
	// Name identifies the operation type in statistics.
	Name() string

	// Index is the position of the operation in the generator's mix.
	Index() int

	// Request describes the request, for metric records and logs.
	Request() string

	// Prepare readies the operation right before execution.
	Prepare() error

	// Execute performs the work. A returned error marks the operation failed.
	Execute(ctx context.Context) error
}

// ActionCounter is implemented by operations that perform more than one
// action (for example several requests) per execution.
type ActionCounter interface {
	ActionsPerformed() int64
}

// OperationExecution is the record of one finished operation. It is built
// once by Invocation.Run and handed to a ResultSink; only TraceLabel is set
// afterwards, by the scoreboard.
type OperationExecution struct {
	OperationName  string
	Request        string
	OperationIndex int

	TimeStarted  time.Time
	TimeFinished time.Time

	Async  bool
	Failed bool
	Error  string

	// LoadDefinition was in effect when the operation was generated.
	LoadDefinition   *load.Definition
	ProfileStartTime time.Time

	ActionsPerformed int64
	AgentID          int
	TargetID         string

	TraceLabel TraceLabel
}

// ExecutionTime is the measured response time.
func (e *OperationExecution) ExecutionTime() time.Duration {
	return e.TimeFinished.Sub(e.TimeStarted)
}

// IntervalName returns the name of the generating load definition, or "".
func (e *OperationExecution) IntervalName() string {
	if e.LoadDefinition == nil {
		return ""
	}
	return e.LoadDefinition.Name
}

// ResultSink receives finished operations and agent wait times. The
// scoreboard is the production implementation.
type ResultSink interface {
	DropOffOperation(result *OperationExecution)
	DropOffWaitTime(at time.Time, operationName string, wait time.Duration)
}

// Invocation binds an operation to the context it was generated in.
type Invocation struct {
	Operation      Operation
	LoadDefinition *load.Definition
	Async          bool
	AgentID        int
	TargetID       string

	// ProfileStartTime is the activation of LoadDefinition the operation
	// belongs to; zero if the definition was not yet active.
	ProfileStartTime time.Time
}

// Run prepares and executes the operation, measures it and reports exactly
// one OperationExecution to sink. Errors and panics from the operation are
// captured in the record and never escape.
func (inv *Invocation) Run(ctx context.Context, sink ResultSink) *OperationExecution {
	result := &OperationExecution{
		OperationName:  inv.Operation.Name(),
		Request:        inv.Operation.Request(),
		OperationIndex: inv.Operation.Index(),
		Async:          inv.Async,
		LoadDefinition: inv.LoadDefinition,
		AgentID:        inv.AgentID,
		TargetID:       inv.TargetID,

		ProfileStartTime: inv.ProfileStartTime,
	}

	result.TimeStarted = time.Now()
	err := inv.execute(ctx)
	result.TimeFinished = time.Now()

	if err != nil {
		result.Failed = true
		result.Error = err.Error()
	}

	result.ActionsPerformed = 1
	if counter, ok := inv.Operation.(ActionCounter); ok {
		result.ActionsPerformed = counter.ActionsPerformed()
	}

	if sink != nil {
		sink.DropOffOperation(result)
	}
	return result
}

func (inv *Invocation) execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation %s panicked: %v", inv.Operation.Name(), r)
		}
	}()

	if err := inv.Operation.Prepare(); err != nil {
		return fmt.Errorf("prepare %s: %w", inv.Operation.Name(), err)
	}
	return inv.Operation.Execute(ctx)
}

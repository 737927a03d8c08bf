package bench

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/squall/internal/bench/load"
	"github.com/wesleyorama2/squall/internal/bench/rate"
)

// AgentState represents the lifecycle state of an Agent.
type AgentState int32

const (
	// AgentStateInitialized indicates the agent was created but has not run yet.
	AgentStateInitialized AgentState = iota
	// AgentStateActive indicates the agent is issuing operations.
	AgentStateActive
	// AgentStateInactive indicates the agent is parked because its id is not
	// covered by the current number of users.
	AgentStateInactive
	// AgentStateStopping indicates the agent has been requested to stop.
	AgentStateStopping
	// AgentStateStopped indicates the agent loop has returned.
	AgentStateStopped
)

func (s AgentState) String() string {
	switch s {
	case AgentStateInitialized:
		return "initialized"
	case AgentStateActive:
		return "active"
	case AgentStateInactive:
		return "inactive"
	case AgentStateStopping:
		return "stopping"
	case AgentStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// DefaultInactivityQuantum is how long an inactive agent sleeps before it
// checks the load definition again.
const DefaultInactivityQuantum = time.Second

const minIdlePause = 10 * time.Millisecond

// IsActive reports whether agent id takes part under load definition d.
// Agent ids are dense from 0, so raising the number of users only ever adds
// agents and lowering it only ever parks them.
func IsActive(id int, d *load.Definition) bool {
	return d != nil && id < d.NumberOfUsers
}

// AgentConfig configures one Agent.
type AgentConfig struct {
	// ID is the virtual user slot, 0..maxUsers-1.
	ID       int
	TargetID string
	Timing   Timing

	// OpenLoopProbability is the chance that an operation is submitted
	// asynchronously instead of executed inline.
	OpenLoopProbability float64

	// InactivityQuantum overrides DefaultInactivityQuantum when > 0.
	InactivityQuantum time.Duration

	Seed   int64
	Logger *zap.Logger
}

// Agent is one virtual user. It runs a loop on its own goroutine that pulls
// operations from its Generator and executes them inline (closed loop) or
// submits them to the shared AsyncPool (open loop), choosing per operation.
//
// Agents are created once for the largest number of users in the schedule.
// Scaling up and down happens by parking agents, not by creating and
// destroying goroutines.
type Agent struct {
	id                  int
	targetID            string
	timing              Timing
	openLoopProbability float64
	quantum             time.Duration

	generator Generator
	profiles  LoadProfiler
	sink      ResultSink
	pool      *AsyncPool
	pacer     *rate.Pacer
	logger    *zap.Logger
	rng       *rand.Rand
	now       func() time.Time

	// Lifecycle state (atomic for lock-free reads)
	state  atomic.Int32
	stopCh chan struct{}
	doneCh chan struct{}

	lastOperationIndex int

	issued          atomic.Int64
	syncOps         atomic.Int64
	asyncOps        atomic.Int64
	generatorErrors atomic.Int64
	inactivePolls   atomic.Int64
}

// NewAgent creates an agent.
//
// Parameters:
//   - cfg: Identity, timing and dispatch settings
//   - generator: The agent's own generator, already initialized
//   - profiles: Source of the current load definition
//   - sink: Receives finished operations and wait times
//   - pool: Shared pool for asynchronous operations
func NewAgent(cfg AgentConfig, generator Generator, profiles LoadProfiler, sink ResultSink, pool *AsyncPool) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	quantum := cfg.InactivityQuantum
	if quantum <= 0 {
		quantum = DefaultInactivityQuantum
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano() + int64(cfg.ID)
	}

	return &Agent{
		id:                  cfg.ID,
		targetID:            cfg.TargetID,
		timing:              cfg.Timing,
		openLoopProbability: cfg.OpenLoopProbability,
		quantum:             quantum,
		generator:           generator,
		profiles:            profiles,
		sink:                sink,
		pool:                pool,
		pacer:               rate.NewPacer(),
		logger:              logger.With(zap.Int("agent", cfg.ID)),
		rng:                 rand.New(rand.NewSource(seed)),
		now:                 time.Now,
		stopCh:              make(chan struct{}),
		doneCh:              make(chan struct{}),
		lastOperationIndex:  -1,
	}
}

// ID returns the agent's slot.
func (a *Agent) ID() int {
	return a.id
}

// GetState returns the current agent state.
func (a *Agent) GetState() AgentState {
	return AgentState(a.state.Load())
}

// Run executes the agent loop until the run ends, RequestStop is called or
// ctx is cancelled. All three are normal terminations.
func (a *Agent) Run(ctx context.Context) {
	defer a.markStopped()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("agent loop stopped by unexpected error", zap.Any("panic", r))
		}
	}()

	if !a.sleep(ctx, a.timing.Start.Sub(a.now())) {
		return
	}

	for {
		if a.stopping(ctx) {
			return
		}
		if a.now().After(a.timing.EndRun) {
			a.logger.Debug("run ended")
			return
		}

		profile := a.profiles.CurrentProfile()
		if !IsActive(a.id, profile.Definition) {
			a.transition(AgentStateInactive)
			a.inactivePolls.Add(1)
			if !a.sleep(ctx, a.quantum) {
				return
			}
			continue
		}

		a.transition(AgentStateActive)
		if !a.step(ctx, profile) {
			return
		}
	}
}

// step issues one operation. It returns false if the agent was interrupted.
func (a *Agent) step(ctx context.Context, profile load.Profile) bool {
	op, err := a.nextOperation(profile.Definition)
	if err != nil {
		a.generatorErrors.Add(1)
		a.logger.Warn("generator failed", zap.Error(err))
		return a.idle(ctx)
	}
	if op == nil {
		return a.idle(ctx)
	}

	inv := &Invocation{
		Operation:        op,
		LoadDefinition:   profile.Definition,
		AgentID:          a.id,
		TargetID:         a.targetID,
		ProfileStartTime: profile.Started,
	}
	a.issued.Add(1)
	a.lastOperationIndex = op.Index()

	if a.rng.Float64() < a.openLoopProbability {
		return a.runAsync(ctx, inv, profile.Definition)
	}
	return a.runSync(ctx, inv)
}

func (a *Agent) runSync(ctx context.Context, inv *Invocation) bool {
	a.syncOps.Add(1)
	result := inv.Run(ctx, a.sink)
	if result.Failed {
		a.logger.Debug("operation failed", zap.String("operation", result.OperationName), zap.String("error", result.Error))
	}

	now := a.now()
	wait, ok := a.waitFor(ctx, a.generator.ThinkTime())
	a.sink.DropOffWaitTime(now, inv.Operation.Name(), wait)
	return ok
}

func (a *Agent) runAsync(ctx context.Context, inv *Invocation, profile *load.Definition) bool {
	a.asyncOps.Add(1)
	inv.Async = true

	now := a.now()
	wait, ok := a.waitFor(ctx, a.generator.CycleTime())
	a.sink.DropOffWaitTime(now, inv.Operation.Name(), wait)
	if !ok {
		return false
	}

	if limit := profile.OpenLoopMaxOpsPerSec; limit > 0 {
		pacerCtx, cancel := a.interruptible(ctx)
		err := a.pacer.Wait(pacerCtx, float64(limit), profile.NumberOfUsers)
		cancel()
		if err != nil {
			return false
		}
	}

	if !a.pool.Submit(inv) {
		a.logger.Debug("async pool closed, dropping operation", zap.String("operation", inv.Operation.Name()))
	}
	return true
}

// nextOperation asks the generator for work under profile. A panicking
// generator is reported as an error.
func (a *Agent) nextOperation(profile *load.Definition) (op Operation, err error) {
	defer func() {
		if r := recover(); r != nil {
			op = nil
			err = &GeneratorPanic{Value: r}
		}
	}()
	return a.generator.NextRequest(a.lastOperationIndex, profile)
}

// idle pauses after the generator produced nothing, for at least
// minIdlePause so a generator without think time cannot spin the loop.
func (a *Agent) idle(ctx context.Context) bool {
	d := a.generator.ThinkTime()
	if d < minIdlePause {
		d = minIdlePause
	}
	_, ok := a.waitFor(ctx, d)
	return ok
}

// waitFor sleeps for d. A wait that would run past the end of the run is cut
// to the end of the run, or to steady-state start if the agent is still
// ramping up. It returns the wait actually planned and false if the agent was
// interrupted.
func (a *Agent) waitFor(ctx context.Context, d time.Duration) (time.Duration, bool) {
	if d < 0 {
		d = 0
	}
	now := a.now()
	wake := now.Add(d)

	if wake.After(a.timing.EndRun) {
		if now.Before(a.timing.StartSteadyState) {
			wake = a.timing.StartSteadyState
		} else {
			wake = a.timing.EndRun
		}
	}

	wait := wake.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait, a.sleep(ctx, wait)
}

// sleep waits for d or until the agent is interrupted.
func (a *Agent) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !a.stopping(ctx)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-a.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (a *Agent) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-a.stopCh:
		return true
	default:
		return false
	}
}

// interruptible derives a context that also ends when the agent is stopped.
// The caller must call the returned cancel function.
func (a *Agent) interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-ctx.Done():
		case <-a.stopCh:
			cancel()
		}
	}()
	return ctx, cancel
}

// transition moves between running states. Once stopping, the state is final.
func (a *Agent) transition(to AgentState) {
	for {
		current := a.state.Load()
		if AgentState(current) >= AgentStateStopping || AgentState(current) == to {
			return
		}
		if a.state.CompareAndSwap(current, int32(to)) {
			return
		}
	}
}

// RequestStop signals the agent to stop. Any pending sleep is interrupted.
func (a *Agent) RequestStop() {
	for {
		current := a.state.Load()
		if AgentState(current) >= AgentStateStopping {
			return
		}
		if a.state.CompareAndSwap(current, int32(AgentStateStopping)) {
			close(a.stopCh)
			return
		}
	}
}

// WaitForStop waits for the agent loop to return.
//
// Returns true if the agent stopped within the timeout, false otherwise.
func (a *Agent) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-a.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// Done is closed when the agent loop has returned.
func (a *Agent) Done() <-chan struct{} {
	return a.doneCh
}

func (a *Agent) markStopped() {
	a.state.Store(int32(AgentStateStopped))
	close(a.doneCh)
}

// Stats returns counters describing what the agent did.
func (a *Agent) Stats() AgentStats {
	return AgentStats{
		ID:               a.id,
		State:            a.GetState().String(),
		OperationsIssued: a.issued.Load(),
		SyncOperations:   a.syncOps.Load(),
		AsyncOperations:  a.asyncOps.Load(),
		GeneratorErrors:  a.generatorErrors.Load(),
		InactivePolls:    a.inactivePolls.Load(),
		Pacer:            a.pacer.Stats(),
	}
}

// AgentStats contains per-agent counters.
type AgentStats struct {
	ID               int             `json:"id"`
	State            string          `json:"state"`
	OperationsIssued int64           `json:"operationsIssued"`
	SyncOperations   int64           `json:"syncOperations"`
	AsyncOperations  int64           `json:"asyncOperations"`
	GeneratorErrors  int64           `json:"generatorErrors"`
	InactivePolls    int64           `json:"inactivePolls"`
	Pacer            rate.PacerStats `json:"pacer"`
}

// GeneratorPanic wraps a value recovered from a panicking generator.
type GeneratorPanic struct {
	Value interface{}
}

func (p *GeneratorPanic) Error() string {
	return fmt.Sprintf("generator panicked: %v", p.Value)
}

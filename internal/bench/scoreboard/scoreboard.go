// Package scoreboard funnels every finished operation of a target into its
// scorecards.
package scoreboard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/wesleyorama2/squall/internal/bench"
	"github.com/wesleyorama2/squall/internal/bench/metricwriter"
	"github.com/wesleyorama2/squall/internal/bench/sampling"
)

// FinalCard is the name of the scorecard covering the whole steady state.
const FinalCard = "final"

// DefaultBackoff is how long the worker sleeps when there is nothing to drain.
const DefaultBackoff = 50 * time.Millisecond

// SnapshotSink receives per-sample records. *metricwriter.SnapshotWriter
// implements it.
type SnapshotSink interface {
	Accept(stat metricwriter.ResponseTimeStat) bool
	Stop(timeout time.Duration) error
}

// Scoreboard is the single funnel for results of one target.
//
// # Double buffering
//
// Producers append to the dropOff slice under swapMu. The worker takes the
// same lock only to swap dropOff with its (empty) processing slice, then
// drains processing without holding any lock. The producer critical section
// is therefore O(1) regardless of how far behind the worker is.
//
// The done flag is read and written under swapMu as well: a dropoff is either
// refused because done is set, or it is in dropOff before the worker can
// observe done together with an empty dropOff. Accepted results are never
// lost.
//
// # Thread Safety
//
// DropOffOperation and DropOffWaitTime are safe for concurrent use. All
// scorecard mutation happens on the worker goroutine; the cards and
// Statistics may only be read after Stop has returned.
type Scoreboard struct {
	targetID   string
	runID      string
	timing     bench.Timing
	logger     *zap.Logger
	newSampler sampling.Factory
	newWaiter  sampling.Factory
	backoff    time.Duration
	snapshots  SnapshotSink

	swapMu     sync.Mutex
	dropOff    []*bench.OperationExecution
	processing []*bench.OperationExecution
	done       bool
	started    bool

	// Worker-owned
	final     *Scorecard
	intervals map[string]*intervalCard

	waitMu sync.Mutex
	waits  map[string]*WaitTimeSummary

	workerCtx    context.Context
	workerCancel context.CancelFunc
	workerDone   chan struct{}

	// Health
	dropOffs          atomic.Int64
	rejected          atomic.Int64
	processed         atomic.Int64
	discardedRampUp   atomic.Int64
	discardedRampDown atomic.Int64
	late              atomic.Int64
	abandoned         atomic.Int64
	lockWaitTotal     atomic.Int64 // nanoseconds
	lockWaitMax       atomic.Int64 // nanoseconds
}

// intervalCard tracks a named interval's card and how often that interval
// was active, which sets the card's measurement window.
type intervalCard struct {
	card     *Scorecard
	interval time.Duration
	starts   map[int64]struct{}
}

// Option configures a Scoreboard.
type Option func(*Scoreboard)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scoreboard) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSampling sets the response time sampling strategy factory.
func WithSampling(f sampling.Factory) Option {
	return func(s *Scoreboard) {
		if f != nil {
			s.newSampler = f
		}
	}
}

// WithWaitTimeSampling sets the wait time sampling strategy factory.
func WithWaitTimeSampling(f sampling.Factory) Option {
	return func(s *Scoreboard) {
		if f != nil {
			s.newWaiter = f
		}
	}
}

// WithBackoff sets the worker's idle sleep.
func WithBackoff(d time.Duration) Option {
	return func(s *Scoreboard) {
		if d > 0 {
			s.backoff = d
		}
	}
}

// WithSnapshots emits a record for every successful steady-state result.
func WithSnapshots(sink SnapshotSink) Option {
	return func(s *Scoreboard) {
		s.snapshots = sink
	}
}

// WithRunID tags emitted records with the run id.
func WithRunID(id string) Option {
	return func(s *Scoreboard) {
		s.runID = id
	}
}

// New creates a scoreboard for one target. Results are classified against
// timing.
func New(targetID string, timing bench.Timing, opts ...Option) *Scoreboard {
	s := &Scoreboard{
		targetID:   targetID,
		timing:     timing,
		logger:     zap.NewNop(),
		newSampler: sampling.NewFactory(sampling.KindPoisson, 500, time.Now().UnixNano()),
		newWaiter:  func() sampling.Strategy { return sampling.Null{} },
		backoff:    DefaultBackoff,
		intervals:  make(map[string]*intervalCard),
		waits:      make(map[string]*WaitTimeSummary),
		workerDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("target", targetID), zap.String("component", "scoreboard"))
	s.final = NewScorecard(FinalCard, targetID, timing.SteadyStateDuration(), s.newSampler)
	s.workerCtx, s.workerCancel = context.WithCancel(context.Background())
	return s
}

// Start launches the worker goroutine. Calling Start twice has no effect.
func (s *Scoreboard) Start() {
	s.swapMu.Lock()
	defer s.swapMu.Unlock()
	if s.started || s.done {
		return
	}
	s.started = true
	go s.run()
}

// DropOffOperation classifies a finished operation and queues it for the
// worker. It is a no-op once Stop has been called.
func (s *Scoreboard) DropOffOperation(r *bench.OperationExecution) {
	if r == nil {
		return
	}
	r.TraceLabel = s.timing.Classify(r.TimeStarted, r.TimeFinished)

	lockStart := time.Now()
	s.swapMu.Lock()
	lockWait := time.Since(lockStart)
	if s.done {
		s.swapMu.Unlock()
		s.rejected.Add(1)
		return
	}
	s.dropOff = append(s.dropOff, r)
	s.swapMu.Unlock()

	s.dropOffs.Add(1)
	s.recordLockWait(lockWait)
}

// DropOffWaitTime records a wait an agent took before or after an operation.
// Only waits inside the steady state are recorded.
func (s *Scoreboard) DropOffWaitTime(at time.Time, operationName string, wait time.Duration) {
	if !s.timing.InSteadyState(at) {
		return
	}

	s.waitMu.Lock()
	defer s.waitMu.Unlock()

	summary, ok := s.waits[operationName]
	if !ok {
		summary = NewWaitTimeSummary(s.newWaiter())
		s.waits[operationName] = summary
	}
	summary.Record(wait)
}

func (s *Scoreboard) recordLockWait(wait time.Duration) {
	ns := int64(wait)
	s.lockWaitTotal.Add(ns)
	for {
		current := s.lockWaitMax.Load()
		if ns <= current || s.lockWaitMax.CompareAndSwap(current, ns) {
			return
		}
	}
}

// run is the worker loop.
func (s *Scoreboard) run() {
	defer close(s.workerDone)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scoreboard worker stopped by unexpected error", zap.Any("panic", r))
		}
	}()

	timer := time.NewTimer(s.backoff)
	defer timer.Stop()

	for {
		s.swapMu.Lock()
		done := s.done
		swapped := len(s.dropOff) > 0
		if swapped {
			s.dropOff, s.processing = s.processing, s.dropOff
		}
		s.swapMu.Unlock()

		if swapped {
			if !s.drain() {
				return
			}
			continue
		}
		if done {
			return
		}

		timer.Reset(s.backoff)
		select {
		case <-s.workerCtx.Done():
			s.logger.Warn("scoreboard worker interrupted")
			return
		case <-timer.C:
		}
	}
}

// drain processes and empties the processing slice. It returns false if the
// worker was interrupted; the unprocessed rest is abandoned.
func (s *Scoreboard) drain() bool {
	defer func() {
		clear(s.processing)
		s.processing = s.processing[:0]
	}()
	for i, r := range s.processing {
		if s.workerCtx.Err() != nil {
			s.abandoned.Add(int64(len(s.processing) - i))
			s.logger.Warn("scoreboard worker interrupted while draining",
				zap.Int("abandoned", len(s.processing)-i))
			return false
		}
		s.process(r)
	}
	return true
}

func (s *Scoreboard) process(r *bench.OperationExecution) {
	s.processed.Add(1)

	switch r.TraceLabel {
	case bench.TraceLabelSteadyState:
		s.final.ProcessResult(r)
		s.processInterval(r)
		if !r.Failed {
			s.emitSnapshot(r)
		}
	case bench.TraceLabelLate:
		s.late.Add(1)
		s.final.ProcessLateOperation(r)
	case bench.TraceLabelRampUp:
		s.discardedRampUp.Add(1)
	case bench.TraceLabelRampDown:
		s.discardedRampDown.Add(1)
	}
}

// processInterval updates the card of a named interval. A result that
// finished after its interval's window (for example during the transition to
// the next definition) counts as late for that interval.
func (s *Scoreboard) processInterval(r *bench.OperationExecution) {
	name := r.IntervalName()
	if name == "" {
		return
	}

	ic, ok := s.intervals[name]
	if !ok {
		ic = &intervalCard{
			card:     NewScorecard(name, s.targetID, 0, s.newSampler),
			interval: r.LoadDefinition.Interval,
			starts:   make(map[int64]struct{}),
		}
		s.intervals[name] = ic
	}

	if !r.ProfileStartTime.IsZero() {
		if _, seen := ic.starts[r.ProfileStartTime.UnixNano()]; !seen {
			ic.starts[r.ProfileStartTime.UnixNano()] = struct{}{}
			ic.card.Duration = ic.interval * time.Duration(len(ic.starts))
		}
		if r.TimeFinished.After(r.ProfileStartTime.Add(ic.interval)) {
			ic.card.ProcessLateOperation(r)
			return
		}
	}
	ic.card.ProcessResult(r)
}

func (s *Scoreboard) emitSnapshot(r *bench.OperationExecution) {
	if s.snapshots == nil {
		return
	}
	s.snapshots.Accept(metricwriter.ResponseTimeStat{
		Timestamp:          r.TimeFinished,
		ResponseTime:       r.ExecutionTime(),
		TotalResponseTime:  s.final.TotalResponseTime,
		TotalOpsSuccessful: s.final.TotalOpsSuccessful,
		OperationName:      r.OperationName,
		OperationRequest:   r.Request,
		IntervalName:       r.IntervalName(),
		TargetID:           s.targetID,
		RunID:              s.runID,
	})
}

// Stop refuses further dropoffs and waits up to timeout for the worker to
// drain what was accepted. If the worker does not finish in time it is
// interrupted, given one more timeout to leave, and an error is returned;
// Stop never blocks longer than about twice timeout. The snapshot sink is
// stopped afterwards.
func (s *Scoreboard) Stop(timeout time.Duration) error {
	s.swapMu.Lock()
	alreadyDone := s.done
	s.done = true
	started := s.started
	s.swapMu.Unlock()

	if alreadyDone {
		return nil
	}

	var result *multierror.Error
	if !started {
		// No worker ever ran; process what was accepted inline
		s.swapMu.Lock()
		s.dropOff, s.processing = s.processing, s.dropOff
		s.swapMu.Unlock()
		s.drain()
	} else {
		timer := time.NewTimer(timeout)
		select {
		case <-s.workerDone:
		case <-timer.C:
			s.workerCancel()
			result = multierror.Append(result, fmt.Errorf("scoreboard %s: worker did not finish within %s", s.targetID, timeout))
			timer.Reset(timeout)
			select {
			case <-s.workerDone:
			case <-timer.C:
				result = multierror.Append(result, fmt.Errorf("scoreboard %s: worker still busy, scorecards unavailable", s.targetID))
			}
		}
		timer.Stop()
	}
	s.workerCancel()

	if s.snapshots != nil {
		if err := s.snapshots.Stop(timeout); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Done is closed when the worker has returned.
func (s *Scoreboard) Done() <-chan struct{} {
	return s.workerDone
}

// TargetID returns the target this scoreboard collects for.
func (s *Scoreboard) TargetID() string {
	return s.targetID
}

// Settled reports whether the scorecards may be read: the worker was never
// started or has returned.
func (s *Scoreboard) Settled() bool {
	s.swapMu.Lock()
	started := s.started
	s.swapMu.Unlock()
	if !started {
		return true
	}
	select {
	case <-s.workerDone:
		return true
	default:
		return false
	}
}

// FinalScorecard returns the steady-state card, or nil while the worker is
// still running. Read it only after Stop.
func (s *Scoreboard) FinalScorecard() *Scorecard {
	if !s.Settled() {
		return nil
	}
	return s.final
}

// IntervalScorecards returns the named interval cards, or nil while the worker
// is still running. Read them only after Stop.
func (s *Scoreboard) IntervalScorecards() map[string]*Scorecard {
	if !s.Settled() {
		return nil
	}
	result := make(map[string]*Scorecard, len(s.intervals))
	for name, ic := range s.intervals {
		result[name] = ic.card
	}
	return result
}

// DropOffStatistics returns the funnel health counters. Safe at any time.
func (s *Scoreboard) DropOffStatistics() DropOffStatistics {
	stats := DropOffStatistics{
		DropOffs:          s.dropOffs.Load(),
		Rejected:          s.rejected.Load(),
		Processed:         s.processed.Load(),
		DiscardedRampUp:   s.discardedRampUp.Load(),
		DiscardedRampDown: s.discardedRampDown.Load(),
		Late:              s.late.Load(),
		Abandoned:         s.abandoned.Load(),
		TotalLockWait:     time.Duration(s.lockWaitTotal.Load()),
		MaxLockWait:       time.Duration(s.lockWaitMax.Load()),
	}
	if stats.DropOffs > 0 {
		stats.AverageLockWait = stats.TotalLockWait / time.Duration(stats.DropOffs)
	}
	if sw, ok := s.snapshots.(*metricwriter.SnapshotWriter); ok {
		stats.SnapshotsDropped = sw.Stats().Dropped
	}
	return stats
}

// WaitTimeStatistics returns wait statistics per operation name, sorted.
func (s *Scoreboard) WaitTimeStatistics() []WaitTimeStatistics {
	s.waitMu.Lock()
	defer s.waitMu.Unlock()

	names := make([]string, 0, len(s.waits))
	for name := range s.waits {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]WaitTimeStatistics, 0, len(names))
	for _, name := range names {
		result = append(result, s.waits[name].Statistics(name))
	}
	return result
}

// Statistics returns the target report. Call it only after Stop. If the
// worker is still running the cards are left out and Incomplete is set.
func (s *Scoreboard) Statistics() TargetStatistics {
	if !s.Settled() {
		return TargetStatistics{
			TargetID:   s.targetID,
			Final:      CardStatistics{Name: FinalCard, TargetID: s.targetID},
			WaitTimes:  s.WaitTimeStatistics(),
			DropOff:    s.DropOffStatistics(),
			Incomplete: true,
		}
	}

	names := make([]string, 0, len(s.intervals))
	for name := range s.intervals {
		names = append(names, name)
	}
	sort.Strings(names)

	intervals := make([]CardStatistics, 0, len(names))
	for _, name := range names {
		intervals = append(intervals, s.intervals[name].card.Statistics())
	}

	return TargetStatistics{
		TargetID:  s.targetID,
		Final:     s.final.Statistics(),
		Intervals: intervals,
		WaitTimes: s.WaitTimeStatistics(),
		DropOff:   s.DropOffStatistics(),
	}
}

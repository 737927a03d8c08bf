// Package engine orchestrates benchmark runs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/squall/internal/bench"
	"github.com/wesleyorama2/squall/internal/bench/config"
	"github.com/wesleyorama2/squall/internal/bench/sampling"
	"github.com/wesleyorama2/squall/internal/bench/scoreboard"
)

// ErrAlreadyRunning is returned by Run when a run is in progress.
var ErrAlreadyRunning = errors.New("engine is already running")

// Engine is the main orchestrator of a benchmark run.
//
// It coordinates:
//   - Configuration defaults and validation
//   - An optional start gate released over the control surface
//   - Concurrent targets, each with its own schedule, agents and scoreboard
//   - Ordered, bounded teardown
//   - Aggregation of the target scorecards into the run report
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("run.yaml")
//	eng, _ := engine.New(cfg, workload.DefaultRegistry())
//	report, _ := eng.Run(context.Background())
type Engine struct {
	config   *config.BenchmarkConfig
	registry *bench.Registry
	logger   *zap.Logger

	waitForStart      bool
	inactivityQuantum time.Duration
	backoff           time.Duration

	startCh   chan struct{}
	startOnce sync.Once

	mu      sync.RWMutex
	running bool
	runID   string
	timing  *bench.Timing
	targets []*Target
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithWaitForStart overrides control.waitForStart.
func WithWaitForStart(wait bool) Option {
	return func(e *Engine) {
		e.waitForStart = wait
	}
}

// WithInactivityQuantum sets how long parked agents sleep between checks.
func WithInactivityQuantum(d time.Duration) Option {
	return func(e *Engine) {
		e.inactivityQuantum = d
	}
}

// WithScoreboardBackoff sets the scoreboard worker's idle sleep.
func WithScoreboardBackoff(d time.Duration) Option {
	return func(e *Engine) {
		e.backoff = d
	}
}

// New creates an engine for cfg. Defaults are applied to cfg and it is
// validated; every target's generator must be registered.
func New(cfg *config.BenchmarkConfig, registry *bench.Registry, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("generator registry is required")
	}

	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	errs := &config.ValidationErrors{}
	for i, t := range cfg.Targets {
		if !registry.Has(t.Generator) {
			errs.Add(fmt.Sprintf("targets[%d].generator", i),
				fmt.Sprintf("unknown generator %q (registered: %v)", t.Generator, registry.Names()))
		}
	}
	if errs.HasErrors() {
		return nil, fmt.Errorf("invalid configuration: %w", errs)
	}

	e := &Engine{
		config:       cfg,
		registry:     registry,
		logger:       zap.NewNop(),
		waitForStart: cfg.Control.WaitForStart,
		startCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("run", cfg.Name))

	for _, w := range cfg.Warnings() {
		e.logger.Warn("questionable schedule entry", zap.String("detail", w))
	}
	return e, nil
}

// Run executes the benchmark and returns its report.
//
// If the engine waits for start, Run blocks until StartBenchmark is called.
// All targets run concurrently and share one timing. Cancelling ctx ends the
// run early; the report then covers what was measured so far and the
// returned error is nil unless teardown failed.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	if e.waitForStart {
		e.logger.Info("waiting for start signal")
		select {
		case <-e.startCh:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for start: %w", ctx.Err())
		}
	}

	runID := uuid.NewString()
	timing := bench.NewTiming(time.Now(),
		time.Duration(e.config.Timing.RampUp),
		time.Duration(e.config.Timing.Duration),
		time.Duration(e.config.Timing.RampDown))
	logger := e.logger.With(zap.String("runId", runID))

	targets, err := e.buildTargets(ctx, runID, timing, logger)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.runID = runID
	e.timing = &timing
	e.targets = targets
	e.mu.Unlock()

	logger.Info("benchmark started",
		zap.Int("targets", len(targets)),
		zap.Stringer("timing", timing),
	)

	progressCtx, stopProgress := context.WithCancel(ctx)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		e.reportProgress(progressCtx, logger)
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			return t.run(gctx)
		})
	}
	runErr := g.Wait()

	stopProgress()
	<-progressDone

	report := e.buildReport(runID, timing, targets)
	logger.Info("benchmark finished",
		zap.Int64("successful", report.Global.TotalOpsSuccessful),
		zap.Int64("failed", report.Global.TotalOpsFailed),
		zap.Float64("effectiveLoad", report.Global.EffectiveLoad),
	)
	if runErr != nil {
		report.Errors = append(report.Errors, runErr.Error())
	}
	return report, runErr
}

func (e *Engine) buildTargets(ctx context.Context, runID string, timing bench.Timing, logger *zap.Logger) ([]*Target, error) {
	deps := targetDeps{
		registry:          e.registry,
		timing:            timing,
		runID:             runID,
		sampling:          e.config.Sampling,
		metrics:           e.config.Metrics,
		shutdown:          e.config.Shutdown,
		inactivityQuantum: e.inactivityQuantum,
		backoff:           e.backoff,
		multipleTargets:   len(e.config.Targets) > 1,
		logger:            logger,
	}

	targets := make([]*Target, 0, len(e.config.Targets))
	for _, tc := range e.config.Targets {
		t, err := newTarget(ctx, tc, deps)
		if err != nil {
			for _, built := range targets {
				_ = built.release()
			}
			return nil, fmt.Errorf("failed to initialize targets: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// reportProgress logs a line per target every report interval.
func (e *Engine) reportProgress(ctx context.Context, logger *zap.Logger) {
	interval := time.Duration(e.config.Report.Interval)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range e.Progress() {
				logger.Info("progress",
					zap.String("target", p.Name),
					zap.String("interval", p.Interval),
					zap.Int64("cycles", p.Cycles),
					zap.Int("activeAgents", p.ActiveAgents),
					zap.Int64("dropOffs", p.DropOffs),
					zap.Int64("backlog", p.DropOffs-p.Processed),
					zap.Int64("asyncInFlight", p.AsyncInFlight),
				)
			}
		}
	}
}

// buildReport aggregates the target scorecards. Call it after every target
// has been torn down.
func (e *Engine) buildReport(runID string, timing bench.Timing, targets []*Target) *Report {
	report := &Report{
		RunID:       runID,
		Name:        e.config.Name,
		Description: e.config.Description,
		Timing:      timing,
		EndTime:     time.Now(),
		Targets:     make([]TargetReport, 0, len(targets)),
	}

	cards := make([]scoreboard.TargetCard, 0, len(targets))
	for _, t := range targets {
		report.Targets = append(report.Targets, t.report())
		cards = append(cards, scoreboard.TargetCard{
			AggregationID: t.AggregationID,
			Card:          t.Scoreboard().FinalScorecard(),
		})
	}

	kind, _ := sampling.ParseKind(e.config.Sampling.Strategy)
	agg := scoreboard.Aggregate(cards, sampling.NewFactory(kind, e.config.Sampling.MeanInterval, e.config.Sampling.Seed))
	report.Global, report.Aggregations = agg.Statistics()
	return report
}

// StartBenchmark releases a run waiting for its start signal. It returns
// false if the signal was already given.
func (e *Engine) StartBenchmark() bool {
	started := false
	e.startOnce.Do(func() {
		close(e.startCh)
		started = true
	})
	return started
}

// WaitsForStart reports whether Run blocks until StartBenchmark.
func (e *Engine) WaitsForStart() bool {
	return e.waitForStart
}

// RampUp returns the configured ramp-up duration.
func (e *Engine) RampUp() time.Duration {
	return time.Duration(e.config.Timing.RampUp)
}

// Duration returns the configured steady-state duration.
func (e *Engine) Duration() time.Duration {
	return time.Duration(e.config.Timing.Duration)
}

// RampDown returns the configured ramp-down duration.
func (e *Engine) RampDown() time.Duration {
	return time.Duration(e.config.Timing.RampDown)
}

// TrackNames returns the target names in configuration order.
func (e *Engine) TrackNames() []string {
	names := make([]string, 0, len(e.config.Targets))
	for _, t := range e.config.Targets {
		names = append(names, t.Name)
	}
	return names
}

// Timing returns the timing of the current or last run.
func (e *Engine) Timing() (bench.Timing, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.timing == nil {
		return bench.Timing{}, false
	}
	return *e.timing, true
}

// RunID returns the id of the current or last run.
func (e *Engine) RunID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runID
}

// IsRunning returns true if the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Progress returns a point-in-time view of every target.
func (e *Engine) Progress() []TargetProgress {
	e.mu.RLock()
	targets := e.targets
	e.mu.RUnlock()

	progress := make([]TargetProgress, 0, len(targets))
	for _, t := range targets {
		progress = append(progress, t.Progress())
	}
	return progress
}

// Config returns the run configuration, with defaults applied.
func (e *Engine) Config() *config.BenchmarkConfig {
	return e.config
}

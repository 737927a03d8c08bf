package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/wesleyorama2/squall/internal/bench"
	"github.com/wesleyorama2/squall/internal/bench/config"
	"github.com/wesleyorama2/squall/internal/bench/load"
	"github.com/wesleyorama2/squall/internal/bench/metricwriter"
	"github.com/wesleyorama2/squall/internal/bench/sampling"
	"github.com/wesleyorama2/squall/internal/bench/scoreboard"
)

// Target is one system under test: its schedule, load manager, scoreboard
// and agents.
type Target struct {
	Name          string
	AggregationID string
	Generator     string

	cfg    config.TargetConfig
	timing bench.Timing
	logger *zap.Logger

	manager    *load.Manager
	scoreboard *scoreboard.Scoreboard
	asyncPool  *bench.AsyncPool
	agents     *bench.AgentPool
	generators []bench.Generator

	managerCancel context.CancelFunc
	shutdown      config.ShutdownConfig
}

// targetDeps are the run-wide inputs needed to build a target.
type targetDeps struct {
	registry          *bench.Registry
	timing            bench.Timing
	runID             string
	sampling          config.SamplingConfig
	metrics           config.MetricsConfig
	shutdown          config.ShutdownConfig
	inactivityQuantum time.Duration
	backoff           time.Duration
	multipleTargets   bool
	logger            *zap.Logger
}

// newTarget wires up every component of a target without starting any of
// them. On error, whatever was already created is released.
func newTarget(ctx context.Context, cfg config.TargetConfig, deps targetDeps) (*Target, error) {
	logger := deps.logger.With(zap.String("target", cfg.Name))

	t := &Target{
		Name:          cfg.Name,
		AggregationID: cfg.AggregationID,
		Generator:     cfg.Generator,
		cfg:           cfg,
		timing:        deps.timing,
		logger:        logger,
		shutdown:      deps.shutdown,
	}

	schedule, err := buildSchedule(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", cfg.Name, err)
	}

	var mixes []string
	if len(cfg.Mixes) > 0 {
		mixes = cfg.Mixes
	}
	t.manager = load.NewManager(cfg.Name, deps.timing.RampUp, schedule, mixes, load.WithLogger(deps.logger))

	kind, _ := sampling.ParseKind(deps.sampling.Strategy)
	waitKind, _ := sampling.ParseKind(deps.sampling.WaitTimes)
	if deps.sampling.WaitTimes == "" {
		waitKind = sampling.KindNone
	}

	opts := []scoreboard.Option{
		scoreboard.WithLogger(deps.logger),
		scoreboard.WithSampling(sampling.NewFactory(kind, deps.sampling.MeanInterval, deps.sampling.Seed)),
		scoreboard.WithWaitTimeSampling(sampling.NewFactory(waitKind, deps.sampling.MeanInterval, deps.sampling.Seed+1)),
		scoreboard.WithBackoff(deps.backoff),
		scoreboard.WithRunID(deps.runID),
	}
	snapshots, err := newSnapshotWriter(cfg.Name, deps)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", cfg.Name, err)
	}
	if snapshots != nil {
		opts = append(opts, scoreboard.WithSnapshots(snapshots))
	}
	t.scoreboard = scoreboard.New(cfg.Name, deps.timing, opts...)

	t.asyncPool = bench.NewAsyncPool(ctx, t.scoreboard, logger)

	built := false
	defer func() {
		if !built {
			_ = t.release()
		}
	}()

	params, err := cfg.ParamsJSON()
	if err != nil {
		return nil, err
	}

	users := schedule.MaxUsers()
	agents := make([]*bench.Agent, 0, users)
	for id := 0; id < users; id++ {
		seed := deps.sampling.Seed + int64(id+1)*7919
		gen, err := deps.registry.New(cfg.Generator, params, bench.GeneratorOptions{
			TargetID:      cfg.Name,
			AgentID:       id,
			MeanThinkTime: time.Duration(cfg.MeanThinkTime),
			MeanCycleTime: time.Duration(cfg.MeanCycleTime),
			Logger:        logger,
			Seed:          seed,
		})
		if err != nil {
			return nil, fmt.Errorf("target %s agent %d: %w", cfg.Name, id, err)
		}
		t.generators = append(t.generators, gen)
		if err := gen.Initialize(); err != nil {
			return nil, fmt.Errorf("target %s agent %d: initialize generator: %w", cfg.Name, id, err)
		}

		agents = append(agents, bench.NewAgent(bench.AgentConfig{
			ID:                  id,
			TargetID:            cfg.Name,
			Timing:              deps.timing,
			OpenLoopProbability: cfg.OpenLoopProbability,
			InactivityQuantum:   deps.inactivityQuantum,
			Seed:                seed,
			Logger:              logger,
		}, gen, t.manager, t.scoreboard, t.asyncPool))
	}
	t.agents = bench.NewAgentPool(agents)
	built = true

	logger.Info("target ready",
		zap.String("generator", cfg.Generator),
		zap.Int("agents", users),
		zap.Int("scheduleSize", schedule.Size()),
	)
	return t, nil
}

// buildSchedule converts configured intervals to load definitions.
func buildSchedule(intervals []config.IntervalConfig) (*load.Schedule, error) {
	defs := make([]*load.Definition, 0, len(intervals))
	for _, iv := range intervals {
		d := load.NewDefinition(time.Duration(iv.Interval), time.Duration(iv.TransitionTime), iv.Users, iv.Mix).
			WithName(iv.Name).
			WithOpenLoopCap(iv.OpenLoopMaxOpsPerSec)
		defs = append(defs, d)
	}
	return load.NewSchedule(defs)
}

// newSnapshotWriter opens the target's metric writer. Returns nil when
// samples are discarded. With several targets each file gets the target
// name as a suffix.
func newSnapshotWriter(target string, deps targetDeps) (*metricwriter.SnapshotWriter, error) {
	kind := metricwriter.Kind(deps.metrics.Writer)
	if kind == "" || kind == metricwriter.KindDiscard {
		return nil, nil
	}

	path := deps.metrics.Path
	if kind == metricwriter.KindFile && deps.multipleTargets {
		ext := filepath.Ext(path)
		path = strings.TrimSuffix(path, ext) + "-" + target + ext
	}

	w, err := metricwriter.New(metricwriter.Config{
		Kind:    kind,
		Path:    path,
		Address: deps.metrics.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("open metric writer: %w", err)
	}
	return metricwriter.NewSnapshotWriter(w, deps.metrics.BufferSize, deps.logger.With(zap.String("target", target))), nil
}

// run starts the target and blocks until the run ends or ctx is cancelled,
// then tears the target down. Cancellation is not an error.
func (t *Target) run(ctx context.Context) error {
	t.scoreboard.Start()

	managerCtx, cancel := context.WithCancel(context.Background())
	t.managerCancel = cancel
	go t.manager.Run(managerCtx)

	t.agents.Start(ctx)

	timer := time.NewTimer(time.Until(t.timing.EndRun))
	select {
	case <-timer.C:
		t.logger.Info("run finished")
	case <-ctx.Done():
		timer.Stop()
		t.logger.Warn("run interrupted", zap.Error(ctx.Err()))
	}

	return t.teardown()
}

// teardown stops the target's components in order: agents, async
// operations, load manager, scoreboard, generators. Each step is bounded;
// failures are collected and the remaining steps still run.
func (t *Target) teardown() error {
	var result *multierror.Error

	join := time.Duration(t.shutdown.AgentJoin)
	if stuck := t.agents.Shutdown(join); stuck > 0 {
		result = multierror.Append(result, fmt.Errorf("target %s: %d agents did not stop", t.Name, stuck))
	}

	if err := t.asyncPool.Close(time.Duration(t.shutdown.AsyncDrain)); err != nil {
		result = multierror.Append(result, fmt.Errorf("target %s: %w", t.Name, err))
	}

	if t.managerCancel != nil {
		t.managerCancel()
		select {
		case <-t.manager.Done():
		case <-time.After(join):
			result = multierror.Append(result, fmt.Errorf("target %s: load manager did not stop", t.Name))
		}
	}

	if err := t.scoreboard.Stop(time.Duration(t.shutdown.Scoreboard)); err != nil {
		result = multierror.Append(result, err)
	}

	if err := t.disposeGenerators(); err != nil {
		result = multierror.Append(result, err)
	}

	err := result.ErrorOrNil()
	if err != nil {
		t.logger.Warn("teardown finished with errors", zap.Error(err))
	} else {
		t.logger.Info("teardown complete")
	}
	return err
}

// release frees a target that was built but never run.
func (t *Target) release() error {
	var result *multierror.Error
	if err := t.asyncPool.Close(time.Duration(t.shutdown.AsyncDrain)); err != nil {
		result = multierror.Append(result, err)
	}
	if err := t.scoreboard.Stop(time.Duration(t.shutdown.Scoreboard)); err != nil {
		result = multierror.Append(result, err)
	}
	if err := t.disposeGenerators(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (t *Target) disposeGenerators() error {
	var result *multierror.Error
	for i, gen := range t.generators {
		if err := gen.Dispose(); err != nil {
			result = multierror.Append(result, fmt.Errorf("target %s agent %d: dispose generator: %w", t.Name, i, err))
		}
	}
	t.generators = nil
	return result.ErrorOrNil()
}

// Scoreboard returns the target's scoreboard.
func (t *Target) Scoreboard() *scoreboard.Scoreboard {
	return t.scoreboard
}

// Progress returns a point-in-time view of the target.
func (t *Target) Progress() TargetProgress {
	drop := t.scoreboard.DropOffStatistics()
	profile := t.manager.CurrentLoadProfile()
	p := TargetProgress{
		Name:          t.Name,
		ActiveAgents:  t.agents.ActiveCount(),
		Agents:        t.agents.Size(),
		ScheduleIndex: t.manager.Index(),
		Cycles:        t.manager.Cycles(),
		DropOffs:      drop.DropOffs,
		Processed:     drop.Processed,
		AsyncInFlight: t.asyncPool.InFlight(),
	}
	if profile != nil {
		p.Users = profile.NumberOfUsers
		p.Interval = profile.String()
	}
	return p
}

// TargetProgress is a point-in-time view of a running target.
type TargetProgress struct {
	Name          string `json:"name"`
	Interval      string `json:"interval"`
	ScheduleIndex int    `json:"scheduleIndex"`
	Cycles        int64  `json:"cycles"`
	Users         int    `json:"users"`
	ActiveAgents  int    `json:"activeAgents"`
	Agents        int    `json:"agents"`
	DropOffs      int64  `json:"dropOffs"`
	Processed     int64  `json:"processed"`
	AsyncInFlight int64  `json:"asyncInFlight"`
}

// report builds the target's section of the run report. Call it after run.
func (t *Target) report() TargetReport {
	r := TargetReport{
		Name:               t.Name,
		Generator:          t.Generator,
		AggregationID:      t.AggregationID,
		Agents:             t.agents.Size(),
		LoadCycles:         t.manager.Cycles(),
		InvalidDefinitions: t.manager.InvalidDefinitions(),
		AsyncSubmitted:     t.asyncPool.Submitted(),
		AsyncRejected:      t.asyncPool.Rejected(),
		Statistics:         t.scoreboard.Statistics(),
	}
	for _, s := range t.agents.Stats() {
		r.OperationsIssued += s.OperationsIssued
		r.GeneratorErrors += s.GeneratorErrors
	}
	return r
}

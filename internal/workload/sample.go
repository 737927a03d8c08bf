package workload

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/wesleyorama2/squall/internal/bench"
	"github.com/wesleyorama2/squall/internal/bench/load"
)

// SampleName is the registry name of the simulated workload.
const SampleName = "sample"

// ErrSimulatedFailure is returned by sample operations chosen to fail.
var ErrSimulatedFailure = errors.New("simulated failure")

// SampleSpec describes one simulated operation type.
type SampleSpec struct {
	Name        string
	Latency     time.Duration
	Jitter      time.Duration
	FailureRate float64
	Actions     int64
	weights     weights
}

// parseSampleSpecs reads the operations array of the sample params:
//
//	{"operations": [{"name": "browse", "latency": "20ms", "jitter": "5ms",
//	  "failureRate": 0.01, "actions": 1, "weight": 3, "mixes": {"heavy": 1}}]}
//
// Without operations a single 10ms "sample" operation is used.
func parseSampleSpecs(root gjson.Result) ([]SampleSpec, error) {
	ops := root.Get("operations")
	if !ops.Exists() {
		return []SampleSpec{{
			Name:    SampleName,
			Latency: 10 * time.Millisecond,
			Actions: 1,
			weights: weights{def: 1},
		}}, nil
	}
	if !ops.IsArray() || len(ops.Array()) == 0 {
		return nil, fmt.Errorf("operations must be a non-empty array")
	}

	var specs []SampleSpec
	for i, op := range ops.Array() {
		spec, err := parseSampleSpec(op)
		if err != nil {
			return nil, fmt.Errorf("operations[%d]: %w", i, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseSampleSpec(op gjson.Result) (SampleSpec, error) {
	spec := SampleSpec{Name: op.Get("name").String(), Actions: 1}
	if spec.Name == "" {
		return spec, fmt.Errorf("name is required")
	}

	var err error
	if spec.Latency, err = durationParam(op, "latency", 10*time.Millisecond); err != nil {
		return spec, err
	}
	if spec.Jitter, err = durationParam(op, "jitter", 0); err != nil {
		return spec, err
	}

	if v := op.Get("failureRate"); v.Exists() {
		spec.FailureRate = v.Float()
		if v.Type != gjson.Number || spec.FailureRate < 0 || spec.FailureRate > 1 {
			return spec, fmt.Errorf("failureRate must be between 0 and 1")
		}
	}
	if v := op.Get("actions"); v.Exists() {
		spec.Actions = v.Int()
		if v.Type != gjson.Number || spec.Actions < 1 {
			return spec, fmt.Errorf("actions must be at least 1")
		}
	}

	spec.weights, err = weightsParam(op)
	return spec, err
}

// SampleGenerator simulates a system under test: each operation sleeps for
// its latency plus uniform jitter and fails with its failure rate.
type SampleGenerator struct {
	specs  []SampleSpec
	picker *picker
	pauses *pauses
	logger *zap.Logger

	// one rng per agent, shared with async operations of the same agent
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampleGenerator is the factory registered as "sample".
func NewSampleGenerator(params []byte, opts bench.GeneratorOptions) (bench.Generator, error) {
	root, err := parseParams(params)
	if err != nil {
		return nil, err
	}
	specs, err := parseSampleSpecs(root)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	w := make([]weights, len(specs))
	for i, s := range specs {
		w[i] = s.weights
	}

	return &SampleGenerator{
		specs:  specs,
		picker: &picker{weights: w, rng: rand.New(rand.NewSource(opts.Seed))},
		pauses: &pauses{
			meanThink: opts.MeanThinkTime,
			meanCycle: opts.MeanCycleTime,
			rng:       rand.New(rand.NewSource(opts.Seed + 1)),
		},
		logger: logger.With(zap.String("generator", SampleName), zap.Int("agent", opts.AgentID)),
		rng:    rand.New(rand.NewSource(opts.Seed + 2)),
	}, nil
}

func (g *SampleGenerator) Initialize() error {
	g.logger.Debug("sample generator ready", zap.Int("operations", len(g.specs)))
	return nil
}

func (g *SampleGenerator) NextRequest(_ int, profile *load.Definition) (bench.Operation, error) {
	i := g.picker.next(profile)
	if i < 0 {
		return nil, nil
	}
	return &sampleOperation{spec: &g.specs[i], index: i, gen: g}, nil
}

func (g *SampleGenerator) ThinkTime() time.Duration { return g.pauses.think() }
func (g *SampleGenerator) CycleTime() time.Duration { return g.pauses.cycle() }
func (g *SampleGenerator) Dispose() error           { return nil }

// Specs returns the parsed operation types.
func (g *SampleGenerator) Specs() []SampleSpec {
	return g.specs
}

// draw picks the latency and outcome of one execution.
func (g *SampleGenerator) draw(spec *SampleSpec) (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	latency := spec.Latency
	if spec.Jitter > 0 {
		latency += time.Duration((g.rng.Float64()*2 - 1) * float64(spec.Jitter))
		if latency < 0 {
			latency = 0
		}
	}
	fail := spec.FailureRate > 0 && g.rng.Float64() < spec.FailureRate
	return latency, fail
}

type sampleOperation struct {
	spec  *SampleSpec
	index int
	gen   *SampleGenerator

	latency time.Duration
	fail    bool
}

func (o *sampleOperation) Name() string            { return o.spec.Name }
func (o *sampleOperation) Index() int              { return o.index }
func (o *sampleOperation) Request() string         { return "simulated " + o.spec.Name }
func (o *sampleOperation) ActionsPerformed() int64 { return o.spec.Actions }

func (o *sampleOperation) Prepare() error {
	o.latency, o.fail = o.gen.draw(o.spec)
	return nil
}

func (o *sampleOperation) Execute(ctx context.Context) error {
	if o.latency > 0 {
		timer := time.NewTimer(o.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if o.fail {
		return ErrSimulatedFailure
	}
	return nil
}

package bench

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/squall/internal/bench/load"
)

// recordingSink collects everything dropped off.
type recordingSink struct {
	mu      sync.Mutex
	results []*OperationExecution
	waits   []time.Duration
}

func (s *recordingSink) DropOffOperation(result *OperationExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
}

func (s *recordingSink) DropOffWaitTime(_ time.Time, _ string, wait time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, wait)
}

func (s *recordingSink) Results() []*OperationExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*OperationExecution, len(s.results))
	copy(out, s.results)
	return out
}

func (s *recordingSink) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func (s *recordingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// staticProfiler always answers with the same definition.
type staticProfiler struct {
	mu  sync.Mutex
	def *load.Definition
}

func (p *staticProfiler) CurrentProfile() load.Profile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return load.ProfileOf(p.def)
}

// drawnProfiler always answers with the same draw, stamp included.
type drawnProfiler struct {
	profile load.Profile
}

func (p drawnProfiler) CurrentProfile() load.Profile { return p.profile }

func (p *staticProfiler) Set(d *load.Definition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.def = d
}

// testOperation runs fn on Execute.
type testOperation struct {
	name    string
	index   int
	fn      func(ctx context.Context) error
	prepare error
	actions int64
}

func (o *testOperation) Name() string    { return o.name }
func (o *testOperation) Index() int      { return o.index }
func (o *testOperation) Request() string { return "test://" + o.name }
func (o *testOperation) Prepare() error  { return o.prepare }

func (o *testOperation) Execute(ctx context.Context) error {
	if o.fn == nil {
		return nil
	}
	return o.fn(ctx)
}

// countingOperation reports several actions.
type countingOperation struct {
	testOperation
}

func (o *countingOperation) ActionsPerformed() int64 { return o.actions }

// testGenerator hands out operations built by next.
type testGenerator struct {
	next      func(last int) (Operation, error)
	think     time.Duration
	cycle     time.Duration
	requests  atomic.Int64
	lastIndex atomic.Int64
	disposed  atomic.Bool

	mu       sync.Mutex
	profiles []*load.Definition
}

func (g *testGenerator) Initialize() error { return nil }

func (g *testGenerator) NextRequest(last int, profile *load.Definition) (Operation, error) {
	g.requests.Add(1)
	g.lastIndex.Store(int64(last))
	g.mu.Lock()
	g.profiles = append(g.profiles, profile)
	g.mu.Unlock()
	return g.next(last)
}

// Profiles returns the definitions passed to NextRequest so far.
func (g *testGenerator) Profiles() []*load.Definition {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*load.Definition(nil), g.profiles...)
}

func (g *testGenerator) ThinkTime() time.Duration { return g.think }
func (g *testGenerator) CycleTime() time.Duration { return g.cycle }

func (g *testGenerator) Dispose() error {
	g.disposed.Store(true)
	return nil
}

var errAlwaysFails = errors.New("backend unavailable")

func failingGenerator() *testGenerator {
	return &testGenerator{
		think: time.Millisecond,
		next: func(int) (Operation, error) {
			return &testOperation{name: "fail", fn: func(context.Context) error { return errAlwaysFails }}, nil
		},
	}
}

func okGenerator(think time.Duration) *testGenerator {
	return &testGenerator{
		think: think,
		cycle: think,
		next: func(last int) (Operation, error) {
			return &testOperation{name: "ok", index: last + 1}, nil
		},
	}
}

// openTiming returns a run that started now and lasts long enough for tests.
func openTiming() Timing {
	return NewTiming(time.Now(), 0, time.Hour, 0)
}

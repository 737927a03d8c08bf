package scoreboard

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wesleyorama2/squall/internal/bench"
	"github.com/wesleyorama2/squall/internal/bench/load"
	"github.com/wesleyorama2/squall/internal/bench/metricwriter"
	"github.com/wesleyorama2/squall/internal/bench/sampling"
)

var runStart = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// fixedTiming: ramp-up [0,10s), steady [10s,70s], ramp-down (70s,80s].
func fixedTiming() bench.Timing {
	return bench.NewTiming(runStart, 10*time.Second, 60*time.Second, 10*time.Second)
}

func at(seconds float64) time.Time {
	return runStart.Add(time.Duration(math.Round(seconds*1000)) * time.Millisecond)
}

func execution(name string, started, finished time.Time, failed bool) *bench.OperationExecution {
	return &bench.OperationExecution{
		OperationName:    name,
		TimeStarted:      started,
		TimeFinished:     finished,
		Failed:           failed,
		ActionsPerformed: 1,
	}
}

func newTestScoreboard(t *testing.T, opts ...Option) *Scoreboard {
	t.Helper()
	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t)),
		WithBackoff(time.Millisecond),
		WithSampling(sampling.NewFactory(sampling.KindAll, 1, 1)),
	}, opts...)
	s := New("web", fixedTiming(), opts...)
	s.Start()
	return s
}

func TestScoreboard_NeverDropsAcceptedResults(t *testing.T) {
	s := newTestScoreboard(t)

	const producers = 16
	const perProducer = 2000
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				s.DropOffOperation(execution("op", at(20), at(20.01), false))
			}
		}()
	}
	wg.Wait()

	require.NoError(t, s.Stop(5*time.Second))

	stats := s.Statistics()
	assert.Equal(t, int64(producers*perProducer), stats.DropOff.DropOffs)
	assert.Equal(t, int64(producers*perProducer), stats.DropOff.Processed)
	assert.Equal(t, int64(producers*perProducer), stats.Final.TotalOpsSuccessful)
	assert.Zero(t, stats.DropOff.Rejected)
}

func TestScoreboard_StopWhileProducing(t *testing.T) {
	s := newTestScoreboard(t)

	var submitted atomic.Int64
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				submitted.Add(1)
				s.DropOffOperation(execution("op", at(20), at(21), false))
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Stop(5*time.Second))
	close(stop)
	wg.Wait()

	stats := s.DropOffStatistics()
	// every accepted result was processed; everything else was refused
	assert.Equal(t, stats.DropOffs, stats.Processed)
	assert.Equal(t, submitted.Load(), stats.DropOffs+stats.Rejected)
	assert.Equal(t, stats.Processed, s.FinalScorecard().TotalOpsInitiated)
}

func TestScoreboard_Classification(t *testing.T) {
	s := newTestScoreboard(t)

	s.DropOffOperation(execution("a", at(1), at(2), false))      // ramp-up
	s.DropOffOperation(execution("a", at(9), at(11), false))     // ramp-up
	s.DropOffOperation(execution("a", at(20), at(20.5), false))  // steady
	s.DropOffOperation(execution("b", at(30), at(30.25), false)) // steady
	s.DropOffOperation(execution("b", at(40), at(41), true))     // steady, failed
	s.DropOffOperation(execution("a", at(69), at(72), false))    // late
	s.DropOffOperation(execution("a", at(75), at(76), false))    // ramp-down

	require.NoError(t, s.Stop(time.Second))

	final := s.FinalScorecard()
	assert.Equal(t, int64(4), final.TotalOpsInitiated, "steady plus late")
	assert.Equal(t, int64(2), final.TotalOpsSuccessful)
	assert.Equal(t, int64(1), final.TotalOpsFailed)
	assert.Equal(t, int64(1), final.TotalOpsLate)
	assert.Equal(t, 750*time.Millisecond, final.TotalResponseTime, "late results add no response time")

	a := final.Operation("a")
	require.NotNil(t, a)
	assert.Equal(t, int64(1), a.Succeeded)
	assert.Equal(t, 500*time.Millisecond, a.MaxResponseTime())

	b := final.Operation("b")
	require.NotNil(t, b)
	assert.Equal(t, int64(1), b.Succeeded)
	assert.Equal(t, int64(1), b.Failed)

	stats := s.DropOffStatistics()
	assert.Equal(t, int64(2), stats.DiscardedRampUp)
	assert.Equal(t, int64(1), stats.DiscardedRampDown)
	assert.Equal(t, int64(1), stats.Late)
}

func TestScoreboard_IntervalCards(t *testing.T) {
	s := newTestScoreboard(t)

	def := load.NewDefinition(10*time.Second, 2*time.Second, 5, "").WithName("peak")
	def.Activate(at(10))

	inWindow := execution("op", at(12), at(13), false)
	inWindow.LoadDefinition = def
	inWindow.ProfileStartTime = at(10)

	// generated during the interval, finished during the transition
	overrun := execution("op", at(19), at(21), false)
	overrun.LoadDefinition = def
	overrun.ProfileStartTime = at(10)

	unnamed := execution("op", at(30), at(31), false)
	unnamed.LoadDefinition = load.NewDefinition(time.Minute, 0, 1, "")

	s.DropOffOperation(inWindow)
	s.DropOffOperation(overrun)
	s.DropOffOperation(unnamed)
	require.NoError(t, s.Stop(time.Second))

	cards := s.IntervalScorecards()
	require.Len(t, cards, 1)
	peak := cards["peak"]
	assert.Equal(t, int64(2), peak.TotalOpsInitiated)
	assert.Equal(t, int64(1), peak.TotalOpsSuccessful)
	assert.Equal(t, int64(1), peak.TotalOpsLate)
	assert.Equal(t, 10*time.Second, peak.Duration)

	assert.Equal(t, int64(3), s.FinalScorecard().TotalOpsSuccessful)
	require.Len(t, s.Statistics().Intervals, 1)
}

// recordingSnapshots captures emitted samples.
type recordingSnapshots struct {
	mu      sync.Mutex
	stats   []metricwriter.ResponseTimeStat
	stopped bool
}

func (r *recordingSnapshots) Accept(stat metricwriter.ResponseTimeStat) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, stat)
	return true
}

func (r *recordingSnapshots) Stop(time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	return nil
}

func TestScoreboard_EmitsSnapshotsForSuccessfulSteadyResults(t *testing.T) {
	snaps := &recordingSnapshots{}
	s := newTestScoreboard(t, WithSnapshots(snaps), WithRunID("run-1"))

	s.DropOffOperation(execution("a", at(1), at(2), false))
	s.DropOffOperation(execution("a", at(20), at(20.1), false))
	s.DropOffOperation(execution("a", at(21), at(21.2), true))
	s.DropOffOperation(execution("a", at(22), at(22.3), false))
	require.NoError(t, s.Stop(time.Second))

	require.Len(t, snaps.stats, 2)
	assert.True(t, snaps.stopped)
	last := snaps.stats[1]
	assert.Equal(t, int64(2), last.TotalOpsSuccessful)
	assert.Equal(t, 400*time.Millisecond, last.TotalResponseTime)
	assert.Equal(t, "run-1", last.RunID)
	assert.Equal(t, "web", last.TargetID)
}

// blockingSnapshots stalls the worker on the first sample.
type blockingSnapshots struct {
	release chan struct{}
}

func (b *blockingSnapshots) Accept(metricwriter.ResponseTimeStat) bool {
	<-b.release
	return true
}

func (b *blockingSnapshots) Stop(time.Duration) error { return nil }

func TestScoreboard_StopIsBounded(t *testing.T) {
	snaps := &blockingSnapshots{release: make(chan struct{})}
	defer close(snaps.release)
	s := newTestScoreboard(t, WithSnapshots(snaps))

	s.DropOffOperation(execution("a", at(20), at(21), false))
	require.Eventually(t, func() bool { return s.DropOffStatistics().Processed == 1 }, time.Second, time.Millisecond)

	start := time.Now()
	err := s.Stop(50 * time.Millisecond)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	// the worker is still inside a result, so the cards stay off limits
	assert.False(t, s.Settled())
	assert.Nil(t, s.FinalScorecard())
	assert.Nil(t, s.IntervalScorecards())
	stats := s.Statistics()
	assert.True(t, stats.Incomplete)
	assert.Zero(t, stats.Final.TotalOpsInitiated)
	assert.Equal(t, int64(1), stats.DropOff.Processed)
}

// slowSampler keeps everything but takes its time doing so.
type slowSampler struct {
	sampling.Strategy
	delay time.Duration
}

func (s *slowSampler) Accept(v time.Duration) bool {
	time.Sleep(s.delay)
	return s.Strategy.Accept(v)
}

func TestScoreboard_StopTimeoutInterruptsDrain(t *testing.T) {
	all := sampling.NewFactory(sampling.KindAll, 1, 1)
	s := newTestScoreboard(t, WithSampling(func() sampling.Strategy {
		return &slowSampler{Strategy: all(), delay: 2 * time.Millisecond}
	}))

	const n = 200
	for i := 0; i < n; i++ {
		s.DropOffOperation(execution("op", at(20), at(20.1), false))
	}

	err := s.Stop(30 * time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not finish within")
	require.True(t, s.Settled(), "an interrupted worker leaves after the current result")

	stats := s.Statistics()
	assert.False(t, stats.Incomplete)
	processed := stats.DropOff.Processed
	assert.Less(t, processed, int64(n))
	assert.Equal(t, int64(n)-processed, stats.DropOff.Abandoned)
	assert.Equal(t, processed, stats.Final.TotalOpsSuccessful)

	// nothing touches the cards once Stop has returned
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, processed, s.DropOffStatistics().Processed)
	assert.Equal(t, processed, s.FinalScorecard().TotalOpsSuccessful)
}

func TestScoreboard_IntervalCardsOnSecondPass(t *testing.T) {
	s := newTestScoreboard(t)

	clock := at(10)
	first := load.NewDefinition(10*time.Second, 4*time.Second, 1, "").WithName("first")
	second := load.NewDefinition(10*time.Second, 4*time.Second, 1, "").WithName("second")
	schedule, err := load.NewSchedule([]*load.Definition{first, second})
	require.NoError(t, err)
	m := load.NewManager("web", 0, schedule, nil,
		load.WithClock(func() time.Time { return clock }),
		load.WithRand(rand.New(rand.NewSource(5))))

	// first pass: first at 10s, second at 24s; second pass: first again at 38s
	first.Activate(clock)
	clock = at(24)
	m.Advance()
	clock = at(38)
	m.Advance()

	// transition window of first's second activation: 48s..52s
	clock = at(50)
	var blended int64
	for i := 0; i < 100; i++ {
		p := m.CurrentProfile()
		r := execution("op", at(50), at(50.1), false)
		r.LoadDefinition = p.Definition
		r.ProfileStartTime = p.Started
		if p.Definition == second {
			blended++
		}
		s.DropOffOperation(r)
	}
	require.Positive(t, blended)
	require.NoError(t, s.Stop(time.Second))

	cards := s.IntervalScorecards()
	require.Contains(t, cards, "second")
	assert.Equal(t, blended, cards["second"].TotalOpsSuccessful)
	assert.Zero(t, cards["second"].TotalOpsLate, "a definition that is only blended in is not late")

	// results of the ending interval finish past its window and are late there
	assert.Equal(t, int64(100)-blended, cards["first"].TotalOpsLate)
	assert.Equal(t, int64(100), s.FinalScorecard().TotalOpsSuccessful)
}

func TestScoreboard_StopWithoutStartDrainsInline(t *testing.T) {
	s := New("web", fixedTiming())
	s.DropOffOperation(execution("a", at(20), at(21), false))
	require.NoError(t, s.Stop(time.Second))
	assert.Equal(t, int64(1), s.FinalScorecard().TotalOpsSuccessful)

	s.DropOffOperation(execution("a", at(20), at(21), false))
	assert.Equal(t, int64(1), s.DropOffStatistics().Rejected)
	assert.NoError(t, s.Stop(time.Second), "second Stop is a no-op")
}

func TestScoreboard_WaitTimes(t *testing.T) {
	s := newTestScoreboard(t, WithWaitTimeSampling(sampling.NewFactory(sampling.KindAll, 1, 1)))

	s.DropOffWaitTime(at(5), "browse", time.Second) // ramp-up, ignored
	s.DropOffWaitTime(at(20), "browse", 100*time.Millisecond)
	s.DropOffWaitTime(at(21), "browse", 300*time.Millisecond)
	s.DropOffWaitTime(at(22), "checkout", 50*time.Millisecond)
	require.NoError(t, s.Stop(time.Second))

	waits := s.WaitTimeStatistics()
	require.Len(t, waits, 2)
	assert.Equal(t, "browse", waits[0].Name)
	assert.Equal(t, int64(2), waits[0].Count)
	assert.Equal(t, 200*time.Millisecond, waits[0].AverageWait)
	assert.Equal(t, 100*time.Millisecond, waits[0].MinWait)
	assert.Equal(t, 300*time.Millisecond, waits[0].MaxWait)
	assert.Equal(t, 300*time.Millisecond, waits[0].P99)
}

func TestCollector(t *testing.T) {
	s := newTestScoreboard(t)
	s.DropOffOperation(execution("a", at(20), at(21), false))
	s.DropOffOperation(execution("a", at(1), at(2), false))
	require.NoError(t, s.Stop(time.Second))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(s.Collector()))

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, family := range families {
		for _, m := range family.GetMetric() {
			key := family.GetName()
			for _, label := range m.GetLabel() {
				if label.GetName() == "label" {
					key += "/" + label.GetValue()
				}
			}
			switch {
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, 2.0, values["squall_scoreboard_dropoffs_total"])
	assert.Equal(t, 1.0, values["squall_scoreboard_processed_total/steady-state"])
	assert.Equal(t, 1.0, values["squall_scoreboard_processed_total/ramp-up"])
	assert.Equal(t, 0.0, values["squall_scoreboard_backlog"])
}

// failingOperation always returns an error.
type failingOperation struct{}

func (failingOperation) Name() string                  { return "always-fails" }
func (failingOperation) Index() int                    { return 0 }
func (failingOperation) Request() string               { return "" }
func (failingOperation) Prepare() error                { return nil }
func (failingOperation) Execute(context.Context) error { return errors.New("refused") }

type failingGenerator struct {
	issued atomic.Int64
}

func (g *failingGenerator) Initialize() error { return nil }
func (g *failingGenerator) NextRequest(int, *load.Definition) (bench.Operation, error) {
	g.issued.Add(1)
	return failingOperation{}, nil
}
func (g *failingGenerator) ThinkTime() time.Duration { return time.Millisecond }
func (g *failingGenerator) CycleTime() time.Duration { return time.Millisecond }
func (g *failingGenerator) Dispose() error           { return nil }

type fixedProfile struct{ def *load.Definition }

func (p fixedProfile) CurrentProfile() load.Profile { return load.ProfileOf(p.def) }

func TestScoreboard_AlwaysFailingOperation(t *testing.T) {
	timing := bench.NewTiming(time.Now(), 0, time.Hour, 0)
	s := New("web", timing, WithLogger(zaptest.NewLogger(t)), WithBackoff(time.Millisecond))
	s.Start()

	gen := &failingGenerator{}
	agent := bench.NewAgent(bench.AgentConfig{Timing: timing, Logger: zaptest.NewLogger(t)},
		gen, fixedProfile{load.NewDefinition(time.Hour, 0, 1, "")}, s, nil)
	go agent.Run(context.Background())

	require.Eventually(t, func() bool { return gen.issued.Load() >= 25 }, 5*time.Second, time.Millisecond)
	agent.RequestStop()
	require.True(t, agent.WaitForStop(time.Second), "the agent loop survives failures and stops on request")
	require.NoError(t, s.Stop(time.Second))

	n := gen.issued.Load()
	final := s.FinalScorecard()
	assert.Equal(t, n, final.TotalOpsFailed)
	assert.Zero(t, final.TotalOpsSuccessful)
	assert.Equal(t, n, final.Operation("always-fails").Failed)
}

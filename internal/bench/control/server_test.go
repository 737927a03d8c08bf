package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wesleyorama2/squall/internal/bench"
)

type fakeBenchmark struct {
	mu      sync.Mutex
	wait    bool
	started bool
	timing  *bench.Timing
}

func (f *fakeBenchmark) StartBenchmark() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return false
	}
	f.started = true
	return true
}

func (f *fakeBenchmark) WaitsForStart() bool     { return f.wait }
func (f *fakeBenchmark) RampUp() time.Duration   { return 10 * time.Second }
func (f *fakeBenchmark) Duration() time.Duration { return 2 * time.Minute }
func (f *fakeBenchmark) RampDown() time.Duration { return 5 * time.Second }
func (f *fakeBenchmark) TrackNames() []string    { return []string{"web", "api"} }
func (f *fakeBenchmark) RunID() string           { return "run-1" }

func (f *fakeBenchmark) Timing() (bench.Timing, bool) {
	if f.timing == nil {
		return bench.Timing{}, false
	}
	return *f.timing, true
}

func newTestServer(t *testing.T, b Benchmark, collectors ...prometheus.Collector) *httptest.Server {
	t.Helper()
	s, err := NewServer(b, zaptest.NewLogger(t), collectors...)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func TestStart(t *testing.T) {
	b := &fakeBenchmark{wait: true}
	ts := newTestServer(t, b)

	resp, err := http.Post(ts.URL+"/benchmark/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, b.started)

	resp, err = http.Post(ts.URL+"/benchmark/start", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "benchmark already started", body["error"])
}

func TestStartWithoutGate(t *testing.T) {
	b := &fakeBenchmark{}
	ts := newTestServer(t, b)

	resp, err := http.Post(ts.URL+"/benchmark/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.False(t, b.started)
}

func TestStartRejectsGet(t *testing.T) {
	ts := newTestServer(t, &fakeBenchmark{wait: true})

	resp, err := http.Get(ts.URL + "/benchmark/start")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestTiming(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		ts := newTestServer(t, &fakeBenchmark{})

		var got TimingResponse
		getJSON(t, ts.URL+"/benchmark/timing", &got)
		assert.Equal(t, "10s", got.RampUp)
		assert.Equal(t, "2m0s", got.Duration)
		assert.Equal(t, "5s", got.RampDown)
		assert.False(t, got.Started)
		assert.Nil(t, got.Actual)
	})

	t.Run("after start", func(t *testing.T) {
		start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		timing := bench.NewTiming(start, 10*time.Second, 2*time.Minute, 5*time.Second)
		ts := newTestServer(t, &fakeBenchmark{timing: &timing})

		var got TimingResponse
		getJSON(t, ts.URL+"/benchmark/timing", &got)
		assert.True(t, got.Started)
		assert.Equal(t, "run-1", got.RunID)
		require.NotNil(t, got.Actual)
		assert.True(t, got.Actual.StartSteadyState.Equal(start.Add(10*time.Second)))
		assert.True(t, got.Actual.EndRun.Equal(start.Add(2*time.Minute+15*time.Second)))
	})
}

func TestTracks(t *testing.T) {
	ts := newTestServer(t, &fakeBenchmark{})

	var got map[string][]string
	getJSON(t, ts.URL+"/benchmark/tracks", &got)
	assert.Equal(t, []string{"web", "api"}, got["tracks"])
}

func TestMetrics(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "squall_test_operations_total",
		Help: "Test counter.",
	})
	counter.Add(3)
	ts := newTestServer(t, &fakeBenchmark{}, counter)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "squall_test_operations_total 3")
}

func TestDuplicateCollector(t *testing.T) {
	opts := prometheus.CounterOpts{Name: "squall_dup_total", Help: "dup"}
	_, err := NewServer(&fakeBenchmark{}, nil, prometheus.NewCounter(opts), prometheus.NewCounter(opts))
	assert.Error(t, err)
}

func TestServerLifecycle(t *testing.T) {
	b := &fakeBenchmark{wait: true}
	s, err := NewServer(b, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Nil(t, s.Addr())

	require.NoError(t, s.Start("127.0.0.1:0"))
	addr := s.Addr()
	require.NotNil(t, addr)

	resp, err := http.Post(fmt.Sprintf("http://%s/benchmark/start", addr), "application/json", strings.NewReader(""))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	_, err = http.Get(fmt.Sprintf("http://%s/benchmark/tracks", addr))
	assert.Error(t, err)
}

func TestShutdownWithoutStart(t *testing.T) {
	s, err := NewServer(&fakeBenchmark{}, nil)
	require.NoError(t, err)
	assert.NoError(t, s.Shutdown(context.Background()))
}

func getJSON(t *testing.T, url string, v interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

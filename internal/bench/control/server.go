// Package control serves the HTTP control surface of a benchmark run.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wesleyorama2/squall/internal/bench"
)

// Benchmark is the part of the engine the control surface drives.
type Benchmark interface {
	StartBenchmark() bool
	WaitsForStart() bool
	RampUp() time.Duration
	Duration() time.Duration
	RampDown() time.Duration
	TrackNames() []string
	Timing() (bench.Timing, bool)
	RunID() string
}

// TimingResponse is the body of GET /benchmark/timing.
type TimingResponse struct {
	RampUp   string        `json:"rampUp"`
	Duration string        `json:"duration"`
	RampDown string        `json:"rampDown"`
	Started  bool          `json:"started"`
	RunID    string        `json:"runId,omitempty"`
	Actual   *bench.Timing `json:"actual,omitempty"`
}

// Server exposes start, timing, tracks and prometheus metrics over HTTP.
type Server struct {
	benchmark Benchmark
	registry  *prometheus.Registry
	logger    *zap.Logger

	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewServer creates a server for b. The given collectors are registered on a
// private prometheus registry served at /metrics.
func NewServer(b Benchmark, logger *zap.Logger, collectors ...prometheus.Collector) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Server{
		benchmark: b,
		registry:  registry,
		logger:    logger.With(zap.String("component", "control")),
	}, nil
}

// Routes returns the control router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/benchmark", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Get("/timing", s.handleTiming)
		r.Get("/tracks", s.handleTracks)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.listener = ln
	s.done = make(chan struct{})
	s.srv = &http.Server{
		Handler:      s.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("control server listening", zap.String("address", ln.Addr().String()))
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.benchmark.WaitsForStart() {
		writeJSONError(w, "benchmark does not wait for a start signal", http.StatusConflict)
		return
	}
	if !s.benchmark.StartBenchmark() {
		writeJSONError(w, "benchmark already started", http.StatusConflict)
		return
	}
	s.logger.Info("start signal received", zap.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleTiming(w http.ResponseWriter, _ *http.Request) {
	resp := TimingResponse{
		RampUp:   s.benchmark.RampUp().String(),
		Duration: s.benchmark.Duration().String(),
		RampDown: s.benchmark.RampDown().String(),
	}
	if timing, ok := s.benchmark.Timing(); ok {
		resp.Started = true
		resp.RunID = s.benchmark.RunID()
		resp.Actual = &timing
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTracks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"tracks": s.benchmark.TrackNames()})
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

package workload

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/wesleyorama2/squall/internal/bench"
	"github.com/wesleyorama2/squall/internal/bench/load"
	squallhttp "github.com/wesleyorama2/squall/internal/http"
)

// HTTPName is the registry name of the HTTP workload.
const HTTPName = "http"

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.Status)
}

// HTTPRequestSpec describes one request type of the http workload.
type HTTPRequestSpec struct {
	Name    string
	URL     string
	Headers map[string]string
	weights weights
}

// httpParams are the parsed params of an http target:
//
//	{"baseUrl": "http://localhost:8080", "timeout": "5s",
//	 "headers": {"Authorization": "Bearer x"},
//	 "requests": [{"name": "home", "url": "/", "weight": 2, "mixes": {"api": 0}}]}
type httpParams struct {
	BaseURL  string
	Timeout  time.Duration
	Headers  map[string]string
	Requests []HTTPRequestSpec
}

func parseHTTPParams(params []byte) (*httpParams, error) {
	root, err := parseParams(params)
	if err != nil {
		return nil, err
	}

	p := &httpParams{
		BaseURL: root.Get("baseUrl").String(),
		Headers: stringMap(root.Get("headers")),
	}
	if p.Timeout, err = durationParam(root, "timeout", 10*time.Second); err != nil {
		return nil, err
	}

	reqs := root.Get("requests")
	if !reqs.IsArray() || len(reqs.Array()) == 0 {
		return nil, fmt.Errorf("requests must be a non-empty array")
	}
	for i, r := range reqs.Array() {
		spec := HTTPRequestSpec{
			Name:    r.Get("name").String(),
			URL:     r.Get("url").String(),
			Headers: stringMap(r.Get("headers")),
		}
		if spec.URL == "" {
			return nil, fmt.Errorf("requests[%d]: url is required", i)
		}
		if spec.Name == "" {
			spec.Name = "GET " + spec.URL
		}
		if spec.weights, err = weightsParam(r); err != nil {
			return nil, fmt.Errorf("requests[%d]: %w", i, err)
		}
		if _, err := squallhttp.NewRequest(http.MethodGet, spec.URL).URL(p.BaseURL); err != nil {
			return nil, fmt.Errorf("requests[%d]: %w", i, err)
		}
		p.Requests = append(p.Requests, spec)
	}
	return p, nil
}

func stringMap(r gjson.Result) map[string]string {
	m := make(map[string]string)
	r.ForEach(func(key, value gjson.Result) bool {
		m[key.String()] = value.String()
		return true
	})
	return m
}

// clientCache shares one client between the agents of a target. Agents are
// built with identical params, so the params text is the key.
type clientCache struct {
	mu      sync.Mutex
	clients map[string]*sharedClient
}

type sharedClient struct {
	client *squallhttp.Client
	refs   int
}

func newClientCache() *clientCache {
	return &clientCache{clients: make(map[string]*sharedClient)}
}

func (c *clientCache) acquire(key string, p *httpParams) *squallhttp.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sc, ok := c.clients[key]; ok {
		sc.refs++
		return sc.client
	}

	opts := []squallhttp.ClientOption{
		squallhttp.WithBaseURL(p.BaseURL),
		squallhttp.WithTimeout(p.Timeout),
		squallhttp.WithHeader("User-Agent", "squall"),
	}
	for k, v := range p.Headers {
		opts = append(opts, squallhttp.WithHeader(k, v))
	}
	sc := &sharedClient{client: squallhttp.NewClient(opts...), refs: 1}
	c.clients[key] = sc
	return sc.client
}

func (c *clientCache) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sc, ok := c.clients[key]
	if !ok {
		return
	}
	sc.refs--
	if sc.refs <= 0 {
		sc.client.CloseIdleConnections()
		delete(c.clients, key)
	}
}

// HTTPGenerator issues GET requests against the configured URLs.
type HTTPGenerator struct {
	cache  *clientCache
	key    string
	client *squallhttp.Client
	params *httpParams
	picker *picker
	pauses *pauses
	logger *zap.Logger
}

// NewHTTPFactory returns the "http" factory. Generators built by one factory
// with the same params share a client.
func NewHTTPFactory() bench.GeneratorFactory {
	cache := newClientCache()
	return func(params []byte, opts bench.GeneratorOptions) (bench.Generator, error) {
		p, err := parseHTTPParams(params)
		if err != nil {
			return nil, err
		}

		logger := opts.Logger
		if logger == nil {
			logger = zap.NewNop()
		}

		w := make([]weights, len(p.Requests))
		for i, r := range p.Requests {
			w[i] = r.weights
		}

		return &HTTPGenerator{
			cache:  cache,
			key:    opts.TargetID + "\x00" + string(params),
			params: p,
			picker: &picker{weights: w, rng: rand.New(rand.NewSource(opts.Seed))},
			pauses: &pauses{
				meanThink: opts.MeanThinkTime,
				meanCycle: opts.MeanCycleTime,
				rng:       rand.New(rand.NewSource(opts.Seed + 1)),
			},
			logger: logger.With(zap.String("generator", HTTPName), zap.Int("agent", opts.AgentID)),
		}, nil
	}
}

func (g *HTTPGenerator) Initialize() error {
	g.client = g.cache.acquire(g.key, g.params)
	g.logger.Debug("http generator ready",
		zap.String("baseUrl", g.params.BaseURL),
		zap.Int("requests", len(g.params.Requests)))
	return nil
}

func (g *HTTPGenerator) NextRequest(_ int, profile *load.Definition) (bench.Operation, error) {
	if g.client == nil {
		return nil, fmt.Errorf("http generator not initialized")
	}
	i := g.picker.next(profile)
	if i < 0 {
		return nil, nil
	}
	return &httpOperation{spec: &g.params.Requests[i], index: i, client: g.client}, nil
}

func (g *HTTPGenerator) ThinkTime() time.Duration { return g.pauses.think() }
func (g *HTTPGenerator) CycleTime() time.Duration { return g.pauses.cycle() }

func (g *HTTPGenerator) Dispose() error {
	if g.client != nil {
		g.cache.release(g.key)
		g.client = nil
	}
	return nil
}

type httpOperation struct {
	spec   *HTTPRequestSpec
	index  int
	client *squallhttp.Client
	req    *squallhttp.Request
}

func (o *httpOperation) Name() string    { return o.spec.Name }
func (o *httpOperation) Index() int      { return o.index }
func (o *httpOperation) Request() string { return "GET " + o.spec.URL }

func (o *httpOperation) Prepare() error {
	o.req = squallhttp.NewRequest(http.MethodGet, o.spec.URL)
	for k, v := range o.spec.Headers {
		o.req.WithHeader(k, v)
	}
	return nil
}

func (o *httpOperation) Execute(ctx context.Context) error {
	resp, err := o.client.Do(ctx, o.req)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}

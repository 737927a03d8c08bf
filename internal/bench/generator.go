package bench

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/squall/internal/bench/load"
)

// Generator produces the operations of one agent. Each agent owns its
// generator, so implementations need not be safe for concurrent use.
type Generator interface {
	Initialize() error

	// NextRequest returns the next operation given the index of the previous
	// one (-1 before the first) and the load definition the operation will run
	// under, which selects the mix. A nil operation means there is nothing to
	// do right now; the agent waits one think time and asks again.
	NextRequest(lastOperationIndex int, profile *load.Definition) (Operation, error)

	// ThinkTime is the pause after a synchronous operation.
	ThinkTime() time.Duration

	// CycleTime is the pause before an asynchronous operation is submitted.
	CycleTime() time.Duration

	Dispose() error
}

// LoadProfiler answers which load definition is in effect. load.Manager
// implements it.
type LoadProfiler interface {
	CurrentProfile() load.Profile
}

// GeneratorOptions carries what a generator may need from its target.
type GeneratorOptions struct {
	TargetID      string
	AgentID       int
	MeanThinkTime time.Duration
	MeanCycleTime time.Duration

	Logger *zap.Logger
	Seed   int64
}

// GeneratorFactory builds a generator from raw JSON parameters.
type GeneratorFactory func(params []byte, opts GeneratorOptions) (Generator, error)

// Registry maps generator names used in configuration to factories.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]GeneratorFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]GeneratorFactory)}
}

// Register adds a factory. Registering the same name twice is an error.
func (r *Registry) Register(name string, factory GeneratorFactory) error {
	if name == "" {
		return fmt.Errorf("generator name must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("generator %q: factory must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("generator %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister is like Register but panics on error. It is meant for
// package-level wiring.
func (r *Registry) MustRegister(name string, factory GeneratorFactory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// New builds a generator by name.
func (r *Registry) New(name string, params []byte, opts GeneratorOptions) (Generator, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown generator %q (registered: %v)", name, r.Names())
	}

	gen, err := factory(params, opts)
	if err != nil {
		return nil, fmt.Errorf("create generator %q: %w", name, err)
	}
	return gen, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

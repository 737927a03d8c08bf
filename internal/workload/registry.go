package workload

import (
	"github.com/wesleyorama2/squall/internal/bench"
)

// DefaultRegistry returns a registry with every built-in generator.
func DefaultRegistry() *bench.Registry {
	r := bench.NewRegistry()
	r.MustRegister(SampleName, NewSampleGenerator)
	r.MustRegister(HTTPName, NewHTTPFactory())
	return r
}

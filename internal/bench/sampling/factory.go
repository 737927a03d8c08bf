package sampling

import (
	"math/rand"
	"sync"
)

// Factory creates a fresh strategy, one per operation name.
type Factory func() Strategy

// NewFactory returns a factory for the given kind. meanInterval only applies
// to Poisson. Each Poisson sampler gets its own random source seeded from
// seed, so runs with the same seed sample the same positions.
func NewFactory(kind Kind, meanInterval float64, seed int64) Factory {
	switch kind {
	case KindAll:
		return func() Strategy { return NewAll() }
	case KindHistogram:
		return func() Strategy { return NewHistogram() }
	case KindNone:
		return func() Strategy { return Null{} }
	default:
		var mu sync.Mutex
		seeds := rand.New(rand.NewSource(seed))
		return func() Strategy {
			mu.Lock()
			s := seeds.Int63()
			mu.Unlock()
			return NewPoisson(meanInterval, rand.New(rand.NewSource(s)))
		}
	}
}

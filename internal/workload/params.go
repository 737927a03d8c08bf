// Package workload provides the generators that can be named in a target's
// configuration.
package workload

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/squall/internal/bench/config"
	"github.com/wesleyorama2/squall/internal/bench/load"
)

// parseParams checks that params is a JSON object. Empty params are an
// empty object.
func parseParams(params []byte) (gjson.Result, error) {
	if len(params) == 0 {
		return gjson.Parse("{}"), nil
	}
	if !gjson.ValidBytes(params) {
		return gjson.Result{}, fmt.Errorf("params are not valid JSON")
	}
	root := gjson.ParseBytes(params)
	if !root.IsObject() {
		return gjson.Result{}, fmt.Errorf("params must be a JSON object")
	}
	return root, nil
}

// durationParam reads a duration: strings use duration syntax, numbers are
// milliseconds.
func durationParam(r gjson.Result, field string, def time.Duration) (time.Duration, error) {
	v := r.Get(field)
	switch v.Type {
	case gjson.Null:
		return def, nil
	case gjson.Number:
		if v.Float() < 0 {
			return 0, fmt.Errorf("%s must not be negative", field)
		}
		return time.Duration(v.Float() * float64(time.Millisecond)), nil
	case gjson.String:
		d, err := config.ParseDurationString(v.String())
		if err != nil {
			return 0, fmt.Errorf("%s: %w", field, err)
		}
		if d < 0 {
			return 0, fmt.Errorf("%s must not be negative", field)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("%s must be a duration string or milliseconds", field)
	}
}

// weights holds an operation's default weight and per-mix overrides.
type weights struct {
	def   float64
	mixes map[string]float64
}

func weightsParam(r gjson.Result) (weights, error) {
	w := weights{def: 1, mixes: make(map[string]float64)}
	if v := r.Get("weight"); v.Exists() {
		if v.Type != gjson.Number || v.Float() < 0 {
			return w, fmt.Errorf("weight must be a non-negative number")
		}
		w.def = v.Float()
	}

	var err error
	r.Get("mixes").ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.Number || value.Float() < 0 {
			err = fmt.Errorf("mixes.%s must be a non-negative number", key.String())
			return false
		}
		w.mixes[key.String()] = value.Float()
		return true
	})
	return w, err
}

func (w weights) forMix(mix string) float64 {
	if v, ok := w.mixes[mix]; ok {
		return v
	}
	return w.def
}

// picker chooses entries at random by weight under the mix of a load
// definition.
type picker struct {
	weights []weights
	rng     *rand.Rand
}

// next returns an index, or -1 if every weight is zero in profile's mix. A
// nil profile selects the default weights.
func (p *picker) next(profile *load.Definition) int {
	mix := ""
	if profile != nil {
		mix = profile.MixName
	}

	total := 0.0
	for _, w := range p.weights {
		total += w.forMix(mix)
	}
	if total <= 0 {
		return -1
	}

	x := p.rng.Float64() * total
	for i, w := range p.weights {
		x -= w.forMix(mix)
		if x < 0 {
			return i
		}
	}
	return len(p.weights) - 1
}

// pauses draws exponentially distributed think and cycle times around the
// configured means.
type pauses struct {
	meanThink time.Duration
	meanCycle time.Duration
	rng       *rand.Rand
}

func (p *pauses) think() time.Duration { return exponential(p.rng, p.meanThink) }
func (p *pauses) cycle() time.Duration { return exponential(p.rng, p.meanCycle) }

func exponential(rng *rand.Rand, mean time.Duration) time.Duration {
	if mean <= 0 {
		return 0
	}
	return time.Duration(rng.ExpFloat64() * float64(mean))
}

package evaluator

import (
	"math/rand"
	"sort"

	"github.com/cespare/xxhash/v2"

	"stackml/pkg/model"
)

// Distribution is a source of values for one hyperparameter.
type Distribution interface {
	Sample(r *rand.Rand) any
}

// RandInt draws integers uniformly from [Low, High).
type RandInt struct{ Low, High int }

func (d RandInt) Sample(r *rand.Rand) any {
	if d.High <= d.Low {
		return d.Low
	}
	return d.Low + r.Intn(d.High-d.Low)
}

// Uniform draws floats uniformly from [Low, High).
type Uniform struct{ Low, High float64 }

func (d Uniform) Sample(r *rand.Rand) any { return d.Low + r.Float64()*(d.High-d.Low) }

// Choice draws one of Values uniformly.
type Choice struct{ Values []any }

func (d Choice) Sample(r *rand.Rand) any {
	if len(d.Values) == 0 {
		return nil
	}
	return d.Values[r.Intn(len(d.Values))]
}

// ParamDists maps hyperparameter names to distributions.
type ParamDists map[string]Distribution

// draw samples n parameter sets. Keys are sampled in sorted order so the
// draws depend only on the seed and the distributions.
func (pd ParamDists) draw(n int, seed int64) []model.Params {
	if len(pd) == 0 {
		return []model.Params{{}}
	}
	keys := make([]string, 0, len(pd))
	for k := range pd {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	r := rand.New(rand.NewSource(seed))
	out := make([]model.Params, n)
	for i := range out {
		p := make(model.Params, len(keys))
		for _, k := range keys {
			p[k] = pd[k].Sample(r)
		}
		out[i] = p
	}
	return out
}

// drawSeed derives the draw seed of one estimator from the evaluator seed,
// so estimators with equal distributions do not share a stream.
func drawSeed(seed int64, name string) int64 {
	return seed ^ int64(xxhash.Sum64String(name))
}

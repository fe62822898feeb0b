package model

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Estimator is a supervised model. Clone returns an unfitted copy carrying
// the same hyperparameters, so one template can be fit independently on many
// data slices.
type Estimator interface {
	// Kind is the lower-case model family, e.g. "ols". It is the base for
	// the estimator's name inside an ensemble.
	Kind() string
	Fit(X mat.Matrix, y []float64) error
	Predict(X mat.Matrix) ([]float64, error)
	Clone() Estimator
	Params() Params
	SetParams(Params) error
}

// Transformer is a preprocessing step: fit on train, transform both.
type Transformer interface {
	Fit(X mat.Matrix, y []float64) error
	Transform(X mat.Matrix) (*mat.Dense, error)
	Clone() Transformer
}

// Named pairs an estimator with its unique name inside an ensemble.
type Named struct {
	Name      string
	Estimator Estimator
}

// NameEstimators names each estimator by its Kind. Kinds that occur more
// than once get a 1-based suffix in input order ("ols-1", "ols-2").
func NameEstimators(ests []Estimator) []Named {
	counts := make(map[string]int)
	for _, e := range ests {
		counts[strings.ToLower(e.Kind())]++
	}

	seen := make(map[string]int)
	out := make([]Named, len(ests))
	for i, e := range ests {
		kind := strings.ToLower(e.Kind())
		name := kind
		if counts[kind] > 1 {
			seen[kind]++
			name = fmt.Sprintf("%s-%d", kind, seen[kind])
		}
		out[i] = Named{Name: name, Estimator: e}
	}
	return out
}

// CloneAll returns unfitted copies of the named estimators.
func CloneAll(named []Named) []Named {
	out := make([]Named, len(named))
	for i, n := range named {
		out[i] = Named{Name: n.Name, Estimator: n.Estimator.Clone()}
	}
	return out
}

// Names returns the names in order.
func Names(named []Named) []string {
	out := make([]string, len(named))
	for i, n := range named {
		out[i] = n.Name
	}
	return out
}

package model

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"stackml/pkg/core"
)

// KNN regresses on the mean label of the K nearest training rows
// (Euclidean distance). With 0/1 labels the output is the neighbour vote
// share.
type KNN struct {
	K int

	X [][]float64
	y []float64
}

// NewKNN creates and returns a new KNN model.
func NewKNN(k int) *KNN {
	return &KNN{K: k}
}

func (m *KNN) Kind() string { return "knn" }

// Fit stores copies of the training data and labels.
func (m *KNN) Fit(X mat.Matrix, y []float64) error {
	r, _ := X.Dims()
	if r != len(y) {
		return errors.New("knn: the number of feature vectors must match the number of labels")
	}
	if m.K < 1 {
		return fmt.Errorf("knn: k must be positive, got %d", m.K)
	}
	if m.K > r {
		return fmt.Errorf("knn: k=%d exceeds %d training rows", m.K, r)
	}
	m.X = denseRows(X)
	m.y = append([]float64(nil), y...)
	return nil
}

// Predict averages the labels of the K nearest neighbours of each row.
func (m *KNN) Predict(X mat.Matrix) ([]float64, error) {
	if m.X == nil {
		return nil, core.NotFitted("knn predict")
	}
	r, c := X.Dims()
	if len(m.X) > 0 && c != len(m.X[0]) {
		return nil, fmt.Errorf("knn: %d features, fitted on %d", c, len(m.X[0]))
	}
	out := make([]float64, r)
	forEachRow(r, func(i int) {
		out[i] = m.predictSingle(mat.Row(nil, i, X))
	})
	return out, nil
}

// predictSingle finds the K-nearest neighbors for a single test point.
func (m *KNN) predictSingle(xi []float64) float64 {
	type pair struct {
		d float64
		v float64
	}

	// sorted by distance, ties broken by training order
	nbrs := make([]pair, 0, m.K+1)
	for j, xj := range m.X {
		d := euclidSquared(xi, xj)
		if len(nbrs) < m.K {
			nbrs = append(nbrs, pair{d: d, v: m.y[j]})
			sort.SliceStable(nbrs, func(a, b int) bool { return nbrs[a].d < nbrs[b].d })
		} else if d < nbrs[len(nbrs)-1].d {
			nbrs[len(nbrs)-1] = pair{d: d, v: m.y[j]}
			sort.SliceStable(nbrs, func(a, b int) bool { return nbrs[a].d < nbrs[b].d })
		}
	}

	sum := 0.0
	for _, p := range nbrs {
		sum += p.v
	}
	return sum / float64(len(nbrs))
}

// euclidSquared computes the squared Euclidean distance between two vectors.
func euclidSquared(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func (m *KNN) Clone() Estimator { return NewKNN(m.K) }

func (m *KNN) Params() Params { return Params{"k": m.K} }

func (m *KNN) SetParams(p Params) error {
	for k, v := range p {
		switch k {
		case "k":
			n, err := ToInt(v)
			if err != nil {
				return paramError(m.Kind(), k, err)
			}
			m.K = n
		default:
			return unknownParam(m.Kind(), k)
		}
	}
	return nil
}

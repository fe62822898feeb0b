// Package synth generates deterministic datasets for tests and demos.
package synth

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"stackml/pkg/core"
)

// Truth holds the generating parameters of a linear dataset.
type Truth struct {
	W []float64
	B float64
}

// Linear creates n samples with d features and a linear relationship plus
// Gaussian noise. Weights are drawn from [-2,2], the bias from [-1,1] and
// features from [-5,5].
func Linear(n, d int, noise float64, seed int64) (*core.Frame, []float64, Truth) {
	rnd := rand.New(rand.NewSource(seed))
	t := Truth{W: make([]float64, d)}
	for i := range t.W {
		t.W[i] = rnd.Float64()*4 - 2
	}
	t.B = rnd.Float64()*2 - 1

	X := mat.NewDense(n, d, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		// y = w^T x + b + noise
		y[i] = t.B
		for j := 0; j < d; j++ {
			v := rnd.Float64()*10 - 5
			X.Set(i, j, v)
			y[i] += t.W[j] * v
		}
		y[i] += rnd.NormFloat64() * noise
	}
	return named(X), y, t
}

// Ramp creates n samples whose features grow with the row number, and a
// label that is an integer-weighted sum of the features. Rows are in
// increasing label order, so unshuffled folds extrapolate.
func Ramp(n, d int, seed int64) (*core.Frame, []float64, Truth) {
	rnd := rand.New(rand.NewSource(seed))
	t := Truth{W: make([]float64, d)}
	for j := range t.W {
		t.W[j] = float64(1 + rnd.Intn(4))
	}

	X := mat.NewDense(n, d, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			v := float64((i+1)*(j+1)) + rnd.Float64()
			X.Set(i, j, v)
			y[i] += t.W[j] * v
		}
	}
	return named(X), y, t
}

// Binary creates n samples with 0/1 labels separated by a random hyperplane
// through the origin.
func Binary(n, d int, seed int64) (*core.Frame, []float64) {
	rnd := rand.New(rand.NewSource(seed))
	w := make([]float64, d)
	for j := range w {
		w[j] = rnd.NormFloat64()
	}

	X := mat.NewDense(n, d, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		s := 0.0
		for j := 0; j < d; j++ {
			v := rnd.NormFloat64()
			X.Set(i, j, v)
			s += w[j] * v
		}
		if s > 0 {
			y[i] = 1
		}
	}
	return named(X), y
}

// Indexed attaches row labels "<prefix>0", "<prefix>1", ... to f.
func Indexed(f *core.Frame, prefix string) *core.Frame {
	f.Index = make([]string, f.Rows())
	for i := range f.Index {
		f.Index[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return f
}

func named(X *mat.Dense) *core.Frame {
	_, d := X.Dims()
	f := &core.Frame{Dense: X, Columns: make([]string, d)}
	for j := range f.Columns {
		f.Columns[j] = fmt.Sprintf("x%d", j)
	}
	return f
}

package model

import (
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"stackml/pkg/core"
	"stackml/pkg/nn"
	"stackml/pkg/optim"
)

// OLS is ordinary least squares. Offset is added to every feature before
// fitting and predicting, which makes it a convenient knob for tests of the
// search machinery: different offsets give different, deterministic scores.
type OLS struct {
	Offset       float64
	FitIntercept bool

	coef   []float64
	fitted bool
}

// NewOLS returns an OLS with the given offset and no intercept.
func NewOLS(offset float64) *OLS {
	return &OLS{Offset: offset}
}

func (m *OLS) Kind() string { return "ols" }

// Fit solves the least squares problem with a QR decomposition.
func (m *OLS) Fit(X mat.Matrix, y []float64) error {
	r, c := X.Dims()
	if r == 0 {
		return errors.New("ols: empty X")
	}
	if len(y) != r {
		return fmt.Errorf("ols: %d labels for %d rows", len(y), r)
	}

	cols := c
	if m.FitIntercept {
		cols++
	}
	A := mat.NewDense(r, cols, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			A.Set(i, j, X.At(i, j)+m.Offset)
		}
		if m.FitIntercept {
			A.Set(i, c, 1)
		}
	}
	b := mat.NewVecDense(r, append([]float64(nil), y...))

	var beta mat.VecDense
	if err := beta.SolveVec(A, b); err != nil {
		return fmt.Errorf("ols: %w", err)
	}
	m.coef = mat.Col(nil, 0, &beta)
	m.fitted = true
	return nil
}

// Predict returns X·coef with the offset applied.
func (m *OLS) Predict(X mat.Matrix) ([]float64, error) {
	if !m.fitted {
		return nil, core.NotFitted("ols predict")
	}
	r, c := X.Dims()
	want := len(m.coef)
	if m.FitIntercept {
		want--
	}
	if c != want {
		return nil, fmt.Errorf("ols: %d features, fitted on %d", c, want)
	}
	out := make([]float64, r)
	forEachRow(r, func(i int) {
		s := 0.0
		for j := 0; j < c; j++ {
			s += (X.At(i, j) + m.Offset) * m.coef[j]
		}
		if m.FitIntercept {
			s += m.coef[c]
		}
		out[i] = s
	})
	return out, nil
}

// Coef returns the fitted coefficients (intercept last when fitted).
func (m *OLS) Coef() []float64 { return append([]float64(nil), m.coef...) }

func (m *OLS) Clone() Estimator {
	return &OLS{Offset: m.Offset, FitIntercept: m.FitIntercept}
}

func (m *OLS) Params() Params {
	return Params{"offset": m.Offset, "fit_intercept": m.FitIntercept}
}

func (m *OLS) SetParams(p Params) error {
	for k, v := range p {
		var err error
		switch k {
		case "offset":
			m.Offset, err = ToFloat(v)
		case "fit_intercept":
			m.FitIntercept, err = ToBool(v)
		default:
			return unknownParam(m.Kind(), k)
		}
		if err != nil {
			return paramError(m.Kind(), k, err)
		}
	}
	return nil
}

// LinearRegression via mini-batch gradient descent. Seed fixes both the
// weight initialization and the batch order, so fits are reproducible.
type LinearRegression struct {
	Lr        float64
	Epochs    int
	BatchSize int
	Seed      int64

	W      []float64 // weights
	b      float64   // bias
	fitted bool
}

// NewLinearRegression initializes a new Linear Regression model with the specified parameters.
func NewLinearRegression(lr float64, epochs, batchSize int, seed int64) *LinearRegression {
	return &LinearRegression{Lr: lr, Epochs: epochs, BatchSize: batchSize, Seed: seed}
}

func (m *LinearRegression) Kind() string { return "linearregression" }

// Fit trains the model via mini-batch SGD.
func (m *LinearRegression) Fit(X mat.Matrix, y []float64) error {
	r, c := X.Dims()
	if r == 0 {
		return errors.New("linearregression: empty X")
	}
	if len(y) != r {
		return fmt.Errorf("linearregression: %d labels for %d rows", len(y), r)
	}
	if m.BatchSize < 1 || m.Epochs < 1 {
		return fmt.Errorf("linearregression: batch size %d and epochs %d must be positive", m.BatchSize, m.Epochs)
	}

	rnd := rand.New(rand.NewSource(m.Seed))
	m.W = make([]float64, c)
	for i := range m.W {
		m.W[i] = rnd.NormFloat64() * 0.01
	}
	m.b = 0
	opt := optim.NewSGD(m.Lr)
	rows := denseRows(X)

	for ep := 0; ep < m.Epochs; ep++ {
		perm := rnd.Perm(r)
		for s := 0; s < r; s += m.BatchSize {
			batch := perm[s:min(s+m.BatchSize, r)]
			yb := make([]float64, len(batch))
			yhat := make([]float64, len(batch))
			for k, i := range batch {
				yb[k] = y[i]
				yhat[k] = floats.Dot(m.W, rows[i]) + m.b
			}
			_, dy := nn.MSE(yb, yhat)

			gW := make([]float64, c)
			gb := 0.0
			for k, i := range batch {
				floats.AddScaled(gW, dy[k], rows[i])
				gb += dy[k]
			}
			opt.Step(m.W, gW)
			m.b -= m.Lr * gb
		}
	}
	m.fitted = true
	return nil
}

// Predict returns predictions for rows in X.
func (m *LinearRegression) Predict(X mat.Matrix) ([]float64, error) {
	if !m.fitted {
		return nil, core.NotFitted("linearregression predict")
	}
	r, c := X.Dims()
	if c != len(m.W) {
		return nil, fmt.Errorf("linearregression: %d features, fitted on %d", c, len(m.W))
	}
	pred := make([]float64, r)
	forEachRow(r, func(i int) {
		sum := m.b
		for j := 0; j < c; j++ {
			sum += m.W[j] * X.At(i, j)
		}
		pred[i] = sum
	})
	return pred, nil
}

// Bias returns the current bias value of the model.
func (m *LinearRegression) Bias() float64 {
	return m.b
}

func (m *LinearRegression) Clone() Estimator {
	return NewLinearRegression(m.Lr, m.Epochs, m.BatchSize, m.Seed)
}

func (m *LinearRegression) Params() Params {
	return Params{"lr": m.Lr, "epochs": m.Epochs, "batch_size": m.BatchSize, "seed": m.Seed}
}

func (m *LinearRegression) SetParams(p Params) error {
	for k, v := range p {
		var err error
		switch k {
		case "lr":
			m.Lr, err = ToFloat(v)
		case "epochs":
			m.Epochs, err = ToInt(v)
		case "batch_size":
			m.BatchSize, err = ToInt(v)
		case "seed":
			var s int
			s, err = ToInt(v)
			m.Seed = int64(s)
		default:
			return unknownParam(m.Kind(), k)
		}
		if err != nil {
			return paramError(m.Kind(), k, err)
		}
	}
	return nil
}

// forEachRow calls fn for every row index, split across GOMAXPROCS workers.
// fn must only write to state owned by row i.
func forEachRow(n int, fn func(i int)) {
	if n == 0 {
		return
	}
	var wg sync.WaitGroup
	workers := runtime.GOMAXPROCS(0)
	rowsPerWorker := (n + workers - 1) / workers

	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		end := min(start+rowsPerWorker, n)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// denseRows copies X into row slices for repeated access.
func denseRows(X mat.Matrix) [][]float64 {
	r, _ := X.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, X)
	}
	return rows
}

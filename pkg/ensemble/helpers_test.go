package ensemble

import (
	"errors"
	"math/rand"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"stackml/pkg/core"
	"stackml/pkg/model"
)

// memo remembers the row ids (column 0) it was fit on and predicts 1 for a
// seen row, 0 otherwise.
type memo struct {
	seen map[float64]bool
}

func (m *memo) Kind() string { return "memo" }

func (m *memo) Fit(X mat.Matrix, _ []float64) error {
	r, _ := X.Dims()
	m.seen = make(map[float64]bool, r)
	for i := 0; i < r; i++ {
		m.seen[X.At(i, 0)] = true
	}
	return nil
}

func (m *memo) Predict(X mat.Matrix) ([]float64, error) {
	if m.seen == nil {
		return nil, core.NotFitted("memo")
	}
	r, _ := X.Dims()
	out := make([]float64, r)
	for i := range out {
		if m.seen[X.At(i, 0)] {
			out[i] = 1
		}
	}
	return out, nil
}

func (m *memo) Clone() model.Estimator         { return &memo{} }
func (m *memo) Params() model.Params           { return model.Params{} }
func (m *memo) SetParams(p model.Params) error { return nil }

var errBoom = errors.New("boom")

// failing counts its fit calls and always fails.
type failing struct {
	calls *atomic.Int64
	panic bool
}

func newFailing() *failing { return &failing{calls: new(atomic.Int64)} }

func (f *failing) Kind() string { return "failing" }

func (f *failing) Fit(mat.Matrix, []float64) error {
	f.calls.Add(1)
	if f.panic {
		panic("fit exploded")
	}
	return errBoom
}

func (f *failing) Predict(mat.Matrix) ([]float64, error) { return nil, errBoom }
func (f *failing) Clone() model.Estimator                { return &failing{calls: f.calls, panic: f.panic} }
func (f *failing) Params() model.Params                  { return model.Params{} }
func (f *failing) SetParams(model.Params) error          { return nil }

// short fits but returns too few predictions.
type short struct{ memo }

func (s *short) Kind() string           { return "short" }
func (s *short) Clone() model.Estimator { return &short{} }
func (s *short) Predict(X mat.Matrix) ([]float64, error) {
	return []float64{1}, nil
}

// rowData returns n rows whose first column is the row number and whose
// label is linear in the second column.
func rowData(n int, seed int64) (*core.Frame, []float64) {
	rnd := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		v := rnd.Float64()*10 - 5
		X.Set(i, 0, float64(i))
		X.Set(i, 1, v)
		y[i] = 3*v + 0.5 + rnd.NormFloat64()*0.1
	}
	return &core.Frame{Dense: X}, y
}

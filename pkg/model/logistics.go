package model

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"stackml/pkg/core"
	"stackml/pkg/nn"
	"stackml/pkg/optim"
)

// LogisticRegression (binary) with sigmoid. Labels are 0/1. With Proba set,
// Predict returns p(y=1), which is usually what a stacking layer wants;
// otherwise it returns 0/1 labels at a 0.5 threshold.
type LogisticRegression struct {
	Lr        float64
	Epochs    int
	BatchSize int
	Seed      int64
	Proba     bool

	W      []float64 // weights
	b      float64   // bias
	fitted bool
}

// NewLogisticRegression returns a probability-producing logistic regression.
func NewLogisticRegression(lr float64, epochs, batchSize int, seed int64) *LogisticRegression {
	return &LogisticRegression{Lr: lr, Epochs: epochs, BatchSize: batchSize, Seed: seed, Proba: true}
}

func (m *LogisticRegression) Kind() string { return "logisticregression" }

// Fit trains the model using mini-batch gradient descent on the BCE loss.
func (m *LogisticRegression) Fit(X mat.Matrix, y []float64) error {
	r, c := X.Dims()
	if r == 0 {
		return errors.New("logisticregression: empty X")
	}
	if len(y) != r {
		return fmt.Errorf("logisticregression: %d labels for %d rows", len(y), r)
	}
	if m.BatchSize < 1 || m.Epochs < 1 {
		return fmt.Errorf("logisticregression: batch size %d and epochs %d must be positive", m.BatchSize, m.Epochs)
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return fmt.Errorf("logisticregression: label %v at row %d is not 0 or 1", v, i)
		}
	}

	rnd := rand.New(rand.NewSource(m.Seed))
	// small random weights break symmetry
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
			p := make([]float64, len(batch))
			for k, i := range batch {
				yb[k] = y[i]
				p[k] = nn.Sigmoid(floats.Dot(m.W, rows[i]) + m.b)
			}
			_, dy := nn.BCE(yb, p)

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

// PredictProba returns p(y=1) for each row of X.
func (m *LogisticRegression) PredictProba(X mat.Matrix) ([]float64, error) {
	if !m.fitted {
		return nil, core.NotFitted("logisticregression predict")
	}
	r, c := X.Dims()
	if c != len(m.W) {
		return nil, fmt.Errorf("logisticregression: %d features, fitted on %d", c, len(m.W))
	}
	out := make([]float64, r)
	forEachRow(r, func(i int) {
		sum := m.b
		for j := 0; j < c; j++ {
			sum += m.W[j] * X.At(i, j)
		}
		out[i] = nn.Sigmoid(sum)
	})
	return out, nil
}

// Predict returns probabilities or 0/1 labels depending on Proba.
func (m *LogisticRegression) Predict(X mat.Matrix) ([]float64, error) {
	proba, err := m.PredictProba(X)
	if err != nil || m.Proba {
		return proba, err
	}
	for i, p := range proba {
		if p >= 0.5 {
			proba[i] = 1
		} else {
			proba[i] = 0
		}
	}
	return proba, nil
}

func (m *LogisticRegression) Clone() Estimator {
	c := NewLogisticRegression(m.Lr, m.Epochs, m.BatchSize, m.Seed)
	c.Proba = m.Proba
	return c
}

func (m *LogisticRegression) Params() Params {
	return Params{
		"lr":         m.Lr,
		"epochs":     m.Epochs,
		"batch_size": m.BatchSize,
		"seed":       m.Seed,
		"proba":      m.Proba,
	}
}

func (m *LogisticRegression) SetParams(p Params) error {
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
		case "proba":
			m.Proba, err = ToBool(v)
		default:
			return unknownParam(m.Kind(), k)
		}
		if err != nil {
			return paramError(m.Kind(), k, err)
		}
	}
	return nil
}

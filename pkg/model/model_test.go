package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"stackml/pkg/core"
)

// linearData returns y = 2*x0 - 3*x1 + 1 with optional noise.
func linearData(n int, noise float64, seed int64) (*mat.Dense, []float64) {
	rnd := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a, b := rnd.Float64()*10-5, rnd.Float64()*10-5
		X.Set(i, 0, a)
		X.Set(i, 1, b)
		y[i] = 2*a - 3*b + 1 + rnd.NormFloat64()*noise
	}
	return X, y
}

func TestNameEstimators(t *testing.T) {
	named := NameEstimators([]Estimator{NewOLS(0), NewKNN(3), NewOLS(1)})
	assert.Equal(t, []string{"ols-1", "knn", "ols-2"}, Names(named))

	clones := CloneAll(named)
	require.Len(t, clones, 3)
	for i := range clones {
		assert.Equal(t, named[i].Name, clones[i].Name)
		assert.NotSame(t, named[i].Estimator, clones[i].Estimator)
		assert.Equal(t, named[i].Estimator.Params(), clones[i].Estimator.Params())
	}
}

func TestOLSRecoversCoefficients(t *testing.T) {
	X, y := linearData(50, 0, 1)
	m := &OLS{FitIntercept: true}
	require.NoError(t, m.Fit(X, y))

	assert.InDeltaSlice(t, []float64{2, -3, 1}, m.Coef(), 1e-9)

	pred, err := m.Predict(X)
	require.NoError(t, err)
	assert.InDeltaSlice(t, y, pred, 1e-9)
}

func TestOLSOffsetChangesFit(t *testing.T) {
	X, y := linearData(50, 0, 2)

	a, b := NewOLS(0), NewOLS(5)
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))

	pa, err := a.Predict(X)
	require.NoError(t, err)
	pb, err := b.Predict(X)
	require.NoError(t, err)
	assert.NotEqual(t, RMSE(y, pa), RMSE(y, pb))
}

func TestOLSErrors(t *testing.T) {
	m := NewOLS(0)
	_, err := m.Predict(mat.NewDense(1, 2, nil))
	assert.ErrorIs(t, err, core.ErrNotFitted)

	err = m.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4}), []float64{1})
	assert.Error(t, err)

	X, y := linearData(10, 0, 3)
	require.NoError(t, m.Fit(X, y))
	_, err = m.Predict(mat.NewDense(1, 3, nil))
	assert.Error(t, err)
}

func TestCloneIsUnfittedAndIndependent(t *testing.T) {
	X, y := linearData(20, 0, 4)
	m := NewOLS(1)
	require.NoError(t, m.Fit(X, y))

	c := m.Clone()
	_, err := c.Predict(X)
	assert.ErrorIs(t, err, core.ErrNotFitted)

	require.NoError(t, c.SetParams(Params{"offset": 9}))
	assert.Equal(t, 1.0, m.Offset)
}

func TestSetParams(t *testing.T) {
	tests := []struct {
		name    string
		est     Estimator
		params  Params
		wantErr bool
	}{
		{"ols offset int", NewOLS(0), Params{"offset": 4}, false},
		{"ols unknown", NewOLS(0), Params{"alpha": 1.0}, true},
		{"ols bad type", NewOLS(0), Params{"offset": "four"}, true},
		{"knn k", NewKNN(1), Params{"k": 5}, false},
		{"knn k float", NewKNN(1), Params{"k": 2.5}, true},
		{"linear lr", NewLinearRegression(0.1, 1, 1, 0), Params{"lr": 0.01, "epochs": 3, "seed": int64(4)}, false},
		{"logistic proba", NewLogisticRegression(0.1, 1, 1, 0), Params{"proba": false}, false},
		{"logistic proba bad", NewLogisticRegression(0.1, 1, 1, 0), Params{"proba": 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.est.SetParams(tt.params)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			got := tt.est.Params()
			for k, v := range tt.params {
				assert.EqualValues(t, v, got[k], k)
			}
		})
	}
}

func TestLinearRegressionSGD(t *testing.T) {
	X, y := linearData(200, 0.1, 5)
	m := NewLinearRegression(0.01, 50, 16, 7)
	require.NoError(t, m.Fit(X, y))

	pred, err := m.Predict(X)
	require.NoError(t, err)
	assert.Less(t, RMSE(y, pred), 0.5)

	// same seed, same weights
	m2 := m.Clone().(*LinearRegression)
	require.NoError(t, m2.Fit(X, y))
	assert.Equal(t, m.W, m2.W)
	assert.Equal(t, m.Bias(), m2.Bias())
}

func TestLogisticRegression(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	n := 200
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a, b := rnd.NormFloat64(), rnd.NormFloat64()
		X.Set(i, 0, a)
		X.Set(i, 1, b)
		if a+b > 0 {
			y[i] = 1
		}
	}
	m := NewLogisticRegression(0.5, 100, 20, 3)
	require.NoError(t, m.Fit(X, y))

	proba, err := m.Predict(X)
	require.NoError(t, err)
	for _, p := range proba {
		assert.True(t, p >= 0 && p <= 1)
	}
	assert.Greater(t, Accuracy(y, proba), 0.9)

	m.Proba = false
	labels, err := m.Predict(X)
	require.NoError(t, err)
	for _, l := range labels {
		assert.True(t, l == 0 || l == 1)
	}

	assert.Error(t, NewLogisticRegression(0.1, 1, 1, 0).Fit(X, make([]float64, n-1)))
	bad := append([]float64(nil), y...)
	bad[0] = 2
	assert.Error(t, NewLogisticRegression(0.1, 1, 1, 0).Fit(X, bad))
}

func TestKNN(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 10, 11})
	y := []float64{0, 2, 10, 12}

	m := NewKNN(2)
	require.NoError(t, m.Fit(X, y))
	pred, err := m.Predict(mat.NewDense(2, 1, []float64{0.4, 10.6}))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 11}, pred)

	assert.Error(t, NewKNN(5).Fit(X, y))
	_, err = NewKNN(1).Predict(X)
	assert.ErrorIs(t, err, core.ErrNotFitted)
}

func TestPCA(t *testing.T) {
	// points on the line x1 = 2*x0
	X := mat.NewDense(5, 2, []float64{0, 0, 1, 2, 2, 4, 3, 6, 4, 8})
	p := NewPCA(1)
	require.NoError(t, p.Fit(X, nil))
	assert.InDeltaSlice(t, []float64{2, 4}, p.Means, 1e-12)

	Z, err := p.Transform(X)
	require.NoError(t, err)
	r, c := Z.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 1, c)
	// projections are spaced by the segment length sqrt(5)
	assert.InDelta(t, math.Sqrt(5), math.Abs(Z.At(1, 0)-Z.At(0, 0)), 1e-9)
	assert.InDelta(t, 0, Z.At(2, 0), 1e-9)

	assert.Error(t, NewPCA(3).Fit(X, nil))
	_, err = NewPCA(1).Transform(X)
	assert.Error(t, err)
	assert.Equal(t, 1, p.Clone().(*PCA).K)
}

package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMSE(t *testing.T) {
	loss, grad := MSE([]float64{1, 2}, []float64{2, 2})
	assert.InDelta(t, 0.5, loss, 1e-12)
	assert.InDeltaSlice(t, []float64{1, 0}, grad, 1e-12)

	loss, grad = MSE(nil, nil)
	assert.Zero(t, loss)
	assert.Nil(t, grad)
}

func TestBCE(t *testing.T) {
	loss, grad := BCE([]float64{1, 0}, []float64{0.5, 0.5})
	assert.InDelta(t, math.Ln2, loss, 1e-12)
	assert.InDeltaSlice(t, []float64{-0.25, 0.25}, grad, 1e-12)

	// saturated probabilities are clamped
	loss, _ = BCE([]float64{1}, []float64{0})
	assert.False(t, math.IsInf(loss, 0))
}

func TestSigmoid(t *testing.T) {
	assert.Equal(t, 0.5, Sigmoid(0))
	assert.InDelta(t, 0.25, SigmoidPrime(0), 1e-12)
	assert.Greater(t, Sigmoid(10), 0.99)
}

package fingerprint

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"stackml/pkg/core"
)

func randomDense(r, c int, seed int64) *mat.Dense {
	rnd := rand.New(rand.NewSource(seed))
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rnd.NormFloat64()
	}
	return mat.NewDense(r, c, data)
}

func TestRoundTrip(t *testing.T) {
	X := randomDense(50, 3, 1)
	c := New(10)
	require.NoError(t, c.Fit(X))

	assert.True(t, c.IsTrain(X))
	assert.True(t, c.IsTrain(mat.DenseCopyOf(X)))
	assert.False(t, c.IsTrain(randomDense(50, 3, 2)))
}

func TestShapeMismatch(t *testing.T) {
	X := randomDense(20, 2, 1)
	c := New(5)
	require.NoError(t, c.Fit(X))

	assert.False(t, c.IsTrain(randomDense(21, 2, 1)))
	assert.False(t, c.IsTrain(randomDense(20, 3, 1)))
}

func TestSampledRowChange(t *testing.T) {
	X := randomDense(20, 2, 1)
	c := New(20)
	require.NoError(t, c.Fit(X))

	Y := mat.DenseCopyOf(X)
	Y.Set(7, 1, Y.At(7, 1)+1e-9)
	assert.False(t, c.IsTrain(Y))
}

func TestUnfitted(t *testing.T) {
	assert.False(t, New(3).IsTrain(randomDense(5, 1, 1)))
}

func TestSampleSizeErrors(t *testing.T) {
	X := randomDense(4, 2, 1)

	err := New(5).Fit(X)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	err = New(0).Fit(X)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	assert.NoError(t, New(4).Fit(X))
}

func TestPositionsEvenlySpaced(t *testing.T) {
	assert.Equal(t, []int{0, 25, 50, 75}, positions(100, 4))
	assert.Equal(t, []int{0, 1, 2}, positions(3, 3))
}

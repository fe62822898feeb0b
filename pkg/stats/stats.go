package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Mean computes the average of a slice; 0 when empty.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// Std computes the population standard deviation of a slice.
func Std(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	_, v := stat.PopMeanVariance(x, nil)
	return math.Sqrt(v)
}

// Percentile returns the p-th percentile (0-100) of x without modifying it.
func Percentile(x []float64, p float64) float64 {
	if len(x) == 0 {
		return 0
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	return stat.Quantile(p/100, stat.LinInterp, s, nil)
}

// Median returns the lower empirical median of x without modifying it.
func Median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	return stat.Quantile(0.5, stat.Empirical, s, nil)
}

// columnStats applies fn to every column of X.
func columnStats(X mat.Matrix, fn func(col []float64) (float64, float64)) (a, b []float64) {
	_, c := X.Dims()
	a, b = make([]float64, c), make([]float64, c)
	for j := 0; j < c; j++ {
		a[j], b[j] = fn(mat.Col(nil, j, X))
	}
	return a, b
}

// apply returns f(X[i][j], j) for every cell.
func apply(X mat.Matrix, f func(v float64, j int) float64) *mat.Dense {
	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, f(X.At(i, j), j))
		}
	}
	return out
}

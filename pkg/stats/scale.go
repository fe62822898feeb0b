package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"stackml/pkg/model"
)

// StandardScaler standardizes each column to zero mean and unit variance.
// Constant columns are centered but not scaled.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

func NewStandardScaler() *StandardScaler { return &StandardScaler{} }

func (s *StandardScaler) Fit(X mat.Matrix, _ []float64) error {
	if r, _ := X.Dims(); r == 0 {
		return errors.New("standardscaler: empty X")
	}
	s.Mean, s.Std = columnStats(X, func(col []float64) (float64, float64) {
		m, v := stat.PopMeanVariance(col, nil)
		sd := math.Sqrt(v)
		if sd == 0 {
			sd = 1
		}
		return m, sd
	})
	return nil
}

func (s *StandardScaler) Transform(X mat.Matrix) (*mat.Dense, error) {
	if s.Mean == nil {
		return nil, errors.New("standardscaler: not fitted")
	}
	if err := checkCols("standardscaler", X, len(s.Mean)); err != nil {
		return nil, err
	}
	return apply(X, func(v float64, j int) float64 { return (v - s.Mean[j]) / s.Std[j] }), nil
}

func (s *StandardScaler) Clone() model.Transformer { return NewStandardScaler() }

// MinMaxScaler scales each column to [0, 1] over the fitted range.
type MinMaxScaler struct {
	Min []float64
	Max []float64
}

func NewMinMaxScaler() *MinMaxScaler { return &MinMaxScaler{} }

func (s *MinMaxScaler) Fit(X mat.Matrix, _ []float64) error {
	if r, _ := X.Dims(); r == 0 {
		return errors.New("minmaxscaler: empty X")
	}
	s.Min, s.Max = columnStats(X, func(col []float64) (float64, float64) {
		return floats.Min(col), floats.Max(col)
	})
	return nil
}

func (s *MinMaxScaler) Transform(X mat.Matrix) (*mat.Dense, error) {
	if s.Min == nil {
		return nil, errors.New("minmaxscaler: not fitted")
	}
	if err := checkCols("minmaxscaler", X, len(s.Min)); err != nil {
		return nil, err
	}
	return apply(X, func(v float64, j int) float64 {
		if s.Max[j] == s.Min[j] {
			return 0
		}
		return (v - s.Min[j]) / (s.Max[j] - s.Min[j])
	}), nil
}

func (s *MinMaxScaler) Clone() model.Transformer { return NewMinMaxScaler() }

func checkCols(name string, X mat.Matrix, want int) error {
	if _, c := X.Dims(); c != want {
		return fmt.Errorf("%s: %d features, fitted on %d", name, c, want)
	}
	return nil
}

package stats

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"stackml/pkg/model"
)

// Clipper clips each column to the [Lower, Upper] percentiles of the data it
// was fitted on.
type Clipper struct {
	Lower, Upper float64

	lows, highs []float64
}

func NewClipper(lower, upper float64) *Clipper {
	return &Clipper{Lower: lower, Upper: upper}
}

func (c *Clipper) Fit(X mat.Matrix, _ []float64) error {
	if c.Lower < 0 || c.Upper > 100 || c.Lower >= c.Upper {
		return fmt.Errorf("clipper: bad percentiles [%v, %v]", c.Lower, c.Upper)
	}
	if r, _ := X.Dims(); r == 0 {
		return errors.New("clipper: empty X")
	}
	c.lows, c.highs = columnStats(X, func(col []float64) (float64, float64) {
		return Percentile(col, c.Lower), Percentile(col, c.Upper)
	})
	return nil
}

func (c *Clipper) Transform(X mat.Matrix) (*mat.Dense, error) {
	if c.lows == nil {
		return nil, errors.New("clipper: not fitted")
	}
	if err := checkCols("clipper", X, len(c.lows)); err != nil {
		return nil, err
	}
	return apply(X, func(v float64, j int) float64 {
		return min(max(v, c.lows[j]), c.highs[j])
	}), nil
}

func (c *Clipper) Clone() model.Transformer { return NewClipper(c.Lower, c.Upper) }

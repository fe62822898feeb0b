package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ScoreFunc scores predictions against the truth.
type ScoreFunc func(yTrue, yPred []float64) float64

// Scorer is a named ScoreFunc with its sign convention.
type Scorer struct {
	Name            string
	Func            ScoreFunc
	GreaterIsBetter bool
}

// MakeScorer wraps fn. Use greaterIsBetter=false for losses.
func MakeScorer(name string, fn ScoreFunc, greaterIsBetter bool) Scorer {
	return Scorer{Name: name, Func: fn, GreaterIsBetter: greaterIsBetter}
}

// Score returns the raw score.
func (s Scorer) Score(yTrue, yPred []float64) float64 { return s.Func(yTrue, yPred) }

// Better reports whether score a beats score b under s's sign convention.
func (s Scorer) Better(a, b float64) bool {
	if s.GreaterIsBetter {
		return a > b
	}
	return a < b
}

// Valid reports whether s has a score function.
func (s Scorer) Valid() bool { return s.Func != nil }

var (
	RMSEScorer = MakeScorer("rmse", RMSE, false)
	MSEScorer  = MakeScorer("mse", MSE, false)
	MAEScorer  = MakeScorer("mae", MAE, false)
	R2Scorer   = MakeScorer("r2", R2, true)
)

// ScorerByName returns a built-in scorer.
func ScorerByName(name string) (Scorer, bool) {
	switch name {
	case "rmse":
		return RMSEScorer, true
	case "mse":
		return MSEScorer, true
	case "mae":
		return MAEScorer, true
	case "r2":
		return R2Scorer, true
	case "accuracy":
		return MakeScorer("accuracy", Accuracy, true), true
	}
	return Scorer{}, false
}

func MSE(yTrue, yPred []float64) float64 {
	n := float64(len(yTrue))
	s := 0.0
	for i := range yTrue {
		d := yPred[i] - yTrue[i]
		s += d * d
	}
	return s / n
}

func MAE(yTrue, yPred []float64) float64 {
	n := float64(len(yTrue))
	s := 0.0
	for i := range yTrue {
		s += math.Abs(yPred[i] - yTrue[i])
	}
	return s / n
}

func RMSE(yTrue, yPred []float64) float64 { return math.Sqrt(MSE(yTrue, yPred)) }

// R2 is the coefficient of determination; 0 for a constant truth.
func R2(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 || floats.Max(yTrue) == floats.Min(yTrue) {
		return 0
	}
	return stat.RSquaredFrom(yPred, yTrue, nil)
}

// Accuracy compares 0/1 labels, thresholding yPred at 0.5.
func Accuracy(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	c := 0
	for i := range yTrue {
		p := 0.0
		if yPred[i] >= 0.5 {
			p = 1
		}
		if yTrue[i] == p {
			c++
		}
	}
	return float64(c) / float64(len(yTrue))
}

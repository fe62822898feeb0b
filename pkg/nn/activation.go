package nn

import "math"

// Sigmoid maps x to (0, 1). Large |x| saturates without overflowing Exp.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// SigmoidPrime is the derivative of Sigmoid at x.
func SigmoidPrime(x float64) float64 {
	s := Sigmoid(x)
	return s * (1 - s)
}

// Package nn holds the activations and losses shared by the gradient-trained
// estimators.
package nn

import "math"

// probability clamp for BCE
const eps = 1e-12

// MSE returns the mean squared error and its gradient with respect to yPred.
func MSE(yTrue, yPred []float64) (float64, []float64) {
	n := len(yTrue)
	if n == 0 {
		return 0, nil
	}
	s := 0.0
	grad := make([]float64, n)

	for i := range n {
		e := yPred[i] - yTrue[i]
		s += e * e
		grad[i] = 2 * e / float64(n)
	}
	return s / float64(n), grad
}

// BCE returns the binary cross-entropy and its gradient with respect to the
// pre-sigmoid logits, given probabilities yPred.
func BCE(yTrue, yPred []float64) (float64, []float64) {
	n := len(yTrue)
	if n == 0 {
		return 0, nil
	}
	s := 0.0
	grad := make([]float64, n)

	for i := range n {
		p := math.Min(math.Max(yPred[i], eps), 1-eps)
		y := yTrue[i]
		s += -(y*math.Log(p) + (1-y)*math.Log(1-p))
		grad[i] = (p - y) / float64(n)
	}
	return s / float64(n), grad
}

package model

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCA projects data onto its top-K principal components. It is a
// Transformer, usable as a preprocessing step.
type PCA struct {
	K int

	Means      []float64
	Components *mat.Dense // p x K, one unit vector per column
	Explained  []float64  // variances of the kept components
}

// NewPCA creates and returns a new PCA model.
func NewPCA(k int) *PCA {
	return &PCA{K: k}
}

// Fit computes the principal components of X. y is ignored.
func (pca *PCA) Fit(X mat.Matrix, _ []float64) error {
	n, d := X.Dims()
	if n < 2 {
		return errors.New("pca: need at least two rows")
	}
	if pca.K < 1 || pca.K > d {
		return fmt.Errorf("pca: k=%d outside [1, %d]", pca.K, d)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(X, nil); !ok {
		return errors.New("pca: decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	pca.Components = mat.DenseCopyOf(vecs.Slice(0, d, 0, pca.K))
	pca.Explained = append([]float64(nil), vars[:pca.K]...)
	pca.Means = make([]float64, d)
	for j := range pca.Means {
		pca.Means[j] = stat.Mean(mat.Col(nil, j, X), nil)
	}
	return nil
}

// Transform centers X with the fitted means and projects it.
func (pca *PCA) Transform(X mat.Matrix) (*mat.Dense, error) {
	if pca.Components == nil {
		return nil, errors.New("pca: not fitted")
	}
	n, d := X.Dims()
	if d != len(pca.Means) {
		return nil, fmt.Errorf("pca: %d features, fitted on %d", d, len(pca.Means))
	}
	Z := mat.DenseCopyOf(X)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			Z.Set(i, j, Z.At(i, j)-pca.Means[j])
		}
	}
	var out mat.Dense
	out.Mul(Z, pca.Components)
	return &out, nil
}

func (pca *PCA) Clone() Transformer { return NewPCA(pca.K) }

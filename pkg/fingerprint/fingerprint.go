// Package fingerprint recognizes whether a matrix is the one a model was
// trained on by hashing a fixed sample of its rows.
//
// The check is a sampled identity test, not a guarantee: two matrices that
// agree on every sampled row are reported as the same. Data with little
// variation needs a larger SampleSize.
package fingerprint

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/mat"

	"stackml/pkg/core"
)

// DefaultSampleSize is the number of rows hashed when none is given.
const DefaultSampleSize = 10

// Checker stores the digest of the training matrix.
type Checker struct {
	SampleSize int

	rows, cols int
	positions  []int
	digest     uint64
	fitted     bool
}

// New returns a Checker sampling size rows.
func New(size int) *Checker {
	return &Checker{SampleSize: size}
}

// Fit records the fingerprint of X.
func (c *Checker) Fit(X mat.Matrix) error {
	rows, cols := X.Dims()
	if c.SampleSize < 1 {
		return core.Configuration("fingerprint", "sample size must be positive, got %d", c.SampleSize)
	}
	if c.SampleSize > rows {
		return core.Configuration("fingerprint", "sample size %d exceeds %d training rows", c.SampleSize, rows)
	}

	c.rows, c.cols = rows, cols
	c.positions = positions(rows, c.SampleSize)
	c.digest = digest(X, c.positions)
	c.fitted = true
	return nil
}

// IsTrain reports whether X matches the fitted matrix on the sampled rows.
func (c *Checker) IsTrain(X mat.Matrix) bool {
	if !c.fitted {
		return false
	}
	rows, cols := X.Dims()
	if rows != c.rows || cols != c.cols {
		return false
	}
	return digest(X, c.positions) == c.digest
}

// positions returns n evenly spaced row positions in [0, rows).
func positions(rows, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i * rows / n
	}
	return out
}

func digest(X mat.Matrix, rows []int) uint64 {
	_, cols := X.Dims()
	h := xxhash.New()
	var buf [8]byte
	for _, r := range rows {
		binary.LittleEndian.PutUint64(buf[:], uint64(r))
		h.Write(buf[:])
		for j := 0; j < cols; j++ {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(X.At(r, j)))
			h.Write(buf[:])
		}
	}
	return h.Sum64()
}

package core

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Frame is a sample matrix: rows are samples, columns are features. Index
// optionally labels rows and Columns optionally names features; both survive
// row subsetting and horizontal stacking.
type Frame struct {
	*mat.Dense
	Index   []string
	Columns []string
}

// NewFrame wraps d. index may be nil.
func NewFrame(d *mat.Dense, index []string) (*Frame, error) {
	r, _ := d.Dims()
	if index != nil && len(index) != r {
		return nil, Configuration("frame", "index has %d labels for %d rows", len(index), r)
	}
	return &Frame{Dense: d, Index: index}, nil
}

// FromSlice creates a Frame from a nested slice (copies data).
func FromSlice(a [][]float64) *Frame {
	r := len(a)
	if r == 0 {
		return &Frame{Dense: &mat.Dense{}}
	}
	c := len(a[0])
	data := make([]float64, 0, r*c)
	for i := range a {
		data = append(data, a[i]...)
	}
	return &Frame{Dense: mat.NewDense(r, c, data)}
}

// Rows returns the number of samples.
func (f *Frame) Rows() int {
	if f == nil || f.Dense == nil || f.Dense.IsEmpty() {
		return 0
	}
	r, _ := f.Dims()
	return r
}

// Cols returns the number of features.
func (f *Frame) Cols() int {
	if f == nil || f.Dense == nil || f.Dense.IsEmpty() {
		return 0
	}
	_, c := f.Dims()
	return c
}

// Clone deep copies the frame.
func (f *Frame) Clone() *Frame {
	out := &Frame{Dense: mat.DenseCopyOf(f.Dense)}
	if f.Index != nil {
		out.Index = append([]string(nil), f.Index...)
	}
	if f.Columns != nil {
		out.Columns = append([]string(nil), f.Columns...)
	}
	return out
}

// Subset copies the given rows, in order, into a new Frame.
func (f *Frame) Subset(rows []int) *Frame {
	return &Frame{
		Dense:   SelectRows(f.Dense, rows),
		Index:   selectLabels(f.Index, rows),
		Columns: f.Columns,
	}
}

// SelectRows copies the given rows of m into a new dense matrix.
func SelectRows(m mat.Matrix, rows []int) *mat.Dense {
	_, c := m.Dims()
	if len(rows) == 0 || c == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(r, j))
		}
	}
	return out
}

// SelectValues copies v at the given positions.
func SelectValues(v []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = v[r]
	}
	return out
}

func selectLabels(labels []string, rows []int) []string {
	if labels == nil {
		return nil
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = labels[r]
	}
	return out
}

// HStack concatenates the columns of b to a. The result keeps a's index.
func HStack(a, b *Frame) (*Frame, error) {
	if a.Rows() != b.Rows() {
		return nil, Configuration("hstack", "row mismatch: %d vs %d", a.Rows(), b.Rows())
	}
	r, ca, cb := a.Rows(), a.Cols(), b.Cols()
	if ca == 0 {
		return b.Clone(), nil
	}
	if cb == 0 {
		return a.Clone(), nil
	}
	out := mat.NewDense(r, ca+cb, nil)
	out.Slice(0, r, 0, ca).(*mat.Dense).Copy(a.Dense)
	out.Slice(0, r, ca, ca+cb).(*mat.Dense).Copy(b.Dense)

	var cols []string
	if a.Columns != nil || b.Columns != nil {
		cols = append(columnNames(a.Columns, ca, "x"), columnNames(b.Columns, cb, "p")...)
	}
	idx := a.Index
	if idx == nil {
		idx = b.Index
	}
	if idx != nil {
		idx = append([]string(nil), idx...)
	}
	return &Frame{Dense: out, Index: idx, Columns: cols}, nil
}

func columnNames(names []string, n int, prefix string) []string {
	if names != nil {
		return append([]string(nil), names...)
	}
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return out
}

// RowSlice returns a copy of row i.
func (f *Frame) RowSlice(i int) []float64 {
	return mat.Row(nil, i, f.Dense)
}

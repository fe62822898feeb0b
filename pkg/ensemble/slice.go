// Package ensemble builds out-of-fold prediction features: estimators are fit
// once per cross-validation fold and once on the full data, and training rows
// are only ever predicted by models that never saw them.
package ensemble

import (
	"log/slog"
	"runtime"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"stackml/pkg/core"
	"stackml/pkg/loader"
	"stackml/pkg/logging"
	"stackml/pkg/model"
)

// FullSliceID identifies the slice that covers every row.
const FullSliceID = -1

const tracerName = "stackml/ensemble"

// Slice is a unit of fitting work. Estimators are fit on Train and predict
// Test.
type Slice struct {
	ID    int
	Train []int
	Test  []int
}

// FoldSlices converts a fold partition into slices with the fold ids.
func FoldSlices(folds []loader.Fold) []Slice {
	out := make([]Slice, len(folds))
	for i, f := range folds {
		out[i] = Slice{ID: f.ID, Train: f.Train, Test: f.Test}
	}
	return out
}

// FullSlice returns the full-data slice over rows.
func FullSlice(rows int) Slice {
	all := make([]int, rows)
	for i := range all {
		all[i] = i
	}
	return Slice{ID: FullSliceID, Train: all, Test: all}
}

// Handle is a fitted estimator clone. It is not modified after fitting.
type Handle struct {
	Name    string
	SliceID int
	Model   model.Estimator
}

// RunOptions tune FitSlices and PredictOutOfFold.
type RunOptions struct {
	// Workers bounds concurrent jobs. Zero or less means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
	Metrics *Metrics
	Tracer  trace.Tracer
}

func (o RunOptions) workers() int {
	if o.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return o.Workers
}

func (o RunOptions) tracer() trace.Tracer {
	if o.Tracer == nil {
		return otel.Tracer(tracerName)
	}
	return o.Tracer
}

func (o RunOptions) logger() *slog.Logger { return logging.OrDiscard(o.Logger) }

// subset returns X and y restricted to rows. The full slice shares X.
func subset(X *core.Frame, y []float64, s Slice, rows []int) (*core.Frame, []float64) {
	if s.ID == FullSliceID {
		return X, y
	}
	var ys []float64
	if y != nil {
		ys = core.SelectValues(y, rows)
	}
	return X.Subset(rows), ys
}

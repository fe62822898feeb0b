package ensemble

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"stackml/pkg/core"
)

// PredictOutOfFold runs each slice's handles on that slice's Test rows and
// scatters the predictions into one column per expected estimator.
//
// The Test rows of all slices must cover every row of X exactly once; with
// fold slices this makes every prediction out-of-fold, and the single full
// slice covers all rows by construction. Handles named outside expected are
// ignored. An expected estimator that did not produce predictions for every
// slice is reported as a mismatch.
//
// The returned names are the produced columns in expected order.
func PredictOutOfFold(ctx context.Context, X *core.Frame, slices []Slice, handles map[int][]Handle, expected []string, opts RunOptions) (*mat.Dense, []string, error) {
	const op = "predict_out_of_fold"
	rows := X.Rows()
	if rows == 0 {
		return nil, nil, core.Configuration(op, "empty input")
	}
	if len(expected) == 0 {
		return nil, nil, core.Configuration(op, "no expected estimators")
	}
	col := make(map[string]int, len(expected))
	for j, name := range expected {
		if _, dup := col[name]; dup {
			return nil, nil, core.Configuration(op, "duplicate estimator name %q", name)
		}
		col[name] = j
	}
	if err := checkCoverage(op, slices, rows); err != nil {
		return nil, nil, err
	}

	type job struct {
		slice Slice
		h     Handle
		X     *core.Frame
	}
	var jobs []job
	for _, s := range slices {
		Xs, _ := subset(X, nil, s, s.Test)
		for _, h := range handles[s.ID] {
			if _, ok := col[h.Name]; !ok {
				continue
			}
			jobs = append(jobs, job{slice: s, h: h, X: Xs})
		}
	}

	log := opts.logger()
	tracer := opts.tracer()
	preds := make([][]float64, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := predictOne(gctx, tracer, opts.Metrics, j.slice.ID, j.h, j.X, len(j.slice.Test))
			if err != nil {
				log.WarnContext(gctx, "predict failed", "slice", j.slice.ID, "estimator", j.h.Name, "error", err)
				return err
			}
			preds[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// assembly happens after the join, so no job writes shared state
	out := mat.NewDense(rows, len(expected), nil)
	written := make([]map[int]bool, len(expected))
	for i, j := range jobs {
		c := col[j.h.Name]
		if written[c] == nil {
			written[c] = make(map[int]bool)
		}
		if written[c][j.slice.ID] {
			return nil, nil, &core.Error{
				Kind:      core.KindConfiguration,
				Op:        op,
				Slice:     j.slice.ID,
				Estimator: j.h.Name,
				Message:   "more than one handle for the same slice",
			}
		}
		written[c][j.slice.ID] = true
		for k, r := range j.slice.Test {
			out.Set(r, c, preds[i][k])
		}
	}

	var produced, missing []string
	for c, name := range expected {
		if len(written[c]) == len(slices) {
			produced = append(produced, name)
		} else {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, nil, core.Mismatch(op, missing)
	}
	log.DebugContext(ctx, "assembled predictions", "rows", rows, "estimators", len(produced), "slices", len(slices))
	return out, produced, nil
}

func predictOne(ctx context.Context, tracer trace.Tracer, metrics *Metrics, slice int, h Handle, X *core.Frame, want int) (p []float64, err error) {
	_, span := tracer.Start(ctx, "ensemble.predict", trace.WithAttributes(
		attribute.Int("slice", slice),
		attribute.String("estimator", h.Name),
		attribute.Int("rows", want),
	))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = core.PredictionFailure("predict", slice, h.Name, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "predict failed")
		}
		metrics.observe("predict", h.Name, time.Since(start), err)
		span.End()
	}()

	p, err = h.Model.Predict(X)
	if err != nil {
		return nil, err
	}
	if len(p) != want {
		return nil, fmt.Errorf("%d predictions for %d rows", len(p), want)
	}
	return p, nil
}

// checkCoverage verifies that the slices' Test rows hit every row exactly once.
func checkCoverage(op string, slices []Slice, rows int) error {
	if len(slices) == 0 {
		return core.Configuration(op, "no slices")
	}
	hits := make([]int, rows)
	ids := make(map[int]bool, len(slices))
	for _, s := range slices {
		if ids[s.ID] {
			return core.Configuration(op, "duplicate slice id %d", s.ID)
		}
		ids[s.ID] = true
		if err := checkRows(op, s.ID, s.Test, rows); err != nil {
			return err
		}
		for _, r := range s.Test {
			hits[r]++
		}
	}
	for r, n := range hits {
		if n != 1 {
			return core.Configuration(op, "row %d held out %d times", r, n)
		}
	}
	return nil
}

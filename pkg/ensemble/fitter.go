package ensemble

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"stackml/pkg/core"
	"stackml/pkg/model"
)

// FitSlices fits a clone of every template on every slice's training rows and
// returns the handles keyed by slice id, in template order.
//
// Jobs run on a bounded pool. The first failure cancels the jobs that have not
// started and is returned as an estimator fit error carrying the slice id and
// estimator name. Results do not depend on the worker count.
func FitSlices(ctx context.Context, X *core.Frame, y []float64, slices []Slice, templates []model.Named, opts RunOptions) (map[int][]Handle, error) {
	const op = "fit_slices"
	rows := X.Rows()
	if len(y) != rows {
		return nil, core.Configuration(op, "%d labels for %d rows", len(y), rows)
	}
	if len(templates) == 0 {
		return nil, core.Configuration(op, "no estimators")
	}
	if len(slices) == 0 {
		return nil, core.Configuration(op, "no slices")
	}
	seen := make(map[int]bool, len(slices))
	for _, s := range slices {
		if seen[s.ID] {
			return nil, core.Configuration(op, "duplicate slice id %d", s.ID)
		}
		seen[s.ID] = true
		if err := checkRows(op, s.ID, s.Train, rows); err != nil {
			return nil, err
		}
	}

	log := opts.logger()
	tracer := opts.tracer()

	// one pre-sized slot per (slice, estimator)
	results := make([][]Handle, len(slices))
	for i := range results {
		results[i] = make([]Handle, len(templates))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())

	for si, s := range slices {
		Xs, ys := subset(X, y, s, s.Train)
		for ei, t := range templates {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				h, err := fitOne(gctx, tracer, opts.Metrics, s.ID, t, Xs, ys)
				if err != nil {
					log.WarnContext(gctx, "fit failed", "slice", s.ID, "estimator", t.Name, "error", err)
					return err
				}
				log.DebugContext(gctx, "fitted estimator", "slice", s.ID, "estimator", t.Name, "rows", len(ys))
				results[si][ei] = h
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[int][]Handle, len(slices))
	for si, s := range slices {
		out[s.ID] = results[si]
	}
	return out, nil
}

func fitOne(ctx context.Context, tracer trace.Tracer, metrics *Metrics, slice int, t model.Named, X *core.Frame, y []float64) (h Handle, err error) {
	_, span := tracer.Start(ctx, "ensemble.fit", trace.WithAttributes(
		attribute.Int("slice", slice),
		attribute.String("estimator", t.Name),
		attribute.Int("rows", len(y)),
	))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = core.FitFailure("fit", slice, t.Name, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "fit failed")
		}
		metrics.observe("fit", t.Name, time.Since(start), err)
		span.End()
	}()

	est := t.Estimator.Clone()
	if err := est.Fit(X, y); err != nil {
		return Handle{}, err
	}
	return Handle{Name: t.Name, SliceID: slice, Model: est}, nil
}

func checkRows(op string, slice int, idx []int, rows int) error {
	for _, r := range idx {
		if r < 0 || r >= rows {
			return &core.Error{
				Kind:    core.KindConfiguration,
				Op:      op,
				Slice:   slice,
				Message: fmt.Sprintf("row %d out of range [0, %d)", r, rows),
			}
		}
	}
	return nil
}

package ensemble

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"stackml/pkg/core"
	"stackml/pkg/loader"
	"stackml/pkg/model"
)

func foldSlices(t *testing.T, rows, k int, shuffle bool) []Slice {
	t.Helper()
	folds, err := loader.KFold(rows, k, shuffle, 42)
	require.NoError(t, err)
	return FoldSlices(folds)
}

func TestFitSlicesHandles(t *testing.T) {
	X, y := rowData(30, 1)
	slices := foldSlices(t, 30, 3, true)
	templates := model.NameEstimators([]model.Estimator{model.NewOLS(0), model.NewKNN(2)})

	handles, err := FitSlices(context.Background(), X, y, slices, templates, RunOptions{Workers: 2})
	require.NoError(t, err)
	require.Len(t, handles, 3)
	for _, s := range slices {
		hs := handles[s.ID]
		require.Len(t, hs, 2)
		assert.Equal(t, "ols", hs[0].Name)
		assert.Equal(t, "knn", hs[1].Name)
		for i, h := range hs {
			assert.Equal(t, s.ID, h.SliceID)
			assert.NotSame(t, templates[i].Estimator, h.Model, "handles are clones")
		}
	}

	// templates stay unfitted
	_, err = templates[0].Estimator.Predict(X)
	assert.ErrorIs(t, err, core.ErrNotFitted)
}

func TestFitSlicesTrainsOnTrainRowsOnly(t *testing.T) {
	X, y := rowData(12, 2)
	slices := foldSlices(t, 12, 4, false)
	handles, err := FitSlices(context.Background(), X, y, slices,
		model.NameEstimators([]model.Estimator{&memo{}}), RunOptions{Workers: 1})
	require.NoError(t, err)

	for _, s := range slices {
		m := handles[s.ID][0].Model.(*memo)
		assert.Len(t, m.seen, len(s.Train))
		for _, r := range s.Test {
			assert.False(t, m.seen[float64(r)], "slice %d saw held-out row %d", s.ID, r)
		}
	}
}

func TestFitSlicesFailFast(t *testing.T) {
	X, y := rowData(20, 3)
	slices := foldSlices(t, 20, 5, false)

	for _, panics := range []bool{false, true} {
		f := newFailing()
		f.panic = panics
		_, err := FitSlices(context.Background(), X, y, slices,
			model.NameEstimators([]model.Estimator{f}), RunOptions{Workers: 1})
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrEstimatorFit)

		var cerr *core.Error
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, "failing", cerr.Estimator)
		assert.Equal(t, slices[0].ID, cerr.Slice)
		if !panics {
			assert.ErrorIs(t, err, errBoom)
		}
		assert.EqualValues(t, 1, f.calls.Load(), "remaining jobs are skipped")
	}
}

func TestFitSlicesCancelled(t *testing.T) {
	X, y := rowData(10, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FitSlices(ctx, X, y, foldSlices(t, 10, 2, false),
		model.NameEstimators([]model.Estimator{model.NewOLS(0)}), RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitSlicesConfiguration(t *testing.T) {
	X, y := rowData(10, 5)
	ols := model.NameEstimators([]model.Estimator{model.NewOLS(0)})
	slices := foldSlices(t, 10, 2, false)

	tests := []struct {
		name      string
		y         []float64
		slices    []Slice
		templates []model.Named
	}{
		{"label count", y[:9], slices, ols},
		{"no estimators", y, slices, nil},
		{"no slices", y, nil, ols},
		{"row out of range", y, []Slice{{ID: 0, Train: []int{0, 10}}}, ols},
		{"duplicate id", y, []Slice{slices[0], slices[0]}, ols},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FitSlices(context.Background(), X, tt.y, tt.slices, tt.templates, RunOptions{})
			assert.ErrorIs(t, err, core.ErrConfiguration)
		})
	}
}

func TestFitSlicesWorkerCountDoesNotChangeResults(t *testing.T) {
	X, y := rowData(40, 6)
	slices := foldSlices(t, 40, 4, true)
	templates := model.NameEstimators([]model.Estimator{
		model.NewOLS(1), model.NewKNN(3), model.NewLinearRegression(0.01, 20, 8, 9),
	})
	names := model.Names(templates)

	var outs []*mat.Dense
	for _, w := range []int{1, 3, 0} {
		handles, err := FitSlices(context.Background(), X, y, slices, templates, RunOptions{Workers: w})
		require.NoError(t, err)
		P, produced, err := PredictOutOfFold(context.Background(), X, slices, handles, names, RunOptions{Workers: w})
		require.NoError(t, err)
		assert.Equal(t, names, produced)
		outs = append(outs, P)
	}
	assert.True(t, mat.Equal(outs[0], outs[1]))
	assert.True(t, mat.Equal(outs[0], outs[2]))
}

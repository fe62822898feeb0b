package ensemble

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"stackml/pkg/config"
	"stackml/pkg/core"
	"stackml/pkg/model"
	"stackml/pkg/synth"
)

func TestPredictionFeatureDefaults(t *testing.T) {
	p := NewPredictionFeature([]model.Estimator{model.NewOLS(0), model.NewOLS(2)})
	params := p.Params()
	assert.Equal(t, 2, params["folds"])
	assert.Equal(t, true, params["shuffle"])
	assert.Equal(t, true, params["concat"])
	assert.Equal(t, 10, params["sample_size"])
	assert.Equal(t, 1, params["n_jobs"])
	assert.Equal(t, 0, params["verbose"])
	assert.Equal(t, int64(0), params["random_state"])
	assert.Equal(t, "", params["scorer"])
	assert.Equal(t, 0.0, params["ols-1__offset"])
	assert.Equal(t, 2.0, params["ols-2__offset"])
	assert.Equal(t, false, params["ols-2__fit_intercept"])
	assert.Implements(t, (*model.Estimator)(nil), params["ols-1"])
	assert.Equal(t, []string{"ols-1", "ols-2"}, p.Names())
	assert.False(t, p.Fitted())
}

func TestPredictionFeatureNotFitted(t *testing.T) {
	X, _ := rowData(10, 1)
	p := NewPredictionFeature([]model.Estimator{model.NewOLS(0)})
	_, err := p.Predict(context.Background(), X)
	assert.ErrorIs(t, err, core.ErrNotFitted)
	_, err = p.Transform(context.Background(), X)
	assert.ErrorIs(t, err, core.ErrNotFitted)
}

func TestPredictionFeatureTrainingSetIsOutOfFold(t *testing.T) {
	X, y := rowData(40, 2)
	p := NewPredictionFeature([]model.Estimator{&memo{}}, WithFolds(4), WithConcat(false), WithRandomState(3))
	P, err := p.FitTransform(context.Background(), X, y)
	require.NoError(t, err)
	assert.Equal(t, 0.0, mat.Sum(P), "training rows come from models that never saw them")

	// a different matrix goes to the full-data models, which saw every id
	head := X.Subset([]int{0, 1, 2, 3, 4})
	P, err = p.Predict(context.Background(), head)
	require.NoError(t, err)
	assert.Equal(t, 5.0, mat.Sum(P))
}

func TestPredictionFeatureTransform(t *testing.T) {
	X, y, _ := synth.Linear(30, 2, 0.1, 4)
	X = synth.Indexed(X, "r")
	p := NewPredictionFeature([]model.Estimator{model.NewOLS(0), model.NewKNN(3)}, WithJobs(3))
	require.NoError(t, p.Fit(context.Background(), X, y))
	assert.True(t, p.Fitted())

	out, err := p.Transform(context.Background(), X)
	require.NoError(t, err)
	assert.Equal(t, 30, out.Rows())
	assert.Equal(t, 4, out.Cols())
	assert.Equal(t, X.Index, out.Index)
	assert.Equal(t, []string{"x0", "x1", "ols", "knn"}, out.Columns)
	assert.True(t, mat.Equal(X, out.Slice(0, 30, 0, 2)), "original features first")

	P, err := p.Predict(context.Background(), X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(P, out.Slice(0, 30, 2, 4)))
	assert.Equal(t, []string{"ols", "knn"}, P.Columns)
}

func TestPredictionFeatureTransformIsIdempotentOnNewData(t *testing.T) {
	X, y, _ := synth.Linear(50, 3, 0.2, 5)
	Xnew, _, _ := synth.Linear(15, 3, 0.2, 6)
	p := NewPredictionFeature([]model.Estimator{model.NewOLS(1), model.NewKNN(2)}, WithJobs(0))
	require.NoError(t, p.Fit(context.Background(), X, y))

	a, err := p.Transform(context.Background(), Xnew)
	require.NoError(t, err)
	b, err := p.Transform(context.Background(), Xnew)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))

	// the training set again gives the same out-of-fold features
	c, err := p.Transform(context.Background(), X)
	require.NoError(t, err)
	d, err := p.Transform(context.Background(), X.Clone())
	require.NoError(t, err)
	assert.True(t, mat.Equal(c, d))
}

func TestPredictionFeatureDeterministicAcrossJobs(t *testing.T) {
	X, y, _ := synth.Linear(60, 2, 0.3, 7)
	var outs []*core.Frame
	for _, jobs := range []int{1, 2, 8} {
		p := NewPredictionFeature(
			[]model.Estimator{model.NewOLS(0), model.NewKNN(4), model.NewLinearRegression(0.01, 30, 8, 1)},
			WithFolds(5), WithRandomState(11), WithJobs(jobs),
		)
		out, err := p.FitTransform(context.Background(), X, y)
		require.NoError(t, err)
		outs = append(outs, out)
	}
	assert.True(t, mat.Equal(outs[0], outs[1]))
	assert.True(t, mat.Equal(outs[0], outs[2]))
}

func TestPredictionFeatureFailedFitCommitsNothing(t *testing.T) {
	X, y := rowData(20, 8)

	t.Run("from unfit", func(t *testing.T) {
		f := newFailing()
		p := NewPredictionFeature([]model.Estimator{model.NewOLS(0), f})
		err := p.Fit(context.Background(), X, y)
		assert.ErrorIs(t, err, core.ErrEstimatorFit)
		assert.False(t, p.Fitted())
		_, err = p.Predict(context.Background(), X)
		assert.ErrorIs(t, err, core.ErrNotFitted)
	})

	t.Run("from fitted", func(t *testing.T) {
		p := NewPredictionFeature([]model.Estimator{model.NewOLS(0)}, WithConcat(false))
		require.NoError(t, p.Fit(context.Background(), X, y))
		before, err := p.Predict(context.Background(), X)
		require.NoError(t, err)

		err = p.Fit(context.Background(), X, y[:5])
		assert.ErrorIs(t, err, core.ErrConfiguration)
		assert.True(t, p.Fitted())

		after, err := p.Predict(context.Background(), X)
		require.NoError(t, err)
		assert.True(t, mat.Equal(before, after))
	})
}

func TestPredictionFeatureConfigurationErrors(t *testing.T) {
	X, y := rowData(12, 9)
	tests := []struct {
		name string
		p    *PredictionFeature
		y    []float64
	}{
		{"one fold", NewPredictionFeature([]model.Estimator{model.NewOLS(0)}, WithFolds(1)), y},
		{"more folds than rows", NewPredictionFeature([]model.Estimator{model.NewOLS(0)}, WithFolds(13)), y},
		{"sample larger than data", NewPredictionFeature([]model.Estimator{model.NewOLS(0)}, WithSampleSize(13)), y},
		{"no estimators", NewPredictionFeature(nil), y},
		{"labels", NewPredictionFeature([]model.Estimator{model.NewOLS(0)}), y[:3]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Fit(context.Background(), X, tt.y)
			assert.ErrorIs(t, err, core.ErrConfiguration)
			assert.False(t, tt.p.Fitted())
		})
	}

	p := NewPredictionFeature([]model.Estimator{model.NewOLS(0)})
	require.NoError(t, p.Fit(context.Background(), X, y))
	_, err := p.Predict(context.Background(), &core.Frame{Dense: mat.NewDense(2, 3, nil)})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestPredictionFeatureScores(t *testing.T) {
	X, y, _ := synth.Linear(40, 2, 0.5, 10)
	p := NewPredictionFeature([]model.Estimator{model.NewOLS(0), model.NewOLS(50)},
		WithScorer(model.RMSEScorer), WithFolds(4), WithConcat(false))
	P, err := p.FitTransform(context.Background(), X, y)
	require.NoError(t, err)

	scores := p.Scores()
	require.Len(t, scores, 2)
	assert.InDelta(t, model.RMSE(y, mat.Col(nil, 0, P)), scores["ols-1"], 1e-9)
	assert.InDelta(t, model.RMSE(y, mat.Col(nil, 1, P)), scores["ols-2"], 1e-9)
	assert.NotEqual(t, scores["ols-1"], scores["ols-2"])

	assert.Nil(t, NewPredictionFeature([]model.Estimator{model.NewOLS(0)}).Scores())
}

func TestPredictionFeatureSetParams(t *testing.T) {
	ols := model.NewOLS(0)
	p := NewPredictionFeature([]model.Estimator{ols, model.NewKNN(2)})

	require.NoError(t, p.SetParams(model.Params{
		"folds":        3,
		"shuffle":      false,
		"random_state": int64(5),
		"scorer":       "mae",
		"ols__offset":  2.5,
		"knn__k":       4,
	}))
	params := p.Params()
	assert.Equal(t, 3, params["folds"])
	assert.Equal(t, false, params["shuffle"])
	assert.Equal(t, int64(5), params["random_state"])
	assert.Equal(t, "mae", params["scorer"])
	assert.Equal(t, 2.5, params["ols__offset"])
	assert.Equal(t, 4, params["knn__k"])
	assert.Equal(t, 2.5, ols.Offset, "nested params reach the template")

	// swap an estimator by name
	require.NoError(t, p.SetParams(model.Params{"knn": model.NewKNN(7)}))
	assert.Equal(t, 7, p.Params()["knn__k"])

	bad := []model.Params{
		{"alpha": 1},
		{"svm__c": 1.0},
		{"folds": "three"},
		{"scorer": "auc"},
		{"knn": 3},
		{"folds": 4, "ols__offset": "x"},
		{"folds": 4, "ols__nope": 1.0},
	}
	for _, params := range bad {
		err := p.SetParams(params)
		assert.ErrorIs(t, err, core.ErrConfiguration, "%v", params)
	}
	// nothing from the failed calls was applied
	assert.Equal(t, 3, p.Params()["folds"])
	assert.Equal(t, 2.5, ols.Offset)
}

func TestPredictionFeatureSetParamsResetsFit(t *testing.T) {
	X, y := rowData(10, 12)
	p := NewPredictionFeature([]model.Estimator{model.NewOLS(0)})
	require.NoError(t, p.Fit(context.Background(), X, y))
	require.NoError(t, p.SetParams(model.Params{"folds": 5}))
	assert.False(t, p.Fitted())
}

func TestPredictionFeatureFromConfig(t *testing.T) {
	cfg := config.Default().Ensemble
	cfg.Folds = 3
	cfg.Scorer = "r2"
	opts, err := FromConfig(cfg)
	require.NoError(t, err)

	p := NewPredictionFeature([]model.Estimator{model.NewOLS(0)}, opts...)
	params := p.Params()
	assert.Equal(t, 3, params["folds"])
	assert.Equal(t, "r2", params["scorer"])
	assert.Equal(t, true, params["concat"])

	cfg.Scorer = "auc"
	_, err = FromConfig(cfg)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestPredictionFeatureMetrics(t *testing.T) {
	X, y := rowData(20, 13)
	m := NewMetrics(prometheus.NewRegistry())

	p := NewPredictionFeature([]model.Estimator{model.NewOLS(0)}, WithFolds(4), WithMetrics(m))
	_, err := p.FitTransform(context.Background(), X, y)
	require.NoError(t, err)
	assert.Equal(t, 2, testutil.CollectAndCount(m.jobDuration), "fit and predict series")

	f := NewPredictionFeature([]model.Estimator{newFailing()}, WithMetrics(m))
	require.Error(t, f.Fit(context.Background(), X, y))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobFailures.WithLabelValues("fit", "failing")))
}

func TestPredictionFeatureConcurrentReads(t *testing.T) {
	X, y, _ := synth.Linear(30, 2, 0.1, 14)
	p := NewPredictionFeature([]model.Estimator{model.NewOLS(0)})
	require.NoError(t, p.Fit(context.Background(), X, y))
	want, err := p.Transform(context.Background(), X)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := p.Transform(context.Background(), X)
			assert.NoError(t, err)
			assert.True(t, mat.Equal(want, got))
		}()
	}
	wg.Wait()
}

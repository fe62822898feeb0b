// Package evaluator runs randomized hyperparameter search over estimators
// and preprocessing pipelines with cross-validated scoring. Each
// preprocessing pipeline is fit on the training part of every fold only, so
// test folds never leak into the preprocessing.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"stackml/pkg/config"
	"stackml/pkg/core"
	"stackml/pkg/loader"
	"stackml/pkg/logging"
	"stackml/pkg/model"
	"stackml/pkg/pipeline"
	"stackml/pkg/stats"
)

// Result summarizes one parameter draw across folds.
type Result struct {
	TestScoreMean  float64
	TestScoreStd   float64
	TrainScoreMean float64
	TrainScoreStd  float64
	FitTimeMean    time.Duration
	Params         model.Params
}

// Evaluator scores estimators over parameter draws and preprocessing cases.
type Evaluator struct {
	mu sync.Mutex

	scorer      model.Scorer
	folds       int
	shuffle     bool
	randomState int64
	jobs        int
	logger      *slog.Logger

	// input and pipelines behind cases, so Evaluate can tell when X or y
	// changed and rebuild the folds.
	source *mat.Dense
	labels []float64
	steps  map[string][]model.Transformer

	cases   map[string][]foldData
	results map[string][]Result
	summary map[string]Result
}

type foldData struct {
	id            int
	train, test   *mat.Dense
	yTrain, yTest []float64
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithFolds sets the number of cross-validation folds (default 10).
func WithFolds(k int) Option { return func(e *Evaluator) { e.folds = k } }

// WithShuffle sets whether rows are shuffled before folding (default false).
func WithShuffle(shuffle bool) Option { return func(e *Evaluator) { e.shuffle = shuffle } }

// WithRandomState seeds fold shuffling and parameter draws.
func WithRandomState(seed int64) Option { return func(e *Evaluator) { e.randomState = seed } }

// WithJobs bounds the worker pool (default 1). Zero or less uses every CPU.
func WithJobs(n int) Option { return func(e *Evaluator) { e.jobs = n } }

func WithLogger(l *slog.Logger) Option { return func(e *Evaluator) { e.logger = l } }

// New creates an Evaluator that ranks draws with scorer.
func New(scorer model.Scorer, opts ...Option) *Evaluator {
	e := &Evaluator{scorer: scorer, folds: 10, jobs: 1}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewFromConfig creates an Evaluator from configuration. opts are applied
// after the configured values.
func NewFromConfig(cfg config.Evaluator, opts ...Option) (*Evaluator, error) {
	s, ok := model.ScorerByName(cfg.Scorer)
	if !ok {
		return nil, core.Configuration("config", "unknown scorer %q", cfg.Scorer)
	}
	base := []Option{
		WithFolds(cfg.Folds),
		WithShuffle(cfg.Shuffle),
		WithRandomState(cfg.RandomState),
		WithJobs(cfg.Jobs),
	}
	return New(s, append(base, opts...)...), nil
}

func (e *Evaluator) workers() int {
	if e.jobs <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return e.jobs
}

// Preprocess fits every case's transformers on each fold's training rows and
// stores the transformed folds for Evaluate. An empty case passes X through.
func (e *Evaluator) Preprocess(ctx context.Context, X *core.Frame, y []float64, cases map[string][]model.Transformer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preprocess(ctx, X, y, cases)
}

func (e *Evaluator) preprocess(ctx context.Context, X *core.Frame, y []float64, cases map[string][]model.Transformer) error {
	const op = "evaluator.preprocess"
	rows := X.Rows()
	if rows == 0 {
		return core.Configuration(op, "empty input")
	}
	if len(y) != rows {
		return core.Configuration(op, "%d labels for %d rows", len(y), rows)
	}
	if len(cases) == 0 {
		return core.Configuration(op, "no preprocessing cases")
	}
	for name := range cases {
		if strings.Contains(name, "/") {
			return core.Configuration(op, "case name %q contains '/'", name)
		}
	}
	folds, err := loader.KFold(rows, e.folds, e.shuffle, e.randomState)
	if err != nil {
		return err
	}

	names := sortedKeys(cases)
	out := make(map[string][]foldData, len(cases))
	for _, name := range names {
		out[name] = make([]foldData, len(folds))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for _, name := range names {
		for fi, f := range folds {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				fd, err := prepareFold(X, y, f, cases[name])
				if err != nil {
					return fmt.Errorf("preprocess case %q fold %d: %w", name, f.ID, err)
				}
				out[name][fi] = fd
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	e.source = mat.DenseCopyOf(X)
	e.labels = append([]float64(nil), y...)
	e.steps = make(map[string][]model.Transformer, len(cases))
	for name, steps := range cases {
		e.steps[name] = append([]model.Transformer(nil), steps...)
	}
	e.cases = out
	return nil
}

// sameInput reports whether X and y are the data the cached folds came from.
func (e *Evaluator) sameInput(X *core.Frame, y []float64) bool {
	if e.source == nil || X.Rows() == 0 {
		return false
	}
	return mat.Equal(e.source, X) && floats.Equal(e.labels, y)
}

// refresh makes sure the cached folds belong to X and y. Without a prior
// Preprocess X is used as is under the unnamed case; otherwise the stored
// pipelines are refit on the new data.
func (e *Evaluator) refresh(ctx context.Context, X *core.Frame, y []float64) error {
	if e.cases == nil {
		return e.preprocess(ctx, X, y, map[string][]model.Transformer{"": nil})
	}
	if e.sameInput(X, y) {
		return nil
	}
	logging.OrDiscard(e.logger).DebugContext(ctx, "input changed, preprocessing again", "cases", len(e.steps))
	return e.preprocess(ctx, X, y, e.steps)
}

func prepareFold(X *core.Frame, y []float64, f loader.Fold, steps []model.Transformer) (foldData, error) {
	clones := make([]model.Transformer, len(steps))
	for i, s := range steps {
		clones[i] = s.Clone()
	}
	p := pipeline.NewPipeline(clones...)

	train, err := p.FitTransform(core.SelectRows(X, f.Train), core.SelectValues(y, f.Train))
	if err != nil {
		return foldData{}, err
	}
	test, err := p.Transform(core.SelectRows(X, f.Test))
	if err != nil {
		return foldData{}, err
	}
	return foldData{
		id:     f.ID,
		train:  train,
		test:   test,
		yTrain: core.SelectValues(y, f.Train),
		yTest:  core.SelectValues(y, f.Test),
	}, nil
}

// Evaluate draws nIter parameter sets per estimator and scores each on every
// fold of every preprocessing case. Without a prior Preprocess call X is used
// as is, under the unnamed case. If X or y differ from the preprocessed data
// the folds are rebuilt with the same pipelines.
//
// dists is keyed by estimator name ("ols") or by case and name ("pr/ols");
// the latter takes precedence. An estimator without distributions is scored
// once with its own parameters.
func (e *Evaluator) Evaluate(ctx context.Context, X *core.Frame, y []float64, estimators []model.Estimator, dists map[string]ParamDists, nIter int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.refresh(ctx, X, y); err != nil {
		return err
	}
	return e.evaluate(ctx, e.shared(estimators), dists, nIter)
}

// EvaluateCases is Evaluate with an estimator list per preprocessing case.
// Only the cases present in estimators are scored; a key that names no
// preprocessed case is a configuration error.
func (e *Evaluator) EvaluateCases(ctx context.Context, X *core.Frame, y []float64, estimators map[string][]model.Estimator, dists map[string]ParamDists, nIter int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.refresh(ctx, X, y); err != nil {
		return err
	}
	named, err := e.perCase(estimators)
	if err != nil {
		return err
	}
	return e.evaluate(ctx, named, dists, nIter)
}

// Fit runs Preprocess then Evaluate. A nil preprocessing map evaluates X as
// is.
func (e *Evaluator) Fit(ctx context.Context, X *core.Frame, y []float64, estimators []model.Estimator, dists map[string]ParamDists, preprocessing map[string][]model.Transformer, nIter int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if preprocessing == nil {
		preprocessing = map[string][]model.Transformer{"": nil}
	}
	if err := e.preprocess(ctx, X, y, preprocessing); err != nil {
		return err
	}
	return e.evaluate(ctx, e.shared(estimators), dists, nIter)
}

// FitCases runs Preprocess then EvaluateCases.
func (e *Evaluator) FitCases(ctx context.Context, X *core.Frame, y []float64, estimators map[string][]model.Estimator, dists map[string]ParamDists, preprocessing map[string][]model.Transformer, nIter int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.preprocess(ctx, X, y, preprocessing); err != nil {
		return err
	}
	named, err := e.perCase(estimators)
	if err != nil {
		return err
	}
	return e.evaluate(ctx, named, dists, nIter)
}

// shared gives every cached case the same estimators. Templates are cloned
// so later changes by the caller do not leak into a run.
func (e *Evaluator) shared(estimators []model.Estimator) map[string][]model.Named {
	if len(estimators) == 0 {
		return nil
	}
	named := model.CloneAll(model.NameEstimators(estimators))
	out := make(map[string][]model.Named, len(e.cases))
	for c := range e.cases {
		out[c] = named
	}
	return out
}

func (e *Evaluator) perCase(estimators map[string][]model.Estimator) (map[string][]model.Named, error) {
	const op = "evaluator.evaluate"
	out := make(map[string][]model.Named, len(estimators))
	for c, ests := range estimators {
		if _, ok := e.cases[c]; !ok {
			return nil, core.Configuration(op, "estimators for unknown preprocessing case %q", c)
		}
		if len(ests) == 0 {
			return nil, core.Configuration(op, "no estimators for case %q", c)
		}
		out[c] = model.CloneAll(model.NameEstimators(ests))
	}
	return out, nil
}

type candidate struct {
	key    string
	caseID string
	est    model.Named
	params model.Params
}

type score struct {
	train, test float64
	fit         time.Duration
}

func (e *Evaluator) evaluate(ctx context.Context, named map[string][]model.Named, dists map[string]ParamDists, nIter int) error {
	const op = "evaluator.evaluate"
	if !e.scorer.Valid() {
		return core.Configuration(op, "no scorer")
	}
	if nIter < 1 {
		return core.Configuration(op, "n_iter must be at least 1, got %d", nIter)
	}
	if len(named) == 0 {
		return core.Configuration(op, "no estimators")
	}
	if err := e.checkDists(op, named, dists); err != nil {
		return err
	}

	log, _ := logging.WithRun(logging.OrDiscard(e.logger))
	log = log.With("component", "evaluator")
	start := time.Now()

	var cands []candidate
	for _, c := range sortedKeys(named) {
		for _, n := range named[c] {
			key := n.Name
			if c != "" {
				key = c + "/" + n.Name
			}
			pd, ok := dists[key]
			if !ok {
				pd = dists[n.Name]
			}
			for _, params := range pd.draw(nIter, drawSeed(e.randomState, n.Name)) {
				cands = append(cands, candidate{key: key, caseID: c, est: n, params: params})
			}
		}
	}

	nFolds := e.folds
	scores := make([][]score, len(cands))
	for i := range scores {
		scores[i] = make([]score, nFolds)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for ci, cand := range cands {
		for fi, fd := range e.cases[cand.caseID] {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				s, err := e.scoreFold(cand, fd)
				if err != nil {
					return err
				}
				scores[ci][fi] = s
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	results := make(map[string][]Result)
	for ci, cand := range cands {
		results[cand.key] = append(results[cand.key], summarize(scores[ci], cand.params))
	}
	summary := make(map[string]Result, len(results))
	for key, rs := range results {
		best := rs[0]
		for _, r := range rs[1:] {
			if e.scorer.Better(r.TestScoreMean, best.TestScoreMean) {
				best = r
			}
		}
		summary[key] = best
		log.InfoContext(ctx, "best draw", "key", key, "test_score_mean", best.TestScoreMean, "params", best.Params)
	}
	log.InfoContext(ctx, "evaluation complete", "candidates", len(cands), "folds", nFolds, "duration", time.Since(start).String())

	e.results = results
	e.summary = summary
	return nil
}

func (e *Evaluator) scoreFold(c candidate, fd foldData) (score, error) {
	est := c.est.Estimator.Clone()
	if err := est.SetParams(c.params); err != nil {
		return score{}, err
	}
	t0 := time.Now()
	if err := est.Fit(fd.train, fd.yTrain); err != nil {
		return score{}, core.FitFailure("evaluate", fd.id, c.key, err)
	}
	fit := time.Since(t0)

	pTrain, err := est.Predict(fd.train)
	if err != nil {
		return score{}, core.PredictionFailure("evaluate", fd.id, c.key, err)
	}
	pTest, err := est.Predict(fd.test)
	if err != nil {
		return score{}, core.PredictionFailure("evaluate", fd.id, c.key, err)
	}
	return score{
		train: e.scorer.Score(fd.yTrain, pTrain),
		test:  e.scorer.Score(fd.yTest, pTest),
		fit:   fit,
	}, nil
}

func summarize(scores []score, params model.Params) Result {
	train := make([]float64, len(scores))
	test := make([]float64, len(scores))
	var fit time.Duration
	for i, s := range scores {
		train[i], test[i] = s.train, s.test
		fit += s.fit
	}
	return Result{
		TestScoreMean:  stats.Mean(test),
		TestScoreStd:   stats.Std(test),
		TrainScoreMean: stats.Mean(train),
		TrainScoreStd:  stats.Std(train),
		FitTimeMean:    fit / time.Duration(len(scores)),
		Params:         params,
	}
}

func (e *Evaluator) checkDists(op string, named map[string][]model.Named, dists map[string]ParamDists) error {
	known := make(map[string]bool)
	inCase := make(map[string]bool)
	for c, ns := range named {
		for _, n := range ns {
			known[n.Name] = true
			inCase[c+"/"+n.Name] = true
		}
	}
	for key := range dists {
		c, _, scoped := strings.Cut(key, "/")
		if !scoped {
			if !known[key] {
				return core.Configuration(op, "unknown estimator %q", key)
			}
			continue
		}
		if _, ok := e.cases[c]; !ok {
			return core.Configuration(op, "unknown preprocessing case %q in %q", c, key)
		}
		if !inCase[key] {
			return core.Configuration(op, "unknown estimator in %q", key)
		}
	}
	return nil
}

// Summary returns the best draw per estimator, keyed by name, or by
// "case/name" when preprocessing cases are named.
func (e *Evaluator) Summary() map[string]Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]Result, len(e.summary))
	for k, v := range e.summary {
		out[k] = v
	}
	return out
}

// Results returns every draw per key, in draw order.
func (e *Evaluator) Results() map[string][]Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string][]Result, len(e.results))
	for k, v := range e.results {
		out[k] = append([]Result(nil), v...)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

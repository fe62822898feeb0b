package ensemble

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/mat"

	"stackml/pkg/config"
	"stackml/pkg/core"
	"stackml/pkg/fingerprint"
	"stackml/pkg/loader"
	"stackml/pkg/logging"
	"stackml/pkg/model"
)

type state int

const (
	stateUnfit state = iota
	stateFitting
	stateFitted
)

func (s state) String() string {
	switch s {
	case stateFitting:
		return "fitting"
	case stateFitted:
		return "fitted"
	}
	return "unfit"
}

// PredictionFeature appends one column of predictions per estimator to a
// matrix.
//
// Fit trains a clone of every estimator on each fold and another on the full
// data. When Predict or Transform is later given the training matrix itself
// (recognized by a row fingerprint), the fold models predict their held-out
// rows; any other matrix is predicted by the full-data models.
type PredictionFeature struct {
	mu sync.RWMutex

	named []model.Named
	settings

	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	state  state
	fitted *fittedState
}

type settings struct {
	folds       int
	shuffle     bool
	scorer      model.Scorer
	concat      bool
	randomState int64
	sampleSize  int
	verbose     int
	jobs        int
}

// fittedState is replaced as a whole on every successful Fit.
type fittedState struct {
	check       *fingerprint.Checker
	cols        int
	foldHandles map[int][]Handle
	fullHandles map[int][]Handle
	names       []string
	scores      map[string]float64
}

// Option configures a PredictionFeature.
type Option func(*PredictionFeature)

// WithFolds sets the number of cross-validation folds (default 2).
func WithFolds(k int) Option { return func(p *PredictionFeature) { p.folds = k } }

// WithShuffle sets whether rows are shuffled before folding (default true).
func WithShuffle(shuffle bool) Option { return func(p *PredictionFeature) { p.shuffle = shuffle } }

// WithScorer enables per-estimator out-of-fold scores after Fit.
func WithScorer(s model.Scorer) Option { return func(p *PredictionFeature) { p.scorer = s } }

// WithConcat sets whether Transform appends predictions to X (default true)
// or returns them alone.
func WithConcat(concat bool) Option { return func(p *PredictionFeature) { p.concat = concat } }

// WithRandomState seeds fold shuffling.
func WithRandomState(seed int64) Option { return func(p *PredictionFeature) { p.randomState = seed } }

// WithSampleSize sets how many rows the training fingerprint samples
// (default 10). Low-variance data needs more.
func WithSampleSize(n int) Option { return func(p *PredictionFeature) { p.sampleSize = n } }

// WithVerbose sets the verbosity: 1 logs start and finish, 2 logs every job.
func WithVerbose(level int) Option { return func(p *PredictionFeature) { p.verbose = level } }

// WithJobs bounds the worker pool (default 1). Zero or less uses every CPU.
func WithJobs(n int) Option { return func(p *PredictionFeature) { p.jobs = n } }

func WithLogger(l *slog.Logger) Option { return func(p *PredictionFeature) { p.logger = l } }

func WithMetrics(m *Metrics) Option { return func(p *PredictionFeature) { p.metrics = m } }

func WithTracer(t trace.Tracer) Option { return func(p *PredictionFeature) { p.tracer = t } }

// FromConfig translates an ensemble configuration into options.
func FromConfig(cfg config.Ensemble) ([]Option, error) {
	opts := []Option{
		WithFolds(cfg.Folds),
		WithShuffle(cfg.Shuffle),
		WithConcat(cfg.Concat),
		WithRandomState(cfg.RandomState),
		WithSampleSize(cfg.SampleSize),
		WithVerbose(cfg.Verbose),
		WithJobs(cfg.Jobs),
	}
	if cfg.Scorer != "" {
		s, ok := model.ScorerByName(cfg.Scorer)
		if !ok {
			return nil, core.Configuration("config", "unknown scorer %q", cfg.Scorer)
		}
		opts = append(opts, WithScorer(s))
	}
	return opts, nil
}

// NewPredictionFeature creates an unfitted transformer over estimators. The
// estimators are templates: they are cloned for every fit and never fit
// themselves.
func NewPredictionFeature(estimators []model.Estimator, opts ...Option) *PredictionFeature {
	p := &PredictionFeature{
		named: model.NameEstimators(estimators),
		settings: settings{
			folds:      2,
			shuffle:    true,
			concat:     true,
			sampleSize: fingerprint.DefaultSampleSize,
			jobs:       1,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Names returns the estimator names in column order.
func (p *PredictionFeature) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return model.Names(p.named)
}

// Fitted reports whether Predict and Transform can be called.
func (p *PredictionFeature) Fitted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == stateFitted
}

// Scores returns each estimator's out-of-fold score on the training data, or
// nil without a scorer or before Fit.
func (p *PredictionFeature) Scores() map[string]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.fitted == nil || p.fitted.scores == nil {
		return nil
	}
	out := make(map[string]float64, len(p.fitted.scores))
	for k, v := range p.fitted.scores {
		out[k] = v
	}
	return out
}

func (p *PredictionFeature) run(log *slog.Logger) RunOptions {
	jobLog := logging.Discard()
	if p.verbose >= 2 {
		jobLog = log
	}
	return RunOptions{Workers: p.jobs, Logger: jobLog, Metrics: p.metrics, Tracer: p.tracer}
}

// Fit fits the fold-wise and full-data estimators on X. A failed Fit leaves
// the previous fitted state, if any, untouched.
func (p *PredictionFeature) Fit(ctx context.Context, X *core.Frame, y []float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.state
	p.state = stateFitting
	fs, err := p.fit(ctx, X, y)
	if err != nil {
		p.state = prev
		return err
	}
	p.fitted = fs
	p.state = stateFitted
	return nil
}

func (p *PredictionFeature) fit(ctx context.Context, X *core.Frame, y []float64) (*fittedState, error) {
	const op = "prediction_feature.fit"
	rows := X.Rows()
	if rows == 0 {
		return nil, core.Configuration(op, "empty input")
	}
	if len(y) != rows {
		return nil, core.Configuration(op, "%d labels for %d rows", len(y), rows)
	}
	if len(p.named) == 0 {
		return nil, core.Configuration(op, "no estimators")
	}

	log, _ := logging.WithRun(logging.OrDiscard(p.logger))
	log = log.With("component", "prediction_feature")
	start := time.Now()
	if p.verbose >= 1 {
		log.InfoContext(ctx, "fitting estimators", "rows", rows, "folds", p.folds, "estimators", len(p.named))
	}

	check := fingerprint.New(p.sampleSize)
	if err := check.Fit(X); err != nil {
		return nil, err
	}
	folds, err := loader.KFold(rows, p.folds, p.shuffle, p.randomState)
	if err != nil {
		return nil, err
	}
	slices := FoldSlices(folds)
	run := p.run(log)

	foldHandles, err := FitSlices(ctx, X, y, slices, p.named, run)
	if err != nil {
		return nil, err
	}
	fullHandles, err := FitSlices(ctx, X, y, []Slice{FullSlice(rows)}, p.named, run)
	if err != nil {
		return nil, err
	}

	fs := &fittedState{
		check:       check,
		cols:        X.Cols(),
		foldHandles: foldHandles,
		fullHandles: fullHandles,
	}
	for _, h := range fullHandles[FullSliceID] {
		fs.names = append(fs.names, h.Name)
	}

	if p.scorer.Valid() {
		P, names, err := PredictOutOfFold(ctx, X, slices, foldHandles, fs.names, run)
		if err != nil {
			return nil, err
		}
		fs.scores = make(map[string]float64, len(names))
		for j, name := range names {
			fs.scores[name] = p.scorer.Score(y, mat.Col(nil, j, P))
		}
	}

	if p.verbose >= 1 {
		log.InfoContext(ctx, "fit complete", "duration", time.Since(start).String(), "scores", fs.scores)
	}
	return fs, nil
}

// Predict returns one column of predictions per estimator, indexed like X.
// The training matrix gets out-of-fold predictions.
func (p *PredictionFeature) Predict(ctx context.Context, X *core.Frame) (*core.Frame, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.predict(ctx, X)
}

func (p *PredictionFeature) predict(ctx context.Context, X *core.Frame) (*core.Frame, error) {
	const op = "prediction_feature.predict"
	if p.state != stateFitted {
		return nil, core.NotFitted(op)
	}
	fs := p.fitted
	rows := X.Rows()
	if rows == 0 {
		return nil, core.Configuration(op, "empty input")
	}
	if X.Cols() != fs.cols {
		return nil, core.Configuration(op, "%d features, fitted on %d", X.Cols(), fs.cols)
	}

	log := logging.OrDiscard(p.logger).With("component", "prediction_feature")
	run := p.run(log)

	var (
		slices  []Slice
		handles map[int][]Handle
	)
	if fs.check.IsTrain(X) {
		folds, err := loader.KFold(rows, p.folds, p.shuffle, p.randomState)
		if err != nil {
			return nil, err
		}
		slices, handles = FoldSlices(folds), fs.foldHandles
		if p.verbose >= 2 {
			log.DebugContext(ctx, "training set recognized, predicting out of fold", "rows", rows)
		}
	} else {
		slices, handles = []Slice{FullSlice(rows)}, fs.fullHandles
	}

	P, names, err := PredictOutOfFold(ctx, X, slices, handles, fs.names, run)
	if err != nil {
		return nil, err
	}
	out := &core.Frame{Dense: P, Columns: names}
	if X.Index != nil {
		out.Index = append([]string(nil), X.Index...)
	}
	return out, nil
}

// Transform predicts X and, when concat is set, appends the predictions to
// X's columns.
func (p *PredictionFeature) Transform(ctx context.Context, X *core.Frame) (*core.Frame, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.transform(ctx, X)
}

func (p *PredictionFeature) transform(ctx context.Context, X *core.Frame) (*core.Frame, error) {
	P, err := p.predict(ctx, X)
	if err != nil {
		return nil, err
	}
	if !p.concat {
		return P, nil
	}
	return core.HStack(X, P)
}

// FitTransform fits on X and transforms it, which yields out-of-fold
// predictions for every row.
func (p *PredictionFeature) FitTransform(ctx context.Context, X *core.Frame, y []float64) (*core.Frame, error) {
	if err := p.Fit(ctx, X, y); err != nil {
		return nil, err
	}
	return p.Transform(ctx, X)
}

// Params returns the transformer settings, every estimator under its name, and
// every estimator hyperparameter as "name__param".
func (p *PredictionFeature) Params() model.Params {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := model.Params{
		"folds":        p.folds,
		"shuffle":      p.shuffle,
		"random_state": p.randomState,
		"sample_size":  p.sampleSize,
		"verbose":      p.verbose,
		"n_jobs":       p.jobs,
		"scorer":       p.scorer.Name,
		"concat":       p.concat,
	}
	for _, n := range p.named {
		out[n.Name] = n.Estimator
		for k, v := range n.Estimator.Params() {
			out[n.Name+"__"+k] = v
		}
	}
	return out
}

// SetParams updates settings and estimator hyperparameters using the keys of
// Params. Either every key is applied or none is. A successful call discards
// the fitted state.
func (p *PredictionFeature) SetParams(params model.Params) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	const op = "prediction_feature.set_params"
	next := p.settings
	named := append([]model.Named(nil), p.named...)

	index := make(map[string]int, len(named))
	for i, n := range named {
		index[n.Name] = i
	}

	nested := make(map[string]model.Params)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := params[k]
		if name, sub, ok := strings.Cut(k, "__"); ok {
			if _, known := index[name]; !known {
				return core.Configuration(op, "unknown estimator %q in %q", name, k)
			}
			if nested[name] == nil {
				nested[name] = model.Params{}
			}
			nested[name][sub] = v
			continue
		}
		if i, known := index[k]; known {
			est, ok := v.(model.Estimator)
			if !ok || est == nil {
				return core.Configuration(op, "%s: want an estimator, got %T", k, v)
			}
			named[i] = model.Named{Name: k, Estimator: est}
			continue
		}
		if err := next.setOption(k, v); err != nil {
			return core.Configuration(op, "%s: %v", k, err)
		}
	}

	// validate nested params on clones so a bad value changes nothing
	for name, sub := range nested {
		if err := named[index[name]].Estimator.Clone().SetParams(sub); err != nil {
			return err
		}
	}
	for name, sub := range nested {
		if err := named[index[name]].Estimator.SetParams(sub); err != nil {
			return err
		}
	}

	p.named, p.settings = named, next
	p.state, p.fitted = stateUnfit, nil
	return nil
}

func (p *settings) setOption(key string, v any) error {
	var err error
	switch key {
	case "folds":
		p.folds, err = model.ToInt(v)
	case "shuffle":
		p.shuffle, err = model.ToBool(v)
	case "random_state":
		var n int
		n, err = model.ToInt(v)
		p.randomState = int64(n)
	case "sample_size":
		p.sampleSize, err = model.ToInt(v)
	case "verbose":
		p.verbose, err = model.ToInt(v)
	case "n_jobs":
		p.jobs, err = model.ToInt(v)
	case "concat":
		p.concat, err = model.ToBool(v)
	case "scorer":
		switch s := v.(type) {
		case model.Scorer:
			p.scorer = s
		case string:
			if s == "" {
				p.scorer = model.Scorer{}
				break
			}
			sc, ok := model.ScorerByName(s)
			if !ok {
				return fmt.Errorf("unknown scorer %q", s)
			}
			p.scorer = sc
		default:
			err = fmt.Errorf("want a scorer or scorer name, got %T", v)
		}
	default:
		return fmt.Errorf("unknown parameter")
	}
	return err
}

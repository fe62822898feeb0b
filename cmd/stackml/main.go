package main

//
// ---------------------- CLI FLAGS ----------------------
//
// -mode        : "features" appends out-of-fold prediction columns to the data,
//                "evaluate" runs randomized search over the estimators
// -data        : input CSV with a header row (omit to use -synthetic rows)
// -synthetic   : number of generated linear rows when -data is empty
// -config      : optional YAML config; STACKML_* variables override it
// -estimators  : comma separated: ols, knn, linear, logistic
// -out         : output CSV for features mode (default stdout)
// -metrics-out : optional Prometheus text file with job timings
//
// Example:
//   stackml -mode features -data train.csv -estimators ols,knn -out features.csv
//
// -------------------------------------------------------
//

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"

	"stackml/pkg/config"
	"stackml/pkg/core"
	"stackml/pkg/data"
	"stackml/pkg/ensemble"
	"stackml/pkg/evaluator"
	"stackml/pkg/logging"
	"stackml/pkg/model"
	"stackml/pkg/stats"
	"stackml/pkg/synth"
)

func main() {
	mode := flag.String("mode", "features", "features or evaluate")
	dataPath := flag.String("data", "", "input CSV file")
	synthetic := flag.Int("synthetic", 200, "generated rows when -data is empty")
	cfgPath := flag.String("config", "", "YAML config file")
	estimators := flag.String("estimators", "ols,knn", "comma separated estimators")
	outPath := flag.String("out", "", "output CSV (features mode)")
	metricsOut := flag.String("metrics-out", "", "write Prometheus metrics to this file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logging.New(cfg.Logging, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logger, options{
		mode:       *mode,
		dataPath:   *dataPath,
		synthetic:  *synthetic,
		estimators: *estimators,
		outPath:    *outPath,
		metricsOut: *metricsOut,
	}); err != nil {
		logger.Error("stackml failed", "mode", *mode, "error", err)
		os.Exit(1)
	}
}

type options struct {
	mode       string
	dataPath   string
	synthetic  int
	estimators string
	outPath    string
	metricsOut string
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts options) error {
	ds, err := load(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}
	ests, err := buildEstimators(opts.estimators)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	switch opts.mode {
	case "features":
		err = features(ctx, cfg.Ensemble, logger, reg, ds, ests, opts.outPath)
	case "evaluate":
		err = evaluate(ctx, cfg.Evaluator, logger, ds, ests, os.Stdout)
	default:
		err = fmt.Errorf("unknown mode %q", opts.mode)
	}
	if err != nil {
		return err
	}
	if opts.metricsOut != "" {
		return prometheus.WriteToTextfile(opts.metricsOut, reg)
	}
	return nil
}

func load(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts options) (*data.Dataset, error) {
	if opts.dataPath == "" {
		X, y, _ := synth.Linear(opts.synthetic, 3, 0.5, cfg.Ensemble.RandomState)
		logger.Info("using synthetic data", "rows", opts.synthetic)
		return &data.Dataset{X: synth.Indexed(X, "row"), Y: y}, nil
	}
	st, err := data.ParseStrategy(cfg.Data.Impute)
	if err != nil {
		return nil, err
	}
	return data.LoadCSV(ctx, opts.dataPath, data.Options{
		Label:  cfg.Data.Label,
		Index:  cfg.Data.Index,
		Impute: st,
		Logger: logger,
	})
}

func buildEstimators(list string) ([]model.Estimator, error) {
	var out []model.Estimator
	for _, name := range strings.Split(list, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "ols":
			out = append(out, &model.OLS{FitIntercept: true})
		case "knn":
			out = append(out, model.NewKNN(5))
		case "linear":
			out = append(out, model.NewLinearRegression(0.01, 50, 32, 1))
		case "logistic":
			out = append(out, model.NewLogisticRegression(0.1, 100, 32, 1))
		case "":
		default:
			return nil, fmt.Errorf("unknown estimator %q", name)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no estimators in %q", list)
	}
	return out, nil
}

func features(ctx context.Context, cfg config.Ensemble, logger *slog.Logger, reg prometheus.Registerer, ds *data.Dataset, ests []model.Estimator, outPath string) error {
	opts, err := ensemble.FromConfig(cfg)
	if err != nil {
		return err
	}
	opts = append(opts, ensemble.WithLogger(logger), ensemble.WithMetrics(ensemble.NewMetrics(reg)))
	if cfg.Verbose == 0 {
		opts = append(opts, ensemble.WithVerbose(1))
	}

	pf := ensemble.NewPredictionFeature(ests, opts...)
	out, err := pf.FitTransform(ctx, ds.X, ds.Y)
	if err != nil {
		return err
	}
	for name, score := range pf.Scores() {
		logger.Info("out-of-fold score", "estimator", name, "scorer", cfg.Scorer, "score", score)
	}
	return writeFrame(out, outPath)
}

func writeFrame(f *core.Frame, path string) error {
	if path == "" {
		return data.WriteCSV(os.Stdout, f)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := data.WriteCSV(file, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// searchSpace returns the parameter distributions used by evaluate mode,
// keyed by estimator kind.
func searchSpace() map[string]evaluator.ParamDists {
	return map[string]evaluator.ParamDists{
		(&model.OLS{}).Kind():                {"offset": evaluator.RandInt{Low: 0, High: 10}},
		(&model.KNN{}).Kind():                {"k": evaluator.RandInt{Low: 1, High: 15}},
		(&model.LinearRegression{}).Kind():   {"lr": evaluator.Uniform{Low: 0.001, High: 0.05}},
		(&model.LogisticRegression{}).Kind(): {"lr": evaluator.Uniform{Low: 0.01, High: 0.5}},
	}
}

// searchDists maps every named estimator to the search space of its kind.
func searchDists(named []model.Named) map[string]evaluator.ParamDists {
	space := searchSpace()
	out := make(map[string]evaluator.ParamDists, len(named))
	for _, n := range named {
		if pd, ok := space[n.Estimator.Kind()]; ok {
			out[n.Name] = pd
		}
	}
	return out
}

func evaluate(ctx context.Context, cfg config.Evaluator, logger *slog.Logger, ds *data.Dataset, ests []model.Estimator, w io.Writer) error {
	ev, err := evaluator.NewFromConfig(cfg, evaluator.WithLogger(logger))
	if err != nil {
		return err
	}
	dists := searchDists(model.NameEstimators(ests))
	cases := map[string][]model.Transformer{
		"raw": nil,
		"std": {stats.NewStandardScaler()},
		"mm":  {stats.NewClipper(1, 99), stats.NewMinMaxScaler()},
	}
	if err := ev.Fit(ctx, ds.X, ds.Y, ests, dists, cases, cfg.Iterations); err != nil {
		return err
	}

	summary := ev.Summary()
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "key\ttest_%s\tstd\ttrain_%s\tfit_time\tparams\n", cfg.Scorer, cfg.Scorer)
	for _, k := range keys {
		r := summary[k]
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%s\t%v\n", k, r.TestScoreMean, r.TestScoreStd, r.TrainScoreMean, r.FitTimeMean, r.Params)
	}
	return tw.Flush()
}

package main

import (
	"context"
	"fmt"
	"image/color"
	"log"
	"os"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"stackml/pkg/config"
	"stackml/pkg/evaluator"
	"stackml/pkg/logging"
	"stackml/pkg/model"
	"stackml/pkg/stats"
	"stackml/pkg/synth"
)

// plotSummary draws the best mean test score of every case/estimator pair.
func plotSummary(summary map[string]evaluator.Result, filename string) {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vals := make(plotter.Values, len(keys))
	for i, k := range keys {
		vals[i] = summary[k].TestScoreMean
	}

	p := plot.New()
	p.Title.Text = "Best test RMSE"
	p.Y.Label.Text = "rmse"

	bars, err := plotter.NewBarChart(vals, vg.Points(20))
	if err != nil {
		log.Fatal(err)
	}
	bars.Color = color.RGBA{B: 200, A: 255}
	p.Add(bars)
	p.NominalX(keys...)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, filename); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Plot saved to %s\n", filename)
}

func main() {
	logger := logging.New(config.Logging{Level: "info", Format: "text"}, os.Stderr)

	X, y, _ := synth.Ramp(100, 2, 100)

	ev := evaluator.New(model.RMSEScorer,
		evaluator.WithFolds(2),
		evaluator.WithShuffle(true),
		evaluator.WithRandomState(100),
		evaluator.WithJobs(4),
		evaluator.WithLogger(logger),
	)
	ests := []model.Estimator{model.NewOLS(0), model.NewKNN(3)}
	dists := map[string]evaluator.ParamDists{
		"ols": {"offset": evaluator.RandInt{Low: 1, High: 10}},
		"knn": {"k": evaluator.Choice{Values: []any{1, 3, 5, 9}}},
	}
	prep := map[string][]model.Transformer{
		"no": nil,
		"pr": {stats.NewStandardScaler()},
	}
	if err := ev.Fit(context.Background(), X, y, ests, dists, prep, 4); err != nil {
		log.Fatal(err)
	}

	summary := ev.Summary()
	for _, k := range []string{"no/ols", "no/knn", "pr/ols", "pr/knn"} {
		r := summary[k]
		fmt.Printf("%-8s test %.3f (%.3f)  train %.3f  params %v\n", k, r.TestScoreMean, r.TestScoreStd, r.TrainScoreMean, r.Params)
	}
	plotSummary(summary, "model_selection.png")
}

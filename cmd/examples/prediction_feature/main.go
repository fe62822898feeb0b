package main

import (
	"context"
	"fmt"
	"image/color"
	"log"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"stackml/pkg/config"
	"stackml/pkg/core"
	"stackml/pkg/ensemble"
	"stackml/pkg/logging"
	"stackml/pkg/model"
	"stackml/pkg/synth"
)

// plotOutOfFold draws out-of-fold predictions against the true labels, one
// series per estimator, plus the y = x reference line.
func plotOutOfFold(y []float64, P *core.Frame, filename string) {
	p := plot.New()
	p.Title.Text = "Out-of-fold predictions"
	p.X.Label.Text = "y"
	p.Y.Label.Text = "prediction"

	palette := []color.RGBA{
		{R: 255, A: 255},
		{B: 255, A: 255},
		{G: 160, A: 255},
	}
	lo, hi := y[0], y[0]
	for j := 0; j < P.Cols(); j++ {
		pts := make(plotter.XYs, len(y))
		for i := range y {
			pts[i].X = y[i]
			pts[i].Y = P.At(i, j)
			lo, hi = min(lo, y[i]), max(hi, y[i])
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			log.Fatal(err)
		}
		s.Color = palette[j%len(palette)]
		p.Add(s)
		p.Legend.Add(P.Columns[j], s)
	}

	ref, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		log.Fatal(err)
	}
	ref.LineStyle.Width = vg.Points(2)
	ref.LineStyle.Color = color.RGBA{A: 255}
	p.Add(ref)

	if err := p.Save(5*vg.Inch, 5*vg.Inch, filename); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Plot saved to %s\n", filename)
}

func main() {
	logger := logging.New(config.Logging{Level: "info", Format: "text"}, os.Stderr)
	ctx := context.Background()

	X, y, truth := synth.Linear(300, 3, 1.0, 42)
	fmt.Printf("True weights: %v, bias: %.3f\n", truth.W, truth.B)

	pf := ensemble.NewPredictionFeature(
		[]model.Estimator{&model.OLS{FitIntercept: true}, model.NewKNN(7), model.NewLinearRegression(0.01, 40, 16, 1)},
		ensemble.WithFolds(5),
		ensemble.WithRandomState(7),
		ensemble.WithScorer(model.RMSEScorer),
		ensemble.WithLogger(logger),
		ensemble.WithVerbose(1),
		ensemble.WithConcat(false),
	)
	// training data, so predictions are out-of-fold
	P, err := pf.FitTransform(ctx, X, y)
	if err != nil {
		log.Fatal(err)
	}
	for _, name := range pf.Names() {
		fmt.Printf("%-18s out-of-fold RMSE %.4f\n", name, pf.Scores()[name])
	}
	plotOutOfFold(y, P, "out_of_fold.png")

	// unseen rows go through the full-data estimators
	Xt, _, _ := synth.Linear(5, 3, 1.0, 43)
	Pt, err := pf.Predict(ctx, Xt)
	if err != nil {
		log.Fatal(err)
	}
	for i := 0; i < Pt.Rows(); i++ {
		fmt.Printf("row %d: %v\n", i, Pt.RowSlice(i))
	}
}

package data

import (
	"fmt"
	"math"

	"stackml/pkg/stats"
)

// Strategy selects how missing cells are filled.
type Strategy string

const (
	ImputeMean   Strategy = "mean"
	ImputeMedian Strategy = "median"
	ImputeZero   Strategy = "zero"
	ImputeNone   Strategy = "none" // missing cells are an error
)

// isMissing reports whether a raw CSV cell counts as missing.
func isMissing(s string) bool {
	return s == "" || s == "NA" || s == "NaN" || s == "nan" || s == "null"
}

// ParseStrategy maps a config string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case ImputeMean, ImputeMedian, ImputeZero, ImputeNone:
		return st, nil
	case "":
		return ImputeMean, nil
	}
	return "", fmt.Errorf("unknown imputation strategy %q", s)
}

// impute fills NaN cells of col in place and returns how many were filled.
// A column with no observed values is filled with zeros.
func impute(col []float64, st Strategy) int {
	var seen []float64
	for _, v := range col {
		if !math.IsNaN(v) {
			seen = append(seen, v)
		}
	}
	missing := len(col) - len(seen)
	if missing == 0 {
		return 0
	}

	fill := 0.0
	switch st {
	case ImputeMean:
		fill = stats.Mean(seen)
	case ImputeMedian:
		fill = stats.Median(seen)
	}
	for i, v := range col {
		if math.IsNaN(v) {
			col[i] = fill
		}
	}
	return missing
}

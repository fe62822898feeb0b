package data

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"stackml/pkg/core"
	"stackml/pkg/logging"
)

// Options controls CSV ingestion.
type Options struct {
	// Label is the header name of the target column. Empty means the last
	// column. Set NoLabel to load features only.
	Label   string
	NoLabel bool
	// Index names a column holding row labels; it is not parsed as a feature.
	Index  string
	Impute Strategy
	Logger *slog.Logger
}

// Dataset is a loaded feature frame with its aligned labels.
type Dataset struct {
	X *core.Frame
	Y []float64
}

// LoadCSV opens path and reads it with ReadCSV.
func LoadCSV(ctx context.Context, path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(ctx, bufio.NewReader(f), opts)
}

// ReadCSV reads a CSV with a header row. Missing feature cells are imputed per
// column; a missing or unparsable label is an error.
func ReadCSV(ctx context.Context, r io.Reader, opts Options) (*Dataset, error) {
	log := logging.OrDiscard(opts.Logger)
	if opts.Impute == "" {
		opts.Impute = ImputeMean
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv: empty input")
		}
		return nil, fmt.Errorf("csv header: %w", err)
	}

	labelCol, indexCol := -1, -1
	if !opts.NoLabel {
		labelCol = len(header) - 1
		if opts.Label != "" {
			if labelCol = column(header, opts.Label); labelCol < 0 {
				return nil, fmt.Errorf("csv: label column %q not found", opts.Label)
			}
		}
	}
	if opts.Index != "" {
		if indexCol = column(header, opts.Index); indexCol < 0 {
			return nil, fmt.Errorf("csv: index column %q not found", opts.Index)
		}
		if indexCol == labelCol {
			return nil, errors.New("csv: index and label are the same column")
		}
	}

	var features []int
	var names []string
	for i, h := range header {
		if i != labelCol && i != indexCol {
			features = append(features, i)
			names = append(names, h)
		}
	}
	if len(features) == 0 {
		return nil, errors.New("csv: no feature columns")
	}

	cols := make([][]float64, len(features))
	var y []float64
	var index []string
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}

		for j, c := range features {
			v, err := parseCell(rec[c], opts.Impute)
			if err != nil {
				return nil, fmt.Errorf("csv line %d, column %q: %w", line, header[c], err)
			}
			cols[j] = append(cols[j], v)
		}
		if labelCol >= 0 {
			v, err := strconv.ParseFloat(rec[labelCol], 64)
			if err != nil {
				return nil, fmt.Errorf("csv line %d: label: %w", line, err)
			}
			y = append(y, v)
		}
		if indexCol >= 0 {
			index = append(index, rec[indexCol])
		}
	}

	rows := len(cols[0])
	if rows == 0 {
		return nil, errors.New("csv: no data rows")
	}
	d := mat.NewDense(rows, len(features), nil)
	for j, col := range cols {
		if n := impute(col, opts.Impute); n > 0 {
			log.Debug("imputed missing values", "column", names[j], "count", n, "strategy", opts.Impute)
		}
		d.SetCol(j, col)
	}

	frame, err := core.NewFrame(d, index)
	if err != nil {
		return nil, err
	}
	frame.Columns = names
	log.Info("loaded csv", "rows", rows, "features", len(features), "labelled", labelCol >= 0)
	return &Dataset{X: frame, Y: y}, nil
}

func parseCell(s string, st Strategy) (float64, error) {
	if isMissing(s) {
		if st == ImputeNone {
			return 0, errors.New("missing value")
		}
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func column(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

// WriteCSV writes a frame (and its index, when set) with a header row.
func WriteCSV(w io.Writer, f *core.Frame) error {
	cw := csv.NewWriter(w)
	rows, cols := f.Rows(), f.Cols()

	header := make([]string, 0, cols+1)
	if f.Index != nil {
		header = append(header, "index")
	}
	for j := 0; j < cols; j++ {
		if j < len(f.Columns) {
			header = append(header, f.Columns[j])
		} else {
			header = append(header, "x"+strconv.Itoa(j))
		}
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	rec := make([]string, len(header))
	for i := 0; i < rows; i++ {
		k := 0
		if f.Index != nil {
			rec[0] = f.Index[i]
			k = 1
		}
		for j := 0; j < cols; j++ {
			rec[k+j] = strconv.FormatFloat(f.At(i, j), 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

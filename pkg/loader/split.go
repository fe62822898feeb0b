package loader

import (
	"math/rand"
	"sort"

	"stackml/pkg/core"
)

// Fold is one train/test partition of the row index.
type Fold struct {
	ID    int
	Train []int
	Test  []int
}

// KFold splits rows into k folds. Each row is held out in exactly one fold.
// With shuffle the row order is permuted by seed before slicing into k
// contiguous blocks; without it block i holds rows [i*rows/k, (i+1)*rows/k).
// Identical arguments always give identical folds.
func KFold(rows, k int, shuffle bool, seed int64) ([]Fold, error) {
	if k < 2 {
		return nil, core.Configuration("kfold", "need at least 2 folds, got %d", k)
	}
	if rows < 1 {
		return nil, core.Configuration("kfold", "no rows to split")
	}
	if k > rows {
		return nil, core.Configuration("kfold", "%d folds for %d rows", k, rows)
	}

	order := make([]int, rows)
	if shuffle {
		order = rand.New(rand.NewSource(seed)).Perm(rows)
	} else {
		for i := range order {
			order[i] = i
		}
	}

	folds := make([]Fold, k)
	for i := range k {
		lo, hi := i*rows/k, (i+1)*rows/k

		test := append([]int(nil), order[lo:hi]...)
		train := make([]int, 0, rows-(hi-lo))
		train = append(train, order[:lo]...)
		train = append(train, order[hi:]...)
		sort.Ints(test)
		sort.Ints(train)

		folds[i] = Fold{ID: i, Train: train, Test: test}
	}
	return folds, nil
}

// TrainTestSplit splits X, y into train and test sets by ratio using a
// seeded permutation.
func TrainTestSplit(X *core.Frame, y []float64, testRatio float64, seed int64) (XTrain, XTest *core.Frame, yTrain, yTest []float64, err error) {
	n := X.Rows()
	if len(y) != n {
		return nil, nil, nil, nil, core.Configuration("train_test_split", "%d labels for %d rows", len(y), n)
	}
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, nil, nil, core.Configuration("train_test_split", "test ratio %v outside (0, 1)", testRatio)
	}
	indices := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(float64(n) * testRatio)
	if nTest == 0 || nTest == n {
		return nil, nil, nil, nil, core.Configuration("train_test_split", "ratio %v leaves an empty side for %d rows", testRatio, n)
	}
	testIdx, trainIdx := indices[:nTest], indices[nTest:]

	XTrain, XTest = X.Subset(trainIdx), X.Subset(testIdx)
	yTrain, yTest = core.SelectValues(y, trainIdx), core.SelectValues(y, testIdx)
	return XTrain, XTest, yTrain, yTest, nil
}

// Shuffle permutes X and y in unison.
func Shuffle(X *core.Frame, y []float64, seed int64) (*core.Frame, []float64) {
	indices := rand.New(rand.NewSource(seed)).Perm(X.Rows())
	return X.Subset(indices), core.SelectValues(y, indices)
}

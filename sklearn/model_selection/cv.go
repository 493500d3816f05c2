package model_selection

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/HaoJinjin/open-soda/core/model"
	"github.com/HaoJinjin/open-soda/metrics"
	"github.com/HaoJinjin/open-soda/pkg/errors"
)

// TimeSeriesSplit yields expanding-window folds: each fold trains on a
// prefix of the samples and tests on the block that follows it.
type TimeSeriesSplit struct {
	NSplits int
}

// NewTimeSeriesSplit creates a splitter with nSplits folds (default 5).
func NewTimeSeriesSplit(nSplits int) *TimeSeriesSplit {
	if nSplits < 2 {
		nSplits = 5
	}
	return &TimeSeriesSplit{NSplits: nSplits}
}

// Split returns the folds for n ordered samples.
func (ts *TimeSeriesSplit) Split(n int) ([]Split, error) {
	nFolds := ts.NSplits + 1
	if n < nFolds {
		return nil, errors.NewValueError("TimeSeriesSplit.Split",
			"cannot have number of folds greater than the number of samples")
	}
	testSize := n / nFolds
	first := n - ts.NSplits*testSize

	folds := make([]Split, 0, ts.NSplits)
	for k := 0; k < ts.NSplits; k++ {
		trainEnd := first + k*testSize
		fold := Split{Train: make([]int, trainEnd), Test: make([]int, testSize)}
		for i := range fold.Train {
			fold.Train[i] = i
		}
		for i := range fold.Test {
			fold.Test[i] = trainEnd + i
		}
		folds = append(folds, fold)
	}
	return folds, nil
}

// CVResult summarises the R² scores of a cross-validation run.
type CVResult struct {
	Scores []float64
	Mean   float64
	Std    float64
}

// CrossValScore fits a fresh model from newModel on every fold and scores
// it with R² on the held-out block. Std is the population standard deviation.
func CrossValScore(newModel func() model.Regressor, X mat.Matrix, y []float64, folds []Split) (CVResult, error) {
	if len(folds) == 0 {
		return CVResult{}, errors.NewValueError("CrossValScore", "no folds")
	}
	scores := make([]float64, len(folds))
	for k, fold := range folds {
		m := newModel()
		yTrain := mat.NewVecDense(len(fold.Train), TakeValues(y, fold.Train))
		if err := m.Fit(TakeRows(X, fold.Train), yTrain); err != nil {
			return CVResult{}, errors.Wrapf(err, "fold %d", k)
		}
		pred, err := m.Predict(TakeRows(X, fold.Test))
		if err != nil {
			return CVResult{}, errors.Wrapf(err, "fold %d", k)
		}
		yTest := mat.NewVecDense(len(fold.Test), TakeValues(y, fold.Test))
		score, err := metrics.R2Score(yTest, metrics.ColumnVec(pred))
		if err != nil {
			return CVResult{}, errors.Wrapf(err, "fold %d", k)
		}
		scores[k] = score
	}
	mean, variance := stat.PopMeanVariance(scores, nil)
	return CVResult{Scores: scores, Mean: mean, Std: sqrt(variance)}, nil
}

func sqrt(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

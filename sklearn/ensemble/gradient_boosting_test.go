package ensemble

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/HaoJinjin/open-soda/core/model"
	"github.com/HaoJinjin/open-soda/metrics"
	"github.com/HaoJinjin/open-soda/pkg/errors"
)

func makeFriedmanLike(n int) (*mat.Dense, *mat.VecDense) {
	X := mat.NewDense(n, 3, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		a := math.Sin(float64(i) * 0.37)
		b := math.Cos(float64(i) * 0.11)
		c := float64(i%5) / 5 // ノイズ列
		X.SetRow(i, []float64{a, b, c})
		y.SetVec(i, 4*a*a+2*b)
	}
	return X, y
}

func TestGradientBoostingFitsTrainingData(t *testing.T) {
	X, y := makeFriedmanLike(200)

	gbr := NewGradientBoostingRegressor(WithNEstimators(50))
	if err := gbr.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	pred, err := gbr.Predict(X)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	r2, err := metrics.R2Score(y, metrics.ColumnVec(pred))
	if err != nil {
		t.Fatalf("R2Score() error = %v", err)
	}
	if r2 < 0.9 {
		t.Errorf("train R² = %v, want > 0.9", r2)
	}

	scores := gbr.TrainScore()
	if len(scores) != 50 {
		t.Fatalf("len(TrainScore()) = %d, want 50", len(scores))
	}
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[i-1]+1e-12 {
			t.Errorf("train loss increased at stage %d: %v -> %v", i, scores[i-1], scores[i])
		}
	}
}

func TestGradientBoostingImportances(t *testing.T) {
	X, y := makeFriedmanLike(200)

	gbr := NewGradientBoostingRegressor(WithNEstimators(30))
	if err := gbr.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	exp, err := gbr.Explain()
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if exp.Kind != model.TreeImportances {
		t.Errorf("Kind = %v, want TreeImportances", exp.Kind)
	}
	sum := 0.0
	for _, v := range exp.Values {
		if v < 0 {
			t.Errorf("negative importance %v", v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("importances sum to %v, want 1", sum)
	}
	if exp.Values[2] >= exp.Values[0] {
		t.Errorf("noise column importance %v should be below signal %v", exp.Values[2], exp.Values[0])
	}
}

func TestGradientBoostingDeterministic(t *testing.T) {
	X, y := makeFriedmanLike(120)

	fit := func() mat.Matrix {
		gbr := NewGradientBoostingRegressor(
			WithNEstimators(20),
			WithSubsample(0.8),
			WithColsampleByTree(0.67),
			WithRandomState(42),
		)
		if err := gbr.Fit(X, y); err != nil {
			t.Fatalf("Fit() error = %v", err)
		}
		pred, err := gbr.Predict(X)
		if err != nil {
			t.Fatalf("Predict() error = %v", err)
		}
		return pred
	}

	a, b := fit(), fit()
	if !mat.Equal(a, b) {
		t.Error("same seed must give identical predictions")
	}
}

func TestGradientBoostingValidation(t *testing.T) {
	X, y := makeFriedmanLike(10)

	tests := []struct {
		name string
		opt  Option
	}{
		{"zero estimators", WithNEstimators(0)},
		{"negative learning rate", WithLearningRate(-0.1)},
		{"subsample above one", WithSubsample(1.5)},
		{"zero colsample", WithColsampleByTree(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewGradientBoostingRegressor(tt.opt).Fit(X, y)
			var valErr *errors.ValidationError
			if !errors.As(err, &valErr) {
				t.Errorf("Fit() = %v, want ValidationError", err)
			}
		})
	}
}

func TestGradientBoostingConstantTarget(t *testing.T) {
	X := mat.NewDense(5, 1, []float64{1, 2, 3, 4, 5})
	y := mat.NewVecDense(5, []float64{2, 2, 2, 2, 2})

	gbr := NewGradientBoostingRegressor(WithNEstimators(5))
	if err := gbr.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	pred, _ := gbr.Predict(X)
	for i := 0; i < 5; i++ {
		if pred.At(i, 0) != 2 {
			t.Errorf("pred[%d] = %v, want 2", i, pred.At(i, 0))
		}
	}
	for _, v := range gbr.FeatureImportances() {
		if v != 0 {
			t.Errorf("importance = %v, want 0 when no tree splits", v)
		}
	}
}

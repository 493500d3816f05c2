package tree

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/HaoJinjin/open-soda/core/model"
	"github.com/HaoJinjin/open-soda/pkg/errors"
)

// TestDecisionTreeRegressor_StepFunction checks that a single split
// recovers a step function exactly.
func TestDecisionTreeRegressor_StepFunction(t *testing.T) {
	X := mat.NewDense(8, 2, []float64{
		0, 5,
		1, 3,
		2, 5,
		3, 3,
		4, 5,
		5, 3,
		6, 5,
		7, 3,
	})
	y := mat.NewVecDense(8, []float64{1, 1, 1, 1, 9, 9, 9, 9})

	dt := NewDecisionTreeRegressor(WithMaxDepth(1))
	if err := dt.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit model: %v", err)
	}

	pred, err := dt.Predict(X)
	if err != nil {
		t.Fatalf("Failed to predict: %v", err)
	}
	for i := 0; i < 8; i++ {
		if pred.At(i, 0) != y.AtVec(i) {
			t.Errorf("Sample %d: expected %v, got %v", i, y.AtVec(i), pred.At(i, 0))
		}
	}

	if dt.NodeCount() != 3 {
		t.Errorf("NodeCount() = %d, want 3", dt.NodeCount())
	}
	if dt.nodes[0].Threshold != 3.5 {
		t.Errorf("root threshold = %v, want 3.5 (midpoint)", dt.nodes[0].Threshold)
	}

	imp := dt.FeatureImportances()
	if imp[0] != 1 || imp[1] != 0 {
		t.Errorf("FeatureImportances() = %v, want [1 0]", imp)
	}
}

func TestDecisionTreeRegressor_MaxDepth(t *testing.T) {
	n := 64
	X := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		y.SetVec(i, math.Sin(float64(i)/4))
	}

	for _, depth := range []int{1, 2, 3} {
		dt := NewDecisionTreeRegressor(WithMaxDepth(depth))
		if err := dt.Fit(X, y); err != nil {
			t.Fatalf("Fit() error = %v", err)
		}
		if dt.Depth() > depth {
			t.Errorf("Depth() = %d, want <= %d", dt.Depth(), depth)
		}
		if dt.NodeCount() > 1<<(depth+1)-1 {
			t.Errorf("NodeCount() = %d exceeds full binary tree of depth %d", dt.NodeCount(), depth)
		}
	}
}

func TestDecisionTreeRegressor_MinSamplesLeaf(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{1, 2, 3, 4, 5, 100})
	y := mat.NewVecDense(6, []float64{1, 1, 1, 1, 1, 50})

	dt := NewDecisionTreeRegressor(WithMinSamplesLeaf(2))
	if err := dt.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	for _, node := range dt.nodes {
		if node.IsLeaf() && node.NSamples < 2 {
			t.Errorf("leaf with %d samples violates min_samples_leaf", node.NSamples)
		}
	}
}

func TestDecisionTreeRegressor_ConstantTarget(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewVecDense(4, []float64{7, 7, 7, 7})

	dt := NewDecisionTreeRegressor()
	if err := dt.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if dt.NodeCount() != 1 {
		t.Errorf("NodeCount() = %d, want single leaf", dt.NodeCount())
	}
	exp, err := dt.Explain()
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if exp.Kind != model.TreeImportances || exp.Values[0] != 0 {
		t.Errorf("Explain() = %+v, want zero tree importances", exp)
	}
}

func TestDecisionTreeRegressor_FeatureSubset(t *testing.T) {
	columns := [][]float64{
		{0, 1, 2, 3},
		{10, 10, 20, 20},
	}
	y := []float64{0, 0, 5, 5}

	dt := NewDecisionTreeRegressor()
	if err := dt.FitColumns(columns, y, nil, []int{1}); err != nil {
		t.Fatalf("FitColumns() error = %v", err)
	}
	if dt.nodes[0].Feature != 1 {
		t.Errorf("root feature = %d, want 1", dt.nodes[0].Feature)
	}
	if got := dt.PredictColumns(columns, 3); got != 5 {
		t.Errorf("PredictColumns() = %v, want 5", got)
	}
}

func TestDecisionTreeRegressor_NotFitted(t *testing.T) {
	dt := NewDecisionTreeRegressor()
	_, err := dt.Predict(mat.NewDense(1, 1, []float64{0}))
	var notFitted *errors.NotFittedError
	if !errors.As(err, &notFitted) {
		t.Errorf("Predict before Fit = %v, want NotFittedError", err)
	}
}

package preprocessing

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestSimpleImputerMedian(t *testing.T) {
	nan := math.NaN()
	X := mat.NewDense(5, 2, []float64{
		1, nan,
		nan, 4,
		3, 8,
		10, nan,
		2, 6,
	})

	imp := NewSimpleImputer(ImputeMedian)
	out, err := imp.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform() error = %v", err)
	}

	// 列0: [1,3,10,2] の中央値 2.5, 列1: [4,8,6] の中央値 6
	if imp.Statistics[0] != 2.5 || imp.Statistics[1] != 6 {
		t.Fatalf("Statistics = %v, want [2.5 6]", imp.Statistics)
	}
	if out.At(1, 0) != 2.5 || out.At(0, 1) != 6 || out.At(3, 1) != 6 {
		t.Errorf("missing values not filled: %v", mat.Formatted(out))
	}
	if out.At(2, 0) != 3 {
		t.Errorf("present value changed: %v", out.At(2, 0))
	}
}

func TestSimpleImputerStrategies(t *testing.T) {
	tests := []struct {
		name     string
		in       []float64
		strategy ImputeStrategy
		want     []float64
		wantErr  bool
	}{
		{"median", []float64{math.NaN(), 1, 5}, ImputeMedian, []float64{3, 1, 5}, false},
		{"mean", []float64{2, math.NaN(), 4, 6}, ImputeMean, []float64{2, 4, 4, 6}, false},
		{"unknown strategy", []float64{1}, "mode", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewSimpleImputer(tt.strategy).FitTransform(mat.NewVecDense(len(tt.in), tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("FitTransform() error = %v, wantErr %v", err, tt.wantErr)
			}
			for i := range tt.want {
				if got := out.At(i, 0); got != tt.want[i] {
					t.Errorf("FitTransform()[%d] = %v, want %v", i, got, tt.want[i])
				}
			}
		})
	}
}

func TestSimpleImputerTransformRequiresFit(t *testing.T) {
	imp := NewSimpleImputer(ImputeMedian)
	if _, err := imp.Transform(mat.NewDense(1, 1, []float64{1})); err == nil {
		t.Fatal("Transform() before Fit should fail")
	}
	if err := imp.Fit(mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})); err != nil {
		t.Fatal(err)
	}
	if _, err := imp.Transform(mat.NewDense(1, 3, []float64{1, 2, 3})); err == nil {
		t.Fatal("Transform() with a different column count should fail")
	}
}

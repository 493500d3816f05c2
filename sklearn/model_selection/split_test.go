package model_selection

import (
	"sort"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/HaoJinjin/open-soda/pkg/errors"
)

func TestTrainTestSplitPartition(t *testing.T) {
	split, err := TrainTestSplit(100, 0.3, 42)
	if err != nil {
		t.Fatalf("TrainTestSplit() error = %v", err)
	}
	if len(split.Test) != 30 || len(split.Train) != 70 {
		t.Fatalf("sizes = %d/%d, want 70/30", len(split.Train), len(split.Test))
	}
	all := append(append([]int(nil), split.Train...), split.Test...)
	sort.Ints(all)
	for i, v := range all {
		if v != i {
			t.Fatalf("index %d missing or duplicated", i)
		}
	}
}

func TestTrainTestSplitDeterministic(t *testing.T) {
	a, err := TrainTestSplit(57, 0.3, 42)
	if err != nil {
		t.Fatal(err)
	}
	b, err := TrainTestSplit(57, 0.3, 42)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Test {
		if a.Test[i] != b.Test[i] {
			t.Fatalf("same seed produced different test sets")
		}
	}

	c, err := TrainTestSplit(57, 0.3, 7)
	if err != nil {
		t.Fatal(err)
	}
	same := true
	for i := range a.Test {
		if a.Test[i] != c.Test[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical test sets")
	}
}

func TestTrainTestSplitRounding(t *testing.T) {
	// 7 * 0.3 = 2.1 → 2 test rows
	split, err := TrainTestSplit(7, 0.3, 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(split.Test) != 2 || len(split.Train) != 5 {
		t.Errorf("sizes = %d/%d, want 5/2", len(split.Train), len(split.Test))
	}
}

func TestTrainTestSplitTooFew(t *testing.T) {
	for _, n := range []int{0, 1, 3, 4} {
		_, err := TrainTestSplit(n, 0.3, 42)
		if !errors.IsInputError(err) {
			t.Errorf("n=%d: error = %v, want input error", n, err)
		}
	}
	var ve *errors.ValidationError
	if _, err := TrainTestSplit(10, 1.5, 42); !errors.As(err, &ve) {
		t.Errorf("test_size=1.5: error = %v, want ValidationError", err)
	}
}

func TestTakeRows(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	got := TakeRows(X, []int{2, 0})
	want := mat.NewDense(2, 2, []float64{5, 6, 1, 2})
	if !mat.Equal(got, want) {
		t.Errorf("TakeRows = %v, want %v", mat.Formatted(got), mat.Formatted(want))
	}
	vals := TakeValues([]float64{10, 20, 30}, []int{1, 1, 2})
	if vals[0] != 20 || vals[1] != 20 || vals[2] != 30 {
		t.Errorf("TakeValues = %v", vals)
	}
}

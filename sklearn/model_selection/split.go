// Package model_selection splits samples into train and test partitions.
package model_selection

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/HaoJinjin/open-soda/pkg/errors"
)

// Split holds the row indices of a train/test partition.
type Split struct {
	Train []int
	Test  []int
}

// TrainTestSplit shuffles n row indices with a PCG source seeded by seed and
// assigns the first round(n*testSize) of the permutation to the test set.
// The result depends only on n, testSize and seed.
func TrainTestSplit(n int, testSize float64, seed uint64) (Split, error) {
	if testSize <= 0 || testSize >= 1 {
		return Split{}, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	nTest := int(math.Round(float64(n) * testSize))
	nTrain := n - nTest
	if nTest < 2 || nTrain < 2 {
		return Split{}, errors.NewInputErrorf("TrainTestSplit",
			"%d valid samples are too few for a %.0f/%.0f split", n, (1-testSize)*100, testSize*100)
	}

	r := rand.New(rand.NewPCG(seed, seed))
	perm := r.Perm(n)

	split := Split{
		Test:  append([]int(nil), perm[:nTest]...),
		Train: append([]int(nil), perm[nTest:]...),
	}
	return split, nil
}

// TakeRows returns the rows of X at idx, in idx order.
func TakeRows(X mat.Matrix, idx []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, row := range idx {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(row, j))
		}
	}
	return out
}

// TakeValues returns values at idx, in idx order.
func TakeValues(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, row := range idx {
		out[i] = values[row]
	}
	return out
}

package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/HaoJinjin/open-soda/core/parallel"
)

// PearsonCorrelation は x と y のピアソン相関係数を計算する
//
// どちらかが NaN の行は除外する（pairwise complete）。有効な行が2未満、
// または一方の分散が0の場合は NaN を返す。
func PearsonCorrelation(x, y []float64) float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	if isConstant(xs) || isConstant(ys) {
		return math.NaN()
	}
	return stat.Correlation(xs, ys, nil)
}

func isConstant(v []float64) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return false
		}
	}
	return true
}

// CorrelationMatrix は列同士のピアソン相関行列を計算する。対角成分は1。
func CorrelationMatrix(columns [][]float64) [][]float64 {
	k := len(columns)
	out := make([][]float64, k)
	for i := range out {
		out[i] = make([]float64, k)
	}
	parallel.ForEach(k, 8, func(i int) {
		for j := 0; j < k; j++ {
			if i == j {
				out[i][j] = 1
				continue
			}
			out[i][j] = PearsonCorrelation(columns[i], columns[j])
		}
	})
	return out
}

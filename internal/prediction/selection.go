package prediction

import (
	"math"

	"github.com/HaoJinjin/open-soda/core/model"
)

// ModelResult holds the metrics of one fitted bank model. YTrue and YPred
// are on the original target scale, in test-split order.
type ModelResult struct {
	Name           string
	R2Train        float64
	R2Test         float64
	RMSE           float64
	MAE            float64
	OverfittingGap float64
	Score          float64
	YTrue          []float64
	YPred          []float64
	Model          model.Regressor
}

// Penalty returns the overfitting penalty for a train/test R² gap.
func Penalty(gap float64) float64 {
	switch {
	case gap > 0.2:
		return 0.3
	case gap > 0.1:
		return 0.1
	default:
		return 0
	}
}

// SelectionScore is r2Test minus the penalty for the gap.
func SelectionScore(r2Train, r2Test float64) float64 {
	return r2Test - Penalty(r2Train-r2Test)
}

// SelectBest returns the index of the winning result: highest score, then
// lowest RMSE, then earliest in bank order. NaN sorts below everything.
func SelectBest(results []*ModelResult) int {
	best := -1
	for i, r := range results {
		if best == -1 || better(r, results[best]) {
			best = i
		}
	}
	return best
}

func better(a, b *ModelResult) bool {
	sa, sb := orderable(a.Score, -1), orderable(b.Score, -1)
	if sa != sb {
		return sa > sb
	}
	ra, rb := orderable(a.RMSE, 1), orderable(b.RMSE, 1)
	return ra < rb
}

// orderable maps NaN to the worst end of the ordering: -Inf when larger is
// better (dir -1), +Inf when smaller is better (dir 1).
func orderable(v float64, dir int) float64 {
	if math.IsNaN(v) {
		return math.Inf(dir)
	}
	return v
}

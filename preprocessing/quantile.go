package preprocessing

import (
	"math"
	"sort"
)

// Percentile returns the p-th percentile (0..100) of the non-NaN values,
// interpolating linearly between closest ranks. It returns NaN when no
// value is present.
func Percentile(values []float64, p float64) float64 {
	sorted := presentSorted(values)
	if len(sorted) == 0 {
		return math.NaN()
	}
	return percentileSorted(sorted, p)
}

// Median returns the median of the non-NaN values. For an even count it is
// the mean of the two middle values.
func Median(values []float64) float64 {
	return Percentile(values, 50)
}

func presentSorted(values []float64) []float64 {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	sort.Float64s(sorted)
	return sorted
}

func percentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

package metrics

import (
	"math"
	"testing"
)

func TestPearsonCorrelation(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name    string
		x, y    []float64
		want    float64
		wantNaN bool
	}{
		{name: "perfect positive", x: []float64{1, 2, 3, 4}, y: []float64{2, 4, 6, 8}, want: 1},
		{name: "perfect negative", x: []float64{1, 2, 3}, y: []float64{3, 2, 1}, want: -1},
		{name: "pairwise complete", x: []float64{1, nan, 2, 3}, y: []float64{10, 99, 20, 30}, want: 1},
		{name: "constant column", x: []float64{5, 5, 5}, y: []float64{1, 2, 3}, wantNaN: true},
		{name: "too few rows", x: []float64{1, nan}, y: []float64{1, 2}, wantNaN: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PearsonCorrelation(tt.x, tt.y)
			if tt.wantNaN {
				if !math.IsNaN(got) {
					t.Errorf("PearsonCorrelation() = %v, want NaN", got)
				}
				return
			}
			if math.Abs(got-tt.want) > 1e-10 {
				t.Errorf("PearsonCorrelation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCorrelationMatrix(t *testing.T) {
	cols := [][]float64{
		{1, 2, 3, 4, 5},
		{2, 4, 6, 8, 10},
		{5, 3, 4, 1, 2},
	}
	m := CorrelationMatrix(cols)
	for i := range cols {
		if m[i][i] != 1 {
			t.Errorf("diagonal [%d] = %v, want 1", i, m[i][i])
		}
		for j := range cols {
			if math.Abs(m[i][j]-m[j][i]) > 1e-12 {
				t.Errorf("matrix not symmetric at (%d,%d)", i, j)
			}
		}
	}
	if math.Abs(m[0][1]-1) > 1e-10 {
		t.Errorf("m[0][1] = %v, want 1", m[0][1])
	}
	if m[0][2] >= 0 {
		t.Errorf("m[0][2] = %v, want negative", m[0][2])
	}
}

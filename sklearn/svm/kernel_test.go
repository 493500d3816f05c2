package svm

import (
	"testing"

	"gonum.org/v1/gonum/floats"
)

func TestKernelCacheEvictsLeastRecentlyUsed(t *testing.T) {
	rows := [][]float64{{1, 0}, {0, 2}, {1, 1}, {3, -1}}
	// room for exactly two columns of four float64 values
	k := newKernelCache(rows, 2*8*len(rows))
	if k.limit != 2 {
		t.Fatalf("limit = %d, want 2", k.limit)
	}
	if want := []float64{1, 4, 2, 10}; !floats.Equal(k.diag, want) {
		t.Fatalf("diag = %v, want %v", k.diag, want)
	}

	if got, want := k.column(0), []float64{1, 0, 1, 3}; !floats.Equal(got, want) {
		t.Errorf("column(0) = %v, want %v", got, want)
	}
	k.column(1)
	k.column(0) // 1 is now the least recently used
	if got, want := k.column(2), []float64{1, 2, 2, 2}; !floats.Equal(got, want) {
		t.Errorf("column(2) = %v, want %v", got, want)
	}
	if _, ok := k.columns[1]; ok {
		t.Error("column 1 should have been evicted")
	}
	if _, ok := k.columns[0]; !ok {
		t.Error("column 0 should still be cached")
	}
	if k.computed != 3 {
		t.Errorf("computed = %d, want 3", k.computed)
	}

	if got, want := k.column(1), []float64{0, 4, 2, -2}; !floats.Equal(got, want) {
		t.Errorf("recomputed column(1) = %v, want %v", got, want)
	}
	if k.computed != 4 {
		t.Errorf("computed = %d, want 4", k.computed)
	}
}

func TestKernelCacheNeverBelowTwoColumns(t *testing.T) {
	rows := [][]float64{{1}, {2}, {3}}
	if k := newKernelCache(rows, 0); k.limit != 2 {
		t.Errorf("limit = %d, want 2", k.limit)
	}
	if k := newKernelCache(rows, 1<<30); k.limit != 3 {
		t.Errorf("limit = %d, want 3", k.limit)
	}
}

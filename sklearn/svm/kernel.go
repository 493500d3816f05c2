package svm

import (
	"container/list"

	"gonum.org/v1/gonum/floats"
)

// minCachedColumns is the floor of the column budget; one SMO step reads
// the columns of both working variables.
const minCachedColumns = 2

// kernelCache computes linear-kernel columns on demand and keeps the most
// recently used ones within a byte budget.
type kernelCache struct {
	rows    [][]float64
	diag    []float64
	limit   int
	columns map[int]*list.Element
	order   *list.List // front is most recently used

	computed int // columns computed, including recomputations after eviction
}

type cachedColumn struct {
	index  int
	values []float64
}

func newKernelCache(rows [][]float64, cacheBytes int) *kernelCache {
	n := len(rows)
	limit := minCachedColumns
	if n > 0 && cacheBytes/(8*n) > limit {
		limit = cacheBytes / (8 * n)
	}
	if limit > n {
		limit = n
	}
	k := &kernelCache{
		rows:    rows,
		diag:    make([]float64, n),
		limit:   limit,
		columns: make(map[int]*list.Element, limit),
		order:   list.New(),
	}
	for i, r := range rows {
		k.diag[i] = floats.Dot(r, r)
	}
	return k
}

// column returns K(x_i, x_t) for every sample t. The slice stays valid
// until the column is evicted.
func (k *kernelCache) column(i int) []float64 {
	if e, ok := k.columns[i]; ok {
		k.order.MoveToFront(e)
		return e.Value.(*cachedColumn).values
	}

	var values []float64
	if k.order.Len() >= k.limit {
		oldest := k.order.Back()
		evicted := k.order.Remove(oldest).(*cachedColumn)
		delete(k.columns, evicted.index)
		values = evicted.values
	} else {
		values = make([]float64, len(k.rows))
	}
	for t, r := range k.rows {
		values[t] = floats.Dot(k.rows[i], r)
	}
	k.columns[i] = k.order.PushFront(&cachedColumn{index: i, values: values})
	k.computed++
	return values
}

// Package tree implements a CART regression tree with squared-error splits.
package tree

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/HaoJinjin/open-soda/core/model"
	"github.com/HaoJinjin/open-soda/core/parallel"
	"github.com/HaoJinjin/open-soda/pkg/errors"
)

// parallelWork is the samples×features product above which candidate
// features of a node are searched concurrently.
const parallelWork = 1 << 14

// Node is a single node of a fitted tree. Leaves have Left == Right == -1.
type Node struct {
	Feature   int     // Feature index used for splitting
	Threshold float64 // Samples with x[Feature] <= Threshold go left
	Left      int
	Right     int

	Value    float64 // Mean target of the samples reaching the node
	NSamples int
	Impurity float64 // Mean squared deviation from Value
}

// IsLeaf returns true if the node is a leaf node.
func (n *Node) IsLeaf() bool {
	return n.Left == -1 && n.Right == -1
}

// DecisionTreeRegressor is a binary regression tree grown depth-first.
// Ties between equally good splits keep the lowest feature index and the
// lowest threshold, so fitting is deterministic.
type DecisionTreeRegressor struct {
	state *model.StateManager

	maxDepth        int // <= 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int

	nodes        []Node
	decrease_    []float64 // per-feature squared-error reduction / n_samples
	importances_ []float64
}

// Option configures a DecisionTreeRegressor.
type Option func(*DecisionTreeRegressor)

// WithMaxDepth limits the depth of the tree. Zero or negative means unlimited.
func WithMaxDepth(depth int) Option {
	return func(t *DecisionTreeRegressor) {
		t.maxDepth = depth
	}
}

// WithMinSamplesSplit sets the minimum number of samples to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(t *DecisionTreeRegressor) {
		t.minSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum number of samples in each child.
func WithMinSamplesLeaf(n int) Option {
	return func(t *DecisionTreeRegressor) {
		t.minSamplesLeaf = n
	}
}

// NewDecisionTreeRegressor creates an unfitted tree.
func NewDecisionTreeRegressor(options ...Option) *DecisionTreeRegressor {
	t := &DecisionTreeRegressor{
		state:           model.NewStateManager(),
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Name implements model.Regressor.
func (t *DecisionTreeRegressor) Name() string { return "DecisionTree" }

// Fit grows the tree on all rows and columns of X.
func (t *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", 1, yCols, 1)
	}

	columns := make([][]float64, cols)
	for j := range columns {
		columns[j] = mat.Col(nil, j, X)
	}
	target := mat.Col(nil, 0, y)
	return t.FitColumns(columns, target, nil, nil)
}

// FitColumns grows the tree from column-major data. samples selects the
// training rows (nil means all) and features the candidate split columns
// (nil means all). Ensembles call it directly to avoid copying X per tree.
func (t *DecisionTreeRegressor) FitColumns(columns [][]float64, y []float64, samples, features []int) error {
	if t.minSamplesLeaf < 1 || t.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples", "min_samples_leaf >= 1 and min_samples_split >= 2", [2]int{t.minSamplesLeaf, t.minSamplesSplit})
	}
	if len(columns) == 0 || len(y) == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if err := errors.CheckNumericalStability("DecisionTreeRegressor.Fit", y, 0); err != nil {
		return err
	}
	if samples == nil {
		samples = make([]int, len(y))
		for i := range samples {
			samples[i] = i
		}
	}
	if features == nil {
		features = make([]int, len(columns))
		for j := range features {
			features[j] = j
		}
	}

	b := &builder{tree: t, columns: columns, y: y, features: features}
	t.nodes = t.nodes[:0]
	t.importances_ = make([]float64, len(columns))
	b.build(append([]int(nil), samples...), 0)

	t.decrease_ = make([]float64, len(columns))
	total := 0.0
	for j, v := range t.importances_ {
		t.decrease_[j] = v / float64(len(samples))
		total += v
	}
	if total > 0 {
		for j := range t.importances_ {
			t.importances_[j] /= total
		}
	}

	t.state.SetDimensions(len(columns), len(samples))
	t.state.SetFitted()
	return nil
}

type builder struct {
	tree     *DecisionTreeRegressor
	columns  [][]float64
	y        []float64
	features []int
}

type split struct {
	feature   int
	threshold float64
	gain      float64 // reduction of the sum of squared errors
	nLeft     int
}

func (b *builder) build(samples []int, depth int) int {
	t := b.tree
	n := len(samples)
	sum, sumSq := 0.0, 0.0
	for _, i := range samples {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	mean := sum / float64(n)
	impurity := math.Max(sumSq/float64(n)-mean*mean, 0)

	idx := len(t.nodes)
	t.nodes = append(t.nodes, Node{Feature: -1, Left: -1, Right: -1, Value: mean, NSamples: n, Impurity: impurity})

	if (t.maxDepth > 0 && depth >= t.maxDepth) || n < t.minSamplesSplit || n < 2*t.minSamplesLeaf || impurity <= 1e-15 {
		return idx
	}

	best, ok := b.bestSplit(samples, sum)
	if !ok {
		return idx
	}

	left := make([]int, 0, best.nLeft)
	right := make([]int, 0, n-best.nLeft)
	col := b.columns[best.feature]
	for _, i := range samples {
		if col[i] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	t.importances_[best.feature] += best.gain

	t.nodes[idx].Feature = best.feature
	t.nodes[idx].Threshold = best.threshold
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	t.nodes[idx].Left = l
	t.nodes[idx].Right = r
	return idx
}

func (b *builder) bestSplit(samples []int, total float64) (split, bool) {
	candidates := make([]split, len(b.features))
	search := func(k int) {
		candidates[k] = b.bestSplitForFeature(samples, b.features[k], total)
	}
	if len(samples)*len(b.features) >= parallelWork {
		parallel.ForEach(len(b.features), 1, search)
	} else {
		for k := range b.features {
			search(k)
		}
	}

	best := split{gain: 0}
	found := false
	for _, c := range candidates {
		if c.nLeft > 0 && c.gain > best.gain+1e-12*math.Abs(best.gain) {
			best = c
			found = true
		}
	}
	return best, found
}

// bestSplitForFeature scans the sorted values of one feature and keeps the
// threshold with the largest squared-error reduction.
func (b *builder) bestSplitForFeature(samples []int, feature int, total float64) split {
	col := b.columns[feature]
	order := append([]int(nil), samples...)
	sort.SliceStable(order, func(i, j int) bool {
		return col[order[i]] < col[order[j]]
	})

	n := len(order)
	minLeaf := b.tree.minSamplesLeaf
	parent := total * total / float64(n)

	best := split{feature: feature}
	leftSum := 0.0
	for i := 0; i < n-1; i++ {
		leftSum += b.y[order[i]]
		nLeft := i + 1
		if col[order[i]] == col[order[i+1]] {
			continue
		}
		if nLeft < minLeaf || n-nLeft < minLeaf {
			continue
		}
		rightSum := total - leftSum
		gain := leftSum*leftSum/float64(nLeft) + rightSum*rightSum/float64(n-nLeft) - parent
		if gain > best.gain {
			best.gain = gain
			best.threshold = (col[order[i]] + col[order[i+1]]) / 2
			best.nLeft = nLeft
		}
	}
	return best
}

// Predict returns the leaf value for every row of X.
func (t *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := t.state.RequireFitted("DecisionTreeRegressor", "Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := t.state.RequireFeatures("DecisionTreeRegressor.Predict", cols); err != nil {
		return nil, err
	}
	out := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		row := i
		out.SetVec(i, t.predictWith(func(j int) float64 { return X.At(row, j) }))
	}
	return out, nil
}

// PredictColumns returns the leaf value for one row of column-major data.
func (t *DecisionTreeRegressor) PredictColumns(columns [][]float64, row int) float64 {
	return t.predictWith(func(j int) float64 { return columns[j][row] })
}

func (t *DecisionTreeRegressor) predictWith(at func(feature int) float64) float64 {
	idx := 0
	for {
		node := &t.nodes[idx]
		if node.IsLeaf() {
			return node.Value
		}
		if at(node.Feature) <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

// FeatureImportances returns the normalized squared-error reduction per
// feature. All zeros when the tree is a single leaf.
func (t *DecisionTreeRegressor) FeatureImportances() []float64 {
	out := make([]float64, len(t.importances_))
	copy(out, t.importances_)
	return out
}

// ImpurityDecrease returns the unnormalized weighted impurity decrease per
// feature. Ensembles average it across trees before normalizing.
func (t *DecisionTreeRegressor) ImpurityDecrease() []float64 {
	out := make([]float64, len(t.decrease_))
	copy(out, t.decrease_)
	return out
}

// Explain implements model.Explainer.
func (t *DecisionTreeRegressor) Explain() (model.Explanation, error) {
	if err := t.state.RequireFitted("DecisionTreeRegressor", "Explain"); err != nil {
		return model.Explanation{}, err
	}
	return model.Explanation{Kind: model.TreeImportances, Values: t.FeatureImportances()}, nil
}

// NodeCount returns the number of nodes, leaves included.
func (t *DecisionTreeRegressor) NodeCount() int { return len(t.nodes) }

// Depth returns the depth of the deepest leaf.
func (t *DecisionTreeRegressor) Depth() int {
	if len(t.nodes) == 0 {
		return 0
	}
	var walk func(idx, d int) int
	walk = func(idx, d int) int {
		node := &t.nodes[idx]
		if node.IsLeaf() {
			return d
		}
		l, r := walk(node.Left, d+1), walk(node.Right, d+1)
		if l > r {
			return l
		}
		return r
	}
	return walk(0, 0)
}

// GetParams returns the hyperparameters.
func (t *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"max_depth":         t.maxDepth,
		"min_samples_split": t.minSamplesSplit,
		"min_samples_leaf":  t.minSamplesLeaf,
	}
}

func (t *DecisionTreeRegressor) String() string {
	return fmt.Sprintf("DecisionTreeRegressor(max_depth=%d, min_samples_leaf=%d)", t.maxDepth, t.minSamplesLeaf)
}

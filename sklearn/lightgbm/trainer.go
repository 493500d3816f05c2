package lightgbm

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/HaoJinjin/open-soda/core/parallel"
	"github.com/HaoJinjin/open-soda/pkg/errors"
	"github.com/HaoJinjin/open-soda/pkg/log"
)

// parallelWork is the samples×features product above which the histograms
// of a node are built concurrently.
const parallelWork = 1 << 14

// TrainingParams contains all training hyperparameters
type TrainingParams struct {
	// Basic parameters
	NumIterations int     `json:"num_iterations"`
	LearningRate  float64 `json:"learning_rate"`
	NumLeaves     int     `json:"num_leaves"`
	MaxDepth      int     `json:"max_depth"`
	MinDataInLeaf int     `json:"min_data_in_leaf"`

	// Regularization
	Lambda         float64 `json:"lambda_l2"`
	MinGainToSplit float64 `json:"min_gain_to_split"`

	// Sampling
	BaggingFraction float64 `json:"bagging_fraction"`
	BaggingFreq     int     `json:"bagging_freq"`
	FeatureFraction float64 `json:"feature_fraction"`

	// Histogram parameters
	MaxBin int `json:"max_bin"`

	Seed uint64 `json:"seed"`
}

// Histogram accumulates the gradient statistics of one feature bin.
type Histogram struct {
	Count   int
	SumGrad float64
	SumHess float64
}

// SplitInfo contains information about a potential split
type SplitInfo struct {
	Feature   int
	Bin       int
	Threshold float64
	Gain      float64
	LeftCount int
}

// Trainer grows L2 gradient-boosted trees over pre-binned features.
//
// Every feature is quantized once into at most MaxBin bins; split search
// then scans per-node histograms instead of sorted values. Bagging redraws
// the row sample every BaggingFreq iterations and the feature sample is
// redrawn for every tree, both from a PCG source seeded with Seed.
type Trainer struct {
	params TrainingParams

	columns    [][]float64
	bins       [][]uint16
	thresholds [][]float64 // per feature, bin k holds values <= thresholds[k]

	target    []float64
	scores    []float64
	gradients []float64
	hessians  []float64

	rng       *rand.Rand
	bag       []int
	initScore float64
	trees     []Tree
	gain      []float64
	losses    []float64
}

// NewTrainer creates a new trainer, filling unset parameters with defaults.
func NewTrainer(params TrainingParams) *Trainer {
	if params.NumIterations == 0 {
		params.NumIterations = 100
	}
	if params.LearningRate == 0 {
		params.LearningRate = 0.1
	}
	if params.NumLeaves == 0 {
		params.NumLeaves = 31
	}
	if params.MaxBin == 0 {
		params.MaxBin = 255
	}
	if params.MinDataInLeaf == 0 {
		params.MinDataInLeaf = 20
	}
	if params.BaggingFraction == 0 {
		params.BaggingFraction = 1.0
	}
	if params.FeatureFraction == 0 {
		params.FeatureFraction = 1.0
	}
	return &Trainer{params: params}
}

func (t *Trainer) validate() error {
	p := t.params
	switch {
	case p.NumIterations < 1:
		return errors.NewValidationError("num_iterations", "must be at least 1", p.NumIterations)
	case p.LearningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be positive", p.LearningRate)
	case p.NumLeaves < 2:
		return errors.NewValidationError("num_leaves", "must be at least 2", p.NumLeaves)
	case p.MinDataInLeaf < 1:
		return errors.NewValidationError("min_data_in_leaf", "must be at least 1", p.MinDataInLeaf)
	case p.Lambda < 0:
		return errors.NewValidationError("lambda_l2", "must be non-negative", p.Lambda)
	case p.BaggingFraction <= 0 || p.BaggingFraction > 1:
		return errors.NewValidationError("bagging_fraction", "must be in (0, 1]", p.BaggingFraction)
	case p.FeatureFraction <= 0 || p.FeatureFraction > 1:
		return errors.NewValidationError("feature_fraction", "must be in (0, 1]", p.FeatureFraction)
	case p.MaxBin < 2 || p.MaxBin > math.MaxUint16:
		return errors.NewValidationError("max_bin", "must be in [2, 65535]", p.MaxBin)
	}
	return nil
}

// Fit trains the ensemble on X and the single-column target y.
func (t *Trainer) Fit(X, y mat.Matrix) error {
	if err := t.validate(); err != nil {
		return err
	}
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("Trainer.Fit", "empty data", errors.ErrEmptyData)
	}
	t.columns = make([][]float64, cols)
	for j := range t.columns {
		t.columns[j] = mat.Col(nil, j, X)
	}
	t.target = mat.Col(nil, 0, y)
	if err := errors.CheckNumericalStability("Trainer.Fit", t.target, 0); err != nil {
		return err
	}

	t.buildBins()

	t.initScore = 0
	for _, v := range t.target {
		t.initScore += v
	}
	t.initScore /= float64(rows)

	t.scores = make([]float64, rows)
	for i := range t.scores {
		t.scores[i] = t.initScore
	}
	t.gradients = make([]float64, rows)
	t.hessians = make([]float64, rows)
	t.rng = rand.New(rand.NewPCG(t.params.Seed, t.params.Seed))
	t.bag = nil
	t.trees = make([]Tree, 0, t.params.NumIterations)
	t.gain = make([]float64, cols)
	t.losses = make([]float64, 0, t.params.NumIterations)

	logger := log.GetLoggerWithName("lightgbm.trainer")
	for iter := 0; iter < t.params.NumIterations; iter++ {
		t.calculateGradients()
		t.drawBag(iter)

		tree := t.buildTree(iter)
		t.trees = append(t.trees, tree)

		loss := t.updateScores(&tree)
		if err := errors.CheckScalar("Trainer.Fit", loss, iter); err != nil {
			return err
		}
		t.losses = append(t.losses, loss)
		if iter%50 == 0 {
			logger.Debug("Training progress", "iteration", iter, "loss", loss)
		}
	}
	return nil
}

// buildBins quantizes every feature column.
func (t *Trainer) buildBins() {
	rows := len(t.target)
	t.bins = make([][]uint16, len(t.columns))
	t.thresholds = make([][]float64, len(t.columns))
	for j, col := range t.columns {
		bounds := findBinBoundaries(col, t.params.MaxBin)
		t.thresholds[j] = bounds
		b := make([]uint16, rows)
		for i, v := range col {
			b[i] = uint16(sort.SearchFloat64s(bounds, v))
		}
		t.bins[j] = b
	}
}

// findBinBoundaries returns the ascending upper bounds of all but the last
// bin. With at most maxBin distinct values every value gets its own bin;
// otherwise the distinct values are grouped into equal-count runs.
func findBinBoundaries(values []float64, maxBin int) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	unique := []float64{sorted[0]}
	for _, v := range sorted[1:] {
		if v != unique[len(unique)-1] {
			unique = append(unique, v)
		}
	}

	var bounds []float64
	if len(unique) <= maxBin {
		for i := 1; i < len(unique); i++ {
			bounds = append(bounds, (unique[i-1]+unique[i])/2)
		}
		return bounds
	}
	step := float64(len(unique)) / float64(maxBin)
	for k := 1; k < maxBin; k++ {
		i := int(math.Round(float64(k) * step))
		if i <= 0 || i >= len(unique) {
			continue
		}
		mid := (unique[i-1] + unique[i]) / 2
		if len(bounds) == 0 || mid > bounds[len(bounds)-1] {
			bounds = append(bounds, mid)
		}
	}
	return bounds
}

// calculateGradients computes the squared-error gradients of the current scores.
func (t *Trainer) calculateGradients() {
	for i, target := range t.target {
		t.gradients[i] = t.scores[i] - target
		t.hessians[i] = 1
	}
}

// drawBag redraws the row sample on bagging iterations.
func (t *Trainer) drawBag(iter int) {
	rows := len(t.target)
	if t.params.BaggingFraction >= 1 || t.params.BaggingFreq <= 0 {
		if len(t.bag) != rows {
			t.bag = draw(t.rng, rows, rows)
		}
		return
	}
	if t.bag == nil || iter%t.params.BaggingFreq == 0 {
		t.bag = draw(t.rng, rows, sampleCount(rows, t.params.BaggingFraction))
	}
}

func sampleCount(n int, fraction float64) int {
	k := int(math.Round(float64(n) * fraction))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// draw returns k sorted indices from [0, n). With k == n it returns all of
// them without consuming randomness.
func draw(rng *rand.Rand, n, k int) []int {
	if k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	out := rng.Perm(n)[:k]
	sort.Ints(out)
	return out
}

// grower holds the state of one tree being built.
type grower struct {
	t        *Trainer
	tree     *Tree
	features []int
	leaves   int
}

// buildTree grows one tree depth-first on the current bag.
func (t *Trainer) buildTree(iter int) Tree {
	tree := Tree{
		TreeIndex:     iter,
		ShrinkageRate: t.params.LearningRate,
	}
	cols := len(t.columns)
	g := &grower{
		t:        t,
		tree:     &tree,
		features: draw(t.rng, cols, sampleCount(cols, t.params.FeatureFraction)),
		leaves:   1,
	}
	g.buildNode(t.bag, 0)
	tree.NumLeaves = g.leaves
	return tree
}

// buildNode appends the subtree over indices and returns its node id.
func (g *grower) buildNode(indices []int, depth int) int {
	t := g.t
	nodeIdx := len(g.tree.Nodes)
	g.tree.Nodes = append(g.tree.Nodes, Node{
		LeftChild:  -1,
		RightChild: -1,
		LeafValue:  t.calculateLeafValue(indices),
		LeafCount:  len(indices),
	})

	if (t.params.MaxDepth > 0 && depth >= t.params.MaxDepth) ||
		len(indices) < 2*t.params.MinDataInLeaf ||
		g.leaves >= t.params.NumLeaves {
		return nodeIdx
	}

	best, ok := g.findBestSplit(indices)
	if !ok || best.Gain <= t.params.MinGainToSplit {
		return nodeIdx
	}

	leftIdx, rightIdx := t.splitData(indices, best)
	g.leaves++
	t.gain[best.Feature] += best.Gain

	node := &g.tree.Nodes[nodeIdx]
	node.SplitFeature = best.Feature
	node.Threshold = best.Threshold
	node.Gain = best.Gain

	left := g.buildNode(leftIdx, depth+1)
	right := g.buildNode(rightIdx, depth+1)
	g.tree.Nodes[nodeIdx].LeftChild = left
	g.tree.Nodes[nodeIdx].RightChild = right
	return nodeIdx
}

// findBestSplit searches the sampled features of a node. Ties keep the
// earlier feature and the lower bin.
func (g *grower) findBestSplit(indices []int) (SplitInfo, bool) {
	t := g.t
	totalGrad, totalHess := 0.0, 0.0
	for _, i := range indices {
		totalGrad += t.gradients[i]
		totalHess += t.hessians[i]
	}

	candidates := make([]SplitInfo, len(g.features))
	found := make([]bool, len(g.features))
	search := func(k int) {
		candidates[k], found[k] = t.findBestSplitForFeature(indices, g.features[k], totalGrad, totalHess)
	}
	if len(indices)*len(g.features) >= parallelWork {
		parallel.ForEach(len(g.features), 1, search)
	} else {
		for k := range g.features {
			search(k)
		}
	}

	var best SplitInfo
	ok := false
	for k, c := range candidates {
		if found[k] && (!ok || c.Gain > best.Gain) {
			best, ok = c, true
		}
	}
	return best, ok
}

// findBestSplitForFeature builds the histogram of feature over indices and
// scans its bins left to right.
func (t *Trainer) findBestSplitForFeature(indices []int, feature int, totalGrad, totalHess float64) (SplitInfo, bool) {
	bounds := t.thresholds[feature]
	if len(bounds) == 0 {
		return SplitInfo{}, false
	}
	hist := make([]Histogram, len(bounds)+1)
	bins := t.bins[feature]
	for _, i := range indices {
		h := &hist[bins[i]]
		h.Count++
		h.SumGrad += t.gradients[i]
		h.SumHess += t.hessians[i]
	}

	best := SplitInfo{Feature: feature}
	found := false
	leftGrad, leftHess, leftCount := 0.0, 0.0, 0
	for k := 0; k < len(bounds); k++ {
		leftGrad += hist[k].SumGrad
		leftHess += hist[k].SumHess
		leftCount += hist[k].Count
		if hist[k].Count == 0 {
			continue
		}
		rightCount := len(indices) - leftCount
		if leftCount < t.params.MinDataInLeaf || rightCount < t.params.MinDataInLeaf {
			continue
		}
		gain := t.calculateSplitGain(leftGrad, leftHess, totalGrad-leftGrad, totalHess-leftHess, totalGrad, totalHess)
		if !found || gain > best.Gain {
			best.Gain = gain
			best.Bin = k
			best.Threshold = bounds[k]
			best.LeftCount = leftCount
			found = true
		}
	}
	return best, found
}

// calculateSplitGain calculates the gain from a split
func (t *Trainer) calculateSplitGain(leftGrad, leftHess, rightGrad, rightHess, totalGrad, totalHess float64) float64 {
	lambda := t.params.Lambda
	leftScore := (leftGrad * leftGrad) / (leftHess + lambda)
	rightScore := (rightGrad * rightGrad) / (rightHess + lambda)
	totalScore := (totalGrad * totalGrad) / (totalHess + lambda)
	return 0.5 * (leftScore + rightScore - totalScore)
}

// splitData partitions indices by the bin of the split feature.
func (t *Trainer) splitData(indices []int, split SplitInfo) ([]int, []int) {
	left := make([]int, 0, split.LeftCount)
	right := make([]int, 0, len(indices)-split.LeftCount)
	bins := t.bins[split.Feature]
	for _, i := range indices {
		if int(bins[i]) <= split.Bin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

// calculateLeafValue returns the L2-regularized Newton step of a leaf.
func (t *Trainer) calculateLeafValue(indices []int) float64 {
	sumGrad, sumHess := 0.0, 0.0
	for _, i := range indices {
		sumGrad += t.gradients[i]
		sumHess += t.hessians[i]
	}
	const epsilon = 1e-10
	return -sumGrad / (sumHess + t.params.Lambda + epsilon)
}

// updateScores adds the new tree to every training row and returns the
// training MSE.
func (t *Trainer) updateScores(tree *Tree) float64 {
	loss := 0.0
	for i := range t.scores {
		row := i
		t.scores[i] += tree.predict(func(j int) float64 { return t.columns[j][row] })
		d := t.target[i] - t.scores[i]
		loss += d * d
	}
	return loss / float64(len(t.scores))
}

// GetModel returns the trained model
func (t *Trainer) GetModel() *Model {
	importance := make([]float64, len(t.gain))
	total := 0.0
	for _, v := range t.gain {
		total += v
	}
	if total > 0 {
		for j, v := range t.gain {
			importance[j] = v / total
		}
	}
	return &Model{
		Trees:             t.trees,
		NumIteration:      len(t.trees),
		NumFeatures:       len(t.columns),
		LearningRate:      t.params.LearningRate,
		NumLeaves:         t.params.NumLeaves,
		MaxDepth:          t.params.MaxDepth,
		InitScore:         t.initScore,
		FeatureImportance: importance,
	}
}

// TrainLoss returns the training MSE after each iteration.
func (t *Trainer) TrainLoss() []float64 {
	out := make([]float64, len(t.losses))
	copy(out, t.losses)
	return out
}

// Package ensemble implements gradient boosting over regression trees.
package ensemble

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/HaoJinjin/open-soda/core/model"
	"github.com/HaoJinjin/open-soda/pkg/errors"
	"github.com/HaoJinjin/open-soda/sklearn/tree"
)

// GradientBoostingRegressor fits an additive model of shallow regression
// trees to the negative gradient of the squared error. The initial
// prediction is the mean of the training target.
//
// Row subsampling and per-tree feature subsampling are drawn from a PCG
// source seeded with randomState; with both fractions at 1.0 the fit is
// fully deterministic.
type GradientBoostingRegressor struct {
	state *model.StateManager

	nEstimators     int
	learningRate    float64
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	subsample       float64
	colsample       float64
	randomState     uint64

	init_        float64
	estimators_  []*tree.DecisionTreeRegressor
	trainScore_  []float64
	importances_ []float64
}

// Option configures a GradientBoostingRegressor.
type Option func(*GradientBoostingRegressor)

// WithNEstimators sets the number of boosting stages (default 100).
func WithNEstimators(n int) Option {
	return func(g *GradientBoostingRegressor) { g.nEstimators = n }
}

// WithLearningRate sets the shrinkage applied to each tree (default 0.1).
func WithLearningRate(lr float64) Option {
	return func(g *GradientBoostingRegressor) { g.learningRate = lr }
}

// WithMaxDepth sets the depth of the individual trees (default 3).
func WithMaxDepth(depth int) Option {
	return func(g *GradientBoostingRegressor) { g.maxDepth = depth }
}

// WithMinSamplesLeaf sets the minimum samples per leaf (default 1).
func WithMinSamplesLeaf(n int) Option {
	return func(g *GradientBoostingRegressor) { g.minSamplesLeaf = n }
}

// WithSubsample sets the fraction of rows drawn for each stage (default 1.0).
func WithSubsample(fraction float64) Option {
	return func(g *GradientBoostingRegressor) { g.subsample = fraction }
}

// WithColsampleByTree sets the fraction of features drawn for each tree (default 1.0).
func WithColsampleByTree(fraction float64) Option {
	return func(g *GradientBoostingRegressor) { g.colsample = fraction }
}

// WithRandomState seeds row and feature subsampling.
func WithRandomState(seed uint64) Option {
	return func(g *GradientBoostingRegressor) { g.randomState = seed }
}

// NewGradientBoostingRegressor creates an unfitted ensemble.
func NewGradientBoostingRegressor(options ...Option) *GradientBoostingRegressor {
	g := &GradientBoostingRegressor{
		state:           model.NewStateManager(),
		nEstimators:     100,
		learningRate:    0.1,
		maxDepth:        3,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		subsample:       1.0,
		colsample:       1.0,
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Name implements model.Regressor.
func (g *GradientBoostingRegressor) Name() string { return "GradientBoosting" }

func (g *GradientBoostingRegressor) validate() error {
	switch {
	case g.nEstimators < 1:
		return errors.NewValidationError("n_estimators", "must be at least 1", g.nEstimators)
	case g.learningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be positive", g.learningRate)
	case g.subsample <= 0 || g.subsample > 1:
		return errors.NewValidationError("subsample", "must be in (0, 1]", g.subsample)
	case g.colsample <= 0 || g.colsample > 1:
		return errors.NewValidationError("colsample_bytree", "must be in (0, 1]", g.colsample)
	}
	return nil
}

// Fit runs nEstimators boosting stages.
func (g *GradientBoostingRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "GradientBoostingRegressor.Fit")

	if err := g.validate(); err != nil {
		return err
	}
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("GradientBoostingRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return errors.NewDimensionError("GradientBoostingRegressor.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("GradientBoostingRegressor.Fit", 1, yCols, 1)
	}

	columns := make([][]float64, cols)
	for j := range columns {
		columns[j] = mat.Col(nil, j, X)
	}
	target := mat.Col(nil, 0, y)
	if err := errors.CheckNumericalStability("GradientBoostingRegressor.Fit", target, 0); err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(g.randomState, g.randomState))
	nRows := sampleCount(rows, g.subsample)
	nCols := sampleCount(cols, g.colsample)

	g.init_ = 0
	for _, v := range target {
		g.init_ += v
	}
	g.init_ /= float64(rows)

	raw := make([]float64, rows)
	for i := range raw {
		raw[i] = g.init_
	}
	residual := make([]float64, rows)

	g.estimators_ = make([]*tree.DecisionTreeRegressor, 0, g.nEstimators)
	g.trainScore_ = make([]float64, 0, g.nEstimators)
	importanceSum := make([]float64, cols)
	relevant := 0

	for stage := 0; stage < g.nEstimators; stage++ {
		for i := range residual {
			residual[i] = target[i] - raw[i]
		}

		samples := draw(rng, rows, nRows)
		features := draw(rng, cols, nCols)

		t := tree.NewDecisionTreeRegressor(
			tree.WithMaxDepth(g.maxDepth),
			tree.WithMinSamplesSplit(g.minSamplesSplit),
			tree.WithMinSamplesLeaf(g.minSamplesLeaf),
		)
		if err := t.FitColumns(columns, residual, samples, features); err != nil {
			return errors.NewModelError("GradientBoostingRegressor.Fit", fmt.Sprintf("stage %d", stage), err)
		}

		loss := 0.0
		for i := range raw {
			raw[i] += g.learningRate * t.PredictColumns(columns, i)
			d := target[i] - raw[i]
			loss += d * d
		}
		loss /= float64(rows)
		if err := errors.CheckScalar("GradientBoostingRegressor.Fit", loss, stage); err != nil {
			return err
		}
		g.trainScore_ = append(g.trainScore_, loss)
		g.estimators_ = append(g.estimators_, t)

		if t.NodeCount() > 1 {
			relevant++
			for j, v := range t.ImpurityDecrease() {
				importanceSum[j] += v
			}
		}
	}

	g.importances_ = make([]float64, cols)
	if relevant > 0 {
		total := 0.0
		for _, v := range importanceSum {
			total += v
		}
		if total > 0 {
			for j, v := range importanceSum {
				g.importances_[j] = v / total
			}
		}
	}

	g.state.SetDimensions(cols, rows)
	g.state.SetFitted()
	return nil
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

// Predict returns init + learningRate * Σ tree(x) for every row of X.
func (g *GradientBoostingRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := g.state.RequireFitted("GradientBoostingRegressor", "Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := g.state.RequireFeatures("GradientBoostingRegressor.Predict", cols); err != nil {
		return nil, err
	}

	out := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		out.SetVec(i, g.init_)
	}
	for _, t := range g.estimators_ {
		p, err := t.Predict(X)
		if err != nil {
			return nil, err
		}
		for i := 0; i < rows; i++ {
			out.SetVec(i, out.AtVec(i)+g.learningRate*p.At(i, 0))
		}
	}
	return out, nil
}

// FeatureImportances returns the mean impurity-based importance over all
// trees that split at least once, normalized to sum to 1.
func (g *GradientBoostingRegressor) FeatureImportances() []float64 {
	out := make([]float64, len(g.importances_))
	copy(out, g.importances_)
	return out
}

// Explain implements model.Explainer.
func (g *GradientBoostingRegressor) Explain() (model.Explanation, error) {
	if err := g.state.RequireFitted("GradientBoostingRegressor", "Explain"); err != nil {
		return model.Explanation{}, err
	}
	return model.Explanation{Kind: model.TreeImportances, Values: g.FeatureImportances()}, nil
}

// TrainScore returns the training MSE after each stage.
func (g *GradientBoostingRegressor) TrainScore() []float64 {
	out := make([]float64, len(g.trainScore_))
	copy(out, g.trainScore_)
	return out
}

// GetParams returns the hyperparameters.
func (g *GradientBoostingRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":     g.nEstimators,
		"learning_rate":    g.learningRate,
		"max_depth":        g.maxDepth,
		"min_samples_leaf": g.minSamplesLeaf,
		"subsample":        g.subsample,
		"colsample_bytree": g.colsample,
		"random_state":     g.randomState,
	}
}

func (g *GradientBoostingRegressor) String() string {
	return fmt.Sprintf("GradientBoostingRegressor(n_estimators=%d, learning_rate=%g, max_depth=%d)",
		g.nEstimators, g.learningRate, g.maxDepth)
}

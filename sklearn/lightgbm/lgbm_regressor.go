// Package lightgbm implements a histogram-based gradient boosting
// regressor with row bagging and per-tree feature sampling.
package lightgbm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/HaoJinjin/open-soda/core/model"
	"github.com/HaoJinjin/open-soda/pkg/errors"
	"github.com/HaoJinjin/open-soda/pkg/log"
)

// LGBMRegressor implements a LightGBM-style regressor with a scikit-learn like API
type LGBMRegressor struct {
	state *model.StateManager

	// Model
	Model *Model

	// Hyperparameters
	NumLeaves       int     // Number of leaves in one tree
	MaxDepth        int     // Maximum tree depth, <= 0 means unlimited
	LearningRate    float64 // Boosting learning rate
	NumIterations   int     // Number of boosting iterations
	MinChildSamples int     // Minimum number of data in one leaf
	Subsample       float64 // Subsample ratio of training data
	SubsampleFreq   int     // Frequency of subsample, 0 disables bagging
	ColsampleBytree float64 // Subsample ratio of columns when constructing tree
	RegLambda       float64 // L2 regularization
	MaxBin          int     // Maximum number of histogram bins per feature
	RandomState     uint64  // Random seed

	trainLoss []float64
}

// NewLGBMRegressor creates a new regressor with default parameters
func NewLGBMRegressor() *LGBMRegressor {
	return &LGBMRegressor{
		state:           model.NewStateManager(),
		NumLeaves:       31,
		MaxDepth:        -1,
		LearningRate:    0.1,
		NumIterations:   100,
		MinChildSamples: 20,
		Subsample:       1.0,
		ColsampleBytree: 1.0,
		MaxBin:          255,
		RandomState:     42,
	}
}

// WithNumLeaves sets the number of leaves
func (lgb *LGBMRegressor) WithNumLeaves(n int) *LGBMRegressor {
	lgb.NumLeaves = n
	return lgb
}

// WithMaxDepth sets the maximum depth
func (lgb *LGBMRegressor) WithMaxDepth(d int) *LGBMRegressor {
	lgb.MaxDepth = d
	return lgb
}

// WithLearningRate sets the learning rate
func (lgb *LGBMRegressor) WithLearningRate(lr float64) *LGBMRegressor {
	lgb.LearningRate = lr
	return lgb
}

// WithNumIterations sets the number of iterations
func (lgb *LGBMRegressor) WithNumIterations(n int) *LGBMRegressor {
	lgb.NumIterations = n
	return lgb
}

// WithMinChildSamples sets the minimum number of samples per leaf
func (lgb *LGBMRegressor) WithMinChildSamples(n int) *LGBMRegressor {
	lgb.MinChildSamples = n
	return lgb
}

// WithSubsample enables bagging of fraction rows, redrawn every freq iterations
func (lgb *LGBMRegressor) WithSubsample(fraction float64, freq int) *LGBMRegressor {
	lgb.Subsample = fraction
	lgb.SubsampleFreq = freq
	return lgb
}

// WithColsampleBytree sets the fraction of features drawn for each tree
func (lgb *LGBMRegressor) WithColsampleBytree(fraction float64) *LGBMRegressor {
	lgb.ColsampleBytree = fraction
	return lgb
}

// WithRegLambda sets the L2 regularization of leaf values
func (lgb *LGBMRegressor) WithRegLambda(lambda float64) *LGBMRegressor {
	lgb.RegLambda = lambda
	return lgb
}

// WithMaxBin sets the number of histogram bins per feature
func (lgb *LGBMRegressor) WithMaxBin(n int) *LGBMRegressor {
	lgb.MaxBin = n
	return lgb
}

// WithRandomState sets the random seed
func (lgb *LGBMRegressor) WithRandomState(seed uint64) *LGBMRegressor {
	lgb.RandomState = seed
	return lgb
}

// Name implements model.Regressor.
func (lgb *LGBMRegressor) Name() string { return "LGBMRegressor" }

// Fit trains the regressor
func (lgb *LGBMRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LGBMRegressor.Fit")

	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows != yRows {
		return errors.NewDimensionError("LGBMRegressor.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("LGBMRegressor.Fit", 1, yCols, 1)
	}

	trainer := NewTrainer(TrainingParams{
		NumIterations:   lgb.NumIterations,
		LearningRate:    lgb.LearningRate,
		NumLeaves:       lgb.NumLeaves,
		MaxDepth:        lgb.MaxDepth,
		MinDataInLeaf:   lgb.MinChildSamples,
		Lambda:          lgb.RegLambda,
		MinGainToSplit:  1e-7,
		BaggingFraction: lgb.Subsample,
		BaggingFreq:     lgb.SubsampleFreq,
		FeatureFraction: lgb.ColsampleBytree,
		MaxBin:          lgb.MaxBin,
		Seed:            lgb.RandomState,
	})
	if err := trainer.Fit(X, y); err != nil {
		return errors.Wrap(err, "training failed")
	}

	lgb.Model = trainer.GetModel()
	lgb.trainLoss = trainer.TrainLoss()
	lgb.state.SetDimensions(cols, rows)
	lgb.state.SetFitted()

	log.GetLoggerWithName("lightgbm.regressor").Debug("Training completed",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		"trees", lgb.Model.NumIteration,
	)
	return nil
}

// Predict makes predictions for input samples
func (lgb *LGBMRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lgb.state.RequireFitted("LGBMRegressor", "Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := lgb.state.RequireFeatures("LGBMRegressor.Predict", cols); err != nil {
		return nil, err
	}

	out := mat.NewVecDense(rows, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		out.SetVec(i, lgb.Model.Predict(row))
	}
	return out, nil
}

// FeatureImportances returns the total split gain per feature, normalized
// to sum to 1.
func (lgb *LGBMRegressor) FeatureImportances() []float64 {
	if lgb.Model == nil {
		return nil
	}
	out := make([]float64, len(lgb.Model.FeatureImportance))
	copy(out, lgb.Model.FeatureImportance)
	return out
}

// Explain implements model.Explainer.
func (lgb *LGBMRegressor) Explain() (model.Explanation, error) {
	if err := lgb.state.RequireFitted("LGBMRegressor", "Explain"); err != nil {
		return model.Explanation{}, err
	}
	return model.Explanation{Kind: model.TreeImportances, Values: lgb.FeatureImportances()}, nil
}

// TrainLoss returns the training MSE after each iteration.
func (lgb *LGBMRegressor) TrainLoss() []float64 {
	out := make([]float64, len(lgb.trainLoss))
	copy(out, lgb.trainLoss)
	return out
}

// GetParams returns the parameters of the regressor
func (lgb *LGBMRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      lgb.NumIterations,
		"learning_rate":     lgb.LearningRate,
		"max_depth":         lgb.MaxDepth,
		"num_leaves":        lgb.NumLeaves,
		"min_child_samples": lgb.MinChildSamples,
		"subsample":         lgb.Subsample,
		"subsample_freq":    lgb.SubsampleFreq,
		"colsample_bytree":  lgb.ColsampleBytree,
		"reg_lambda":        lgb.RegLambda,
		"max_bin":           lgb.MaxBin,
		"random_state":      lgb.RandomState,
	}
}

func (lgb *LGBMRegressor) String() string {
	return fmt.Sprintf("LGBMRegressor(n_estimators=%d, learning_rate=%g, max_depth=%d, num_leaves=%d)",
		lgb.NumIterations, lgb.LearningRate, lgb.MaxDepth, lgb.NumLeaves)
}

var (
	_ model.Regressor       = (*LGBMRegressor)(nil)
	_ model.ParameterGetter = (*LGBMRegressor)(nil)
)

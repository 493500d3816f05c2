// Package prediction fits the model bank on a feature set, selects the
// winner by penalized held-out R² and assembles the JSON result.
package prediction

import (
	"github.com/HaoJinjin/open-soda/core/model"
	"github.com/HaoJinjin/open-soda/sklearn/ensemble"
	"github.com/HaoJinjin/open-soda/sklearn/linear_model"
	"github.com/HaoJinjin/open-soda/sklearn/svm"
)

// Candidate is one entry of the model bank. New returns an unfitted model.
type Candidate struct {
	Name string
	New  func() model.Regressor
}

// DefaultBank returns the four regressors in their fixed order. The order
// is the last tie-break key of model selection.
func DefaultBank(seed uint64) []Candidate {
	return []Candidate{
		{Name: "Ridge", New: func() model.Regressor {
			return linear_model.NewRidge(linear_model.WithRidgeAlpha(1.0))
		}},
		{Name: "Lasso", New: func() model.Regressor {
			return linear_model.NewLasso(linear_model.WithLassoAlpha(0.1))
		}},
		{Name: "GradientBoosting", New: func() model.Regressor {
			return ensemble.NewGradientBoostingRegressor(
				ensemble.WithNEstimators(50),
				ensemble.WithLearningRate(0.1),
				ensemble.WithMaxDepth(3),
				ensemble.WithRandomState(seed),
			)
		}},
		{Name: "SVR", New: func() model.Regressor {
			return svm.NewSVR(svm.WithC(1.0), svm.WithEpsilon(0.1))
		}},
	}
}

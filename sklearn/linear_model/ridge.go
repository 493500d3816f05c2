package linear_model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/HaoJinjin/open-soda/core/model"
	"github.com/HaoJinjin/open-soda/pkg/errors"
)

var (
	_ model.Regressor   = (*Ridge)(nil)
	_ model.LinearModel = (*Ridge)(nil)
)

// Ridge は L2 正則化付き最小二乗回帰
//
// 目的関数: ||y - Xw||² + alpha * ||w||²
//
// 正規方程式 (XᵀX + αI)w = Xᵀy を中心化データ上でコレスキー分解により解く。
type Ridge struct {
	state *model.StateManager

	alpha        float64
	fitIntercept bool

	coef_      []float64
	intercept_ float64
}

// RidgeOption は Ridge の設定オプション
type RidgeOption func(*Ridge)

// WithRidgeAlpha は正則化の強さを設定する (デフォルト: 1.0)
func WithRidgeAlpha(alpha float64) RidgeOption {
	return func(r *Ridge) {
		r.alpha = alpha
	}
}

// WithRidgeFitIntercept は切片の学習有無を設定する (デフォルト: true)
func WithRidgeFitIntercept(fit bool) RidgeOption {
	return func(r *Ridge) {
		r.fitIntercept = fit
	}
}

// NewRidge は新しい Ridge を作成する
func NewRidge(options ...RidgeOption) *Ridge {
	r := &Ridge{
		state:        model.NewStateManager(),
		alpha:        1.0,
		fitIntercept: true,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Name implements model.Regressor.
func (r *Ridge) Name() string { return "Ridge" }

// Fit はモデルを訓練データで学習する
func (r *Ridge) Fit(X, y mat.Matrix) error {
	if r.alpha < 0 {
		return errors.NewValidationError("alpha", "must be non-negative", r.alpha)
	}
	rows, cols, yv, err := validateFitInput("Ridge.Fit", X, y)
	if err != nil {
		return err
	}

	var (
		Xw    mat.Matrix = X
		yw               = yv
		xMean            = make([]float64, cols)
		yMean float64
	)
	if r.fitIntercept {
		Xw, xMean, yw, yMean = center(X, yv)
	}

	// A = XᵀX + αI
	var gram mat.SymDense
	gram.SymOuterK(1, mat.DenseCopyOf(Xw).T())
	for j := 0; j < cols; j++ {
		gram.SetSym(j, j, gram.At(j, j)+r.alpha)
	}

	// b = Xᵀy
	b := mat.NewVecDense(cols, nil)
	b.MulVec(Xw.T(), mat.NewVecDense(rows, yw))

	w := mat.NewVecDense(cols, nil)
	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); ok {
		if err := chol.SolveVecTo(w, b); err != nil {
			return errors.NewModelError("Ridge.Fit", "cholesky solve", err)
		}
	} else {
		// alpha=0 でランク落ちしている場合など
		if err := w.SolveVec(&gram, b); err != nil {
			return errors.NewModelError("Ridge.Fit", "singular system", errors.ErrSingularMatrix)
		}
	}

	r.coef_ = make([]float64, cols)
	for j := range r.coef_ {
		r.coef_[j] = w.AtVec(j)
	}
	if err := errors.CheckNumericalStability("Ridge.Fit", r.coef_, 0); err != nil {
		return err
	}
	r.intercept_ = 0
	if r.fitIntercept {
		r.intercept_ = interceptFrom(xMean, r.coef_, yMean)
	}

	r.state.SetDimensions(cols, rows)
	r.state.SetFitted()
	return nil
}

// Predict は入力データに対する予測を行う
func (r *Ridge) Predict(X mat.Matrix) (mat.Matrix, error) {
	return linearPredict(r.state, "Ridge", r.coef_, r.intercept_, X)
}

// Explain は学習済みの係数を返す
func (r *Ridge) Explain() (model.Explanation, error) {
	return explainLinear(r.state, "Ridge", r.coef_)
}

// Coef は学習された係数を返す
func (r *Ridge) Coef() []float64 {
	out := make([]float64, len(r.coef_))
	copy(out, r.coef_)
	return out
}

// Intercept は学習された切片を返す
func (r *Ridge) Intercept() float64 { return r.intercept_ }

// GetParams はハイパーパラメータを返す
func (r *Ridge) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"alpha":         r.alpha,
		"fit_intercept": r.fitIntercept,
	}
}

func (r *Ridge) String() string {
	return fmt.Sprintf("Ridge(alpha=%g, fit_intercept=%t)", r.alpha, r.fitIntercept)
}

package linear_model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/HaoJinjin/open-soda/core/model"
	"github.com/HaoJinjin/open-soda/pkg/errors"
)

var (
	_ model.Regressor   = (*Lasso)(nil)
	_ model.LinearModel = (*Lasso)(nil)
)

// Lasso は L1 正則化付き線形回帰
//
// 目的関数: (1 / (2 * n_samples)) * ||y - Xw||² + alpha * ||w||₁
//
// 巡回座標降下法で解き、係数の更新幅が十分小さくなった時点で双対ギャップを確認する。
type Lasso struct {
	state *model.StateManager

	alpha        float64
	maxIter      int
	tol          float64
	fitIntercept bool

	coef_      []float64
	intercept_ float64
	nIter_     int
	dualGap_   float64
}

// LassoOption は Lasso の設定オプション
type LassoOption func(*Lasso)

// WithLassoAlpha は正則化の強さを設定する (デフォルト: 1.0)
func WithLassoAlpha(alpha float64) LassoOption {
	return func(l *Lasso) {
		l.alpha = alpha
	}
}

// WithLassoMaxIter は最大反復回数を設定する (デフォルト: 1000)
func WithLassoMaxIter(maxIter int) LassoOption {
	return func(l *Lasso) {
		l.maxIter = maxIter
	}
}

// WithLassoTol は収束判定の許容誤差を設定する (デフォルト: 1e-4)
func WithLassoTol(tol float64) LassoOption {
	return func(l *Lasso) {
		l.tol = tol
	}
}

// NewLasso は新しい Lasso を作成する
func NewLasso(options ...LassoOption) *Lasso {
	l := &Lasso{
		state:        model.NewStateManager(),
		alpha:        1.0,
		maxIter:      1000,
		tol:          1e-4,
		fitIntercept: true,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Name implements model.Regressor.
func (l *Lasso) Name() string { return "Lasso" }

// Fit はモデルを訓練データで学習する
func (l *Lasso) Fit(X, y mat.Matrix) error {
	if l.alpha < 0 {
		return errors.NewValidationError("alpha", "must be non-negative", l.alpha)
	}
	if l.maxIter <= 0 {
		return errors.NewValidationError("max_iter", "must be positive", l.maxIter)
	}
	rows, cols, yv, err := validateFitInput("Lasso.Fit", X, y)
	if err != nil {
		return err
	}

	var (
		Xw    mat.Matrix = X
		yw               = yv
		xMean            = make([]float64, cols)
		yMean float64
	)
	if l.fitIntercept {
		Xw, xMean, yw, yMean = center(X, yv)
	}

	// 列ごとに連続したスライスを用意しておく
	columns := make([][]float64, cols)
	normCols := make([]float64, cols)
	for j := 0; j < cols; j++ {
		columns[j] = mat.Col(nil, j, Xw)
		normCols[j] = floats.Dot(columns[j], columns[j])
	}

	w := make([]float64, cols)
	residual := make([]float64, rows)
	copy(residual, yw)

	l1Reg := l.alpha * float64(rows)
	tolScaled := l.tol * floats.Dot(yw, yw)

	converged := false
	iter := 0
	gap := tolScaled + 1
	for iter = 0; iter < l.maxIter; iter++ {
		wMax, dwMax := 0.0, 0.0
		for j := 0; j < cols; j++ {
			if normCols[j] == 0 {
				continue
			}
			wOld := w[j]
			if wOld != 0 {
				floats.AddScaled(residual, wOld, columns[j])
			}
			rho := floats.Dot(columns[j], residual)
			w[j] = softThreshold(rho, l1Reg) / normCols[j]
			if w[j] != 0 {
				floats.AddScaled(residual, -w[j], columns[j])
			}
			dwMax = math.Max(dwMax, math.Abs(w[j]-wOld))
			wMax = math.Max(wMax, math.Abs(w[j]))
		}

		if wMax == 0 || dwMax/wMax < l.tol || iter == l.maxIter-1 {
			gap = dualityGap(columns, residual, yw, w, l1Reg)
			if gap < tolScaled || gap == 0 {
				converged = true
				break
			}
		}
	}
	if err := errors.CheckNumericalStability("Lasso.Fit", w, iter); err != nil {
		return err
	}
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("Lasso", l.maxIter,
			fmt.Sprintf("duality gap %.3e above tolerance %.3e", gap, tolScaled)))
		iter = l.maxIter - 1
	}

	l.coef_ = w
	l.nIter_ = iter + 1
	l.dualGap_ = gap
	l.intercept_ = 0
	if l.fitIntercept {
		l.intercept_ = interceptFrom(xMean, w, yMean)
	}

	l.state.SetDimensions(cols, rows)
	l.state.SetFitted()
	return nil
}

func softThreshold(x, lambda float64) float64 {
	switch {
	case x > lambda:
		return x - lambda
	case x < -lambda:
		return x + lambda
	default:
		return 0
	}
}

// dualityGap は座標降下の停止判定に使う双対ギャップを計算する
func dualityGap(columns [][]float64, residual, y, w []float64, l1Reg float64) float64 {
	dualNorm := 0.0
	for _, col := range columns {
		dualNorm = math.Max(dualNorm, math.Abs(floats.Dot(col, residual)))
	}
	rNorm2 := floats.Dot(residual, residual)

	var gap, scale float64
	if dualNorm > l1Reg {
		scale = l1Reg / dualNorm
		aNorm2 := rNorm2 * scale * scale
		gap = 0.5 * (rNorm2 + aNorm2)
	} else {
		scale = 1.0
		gap = rNorm2
	}
	l1Norm := 0.0
	for _, v := range w {
		l1Norm += math.Abs(v)
	}
	gap += l1Reg*l1Norm - scale*floats.Dot(residual, y)
	return gap
}

// Predict は入力データに対する予測を行う
func (l *Lasso) Predict(X mat.Matrix) (mat.Matrix, error) {
	return linearPredict(l.state, "Lasso", l.coef_, l.intercept_, X)
}

// Explain は学習済みの係数を返す。0 の係数もそのまま含む。
func (l *Lasso) Explain() (model.Explanation, error) {
	return explainLinear(l.state, "Lasso", l.coef_)
}

// Coef は学習された係数を返す
func (l *Lasso) Coef() []float64 {
	out := make([]float64, len(l.coef_))
	copy(out, l.coef_)
	return out
}

// Intercept は学習された切片を返す
func (l *Lasso) Intercept() float64 { return l.intercept_ }

// NIter は実行した反復回数を返す
func (l *Lasso) NIter() int { return l.nIter_ }

// GetParams はハイパーパラメータを返す
func (l *Lasso) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"alpha":         l.alpha,
		"max_iter":      l.maxIter,
		"tol":           l.tol,
		"fit_intercept": l.fitIntercept,
	}
}

func (l *Lasso) String() string {
	return fmt.Sprintf("Lasso(alpha=%g, max_iter=%d, tol=%g)", l.alpha, l.maxIter, l.tol)
}

// Package linear_model は正則化付き線形回帰（Ridge, Lasso）を提供する。
// どちらも切片は正則化せず、中心化したデータで係数を求めた後に切片を復元する。
package linear_model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/HaoJinjin/open-soda/core/model"
	"github.com/HaoJinjin/open-soda/pkg/errors"
)

// validateFitInput は X と y の形状を検証し、y をスライスとして返す
func validateFitInput(op string, X, y mat.Matrix) (rows, cols int, yv []float64, err error) {
	rows, cols = X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return 0, 0, nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return 0, 0, nil, errors.NewDimensionError(op, rows, yRows, 0)
	}
	if yCols != 1 {
		return 0, 0, nil, errors.NewDimensionError(op, 1, yCols, 1)
	}
	if err := errors.CheckMatrix(op, X, rows, cols, 0); err != nil {
		return 0, 0, nil, err
	}
	yv = make([]float64, rows)
	for i := range yv {
		yv[i] = y.At(i, 0)
	}
	if err := errors.CheckNumericalStability(op, yv, 0); err != nil {
		return 0, 0, nil, err
	}
	return rows, cols, yv, nil
}

// center は列平均を引いた X のコピーと y、それぞれの平均を返す
func center(X mat.Matrix, y []float64) (Xc *mat.Dense, xMean []float64, yc []float64, yMean float64) {
	rows, cols := X.Dims()
	Xc = mat.DenseCopyOf(X)
	xMean = make([]float64, cols)
	for j := 0; j < cols; j++ {
		sum := 0.0
		for i := 0; i < rows; i++ {
			sum += Xc.At(i, j)
		}
		xMean[j] = sum / float64(rows)
		for i := 0; i < rows; i++ {
			Xc.Set(i, j, Xc.At(i, j)-xMean[j])
		}
	}

	for _, v := range y {
		yMean += v
	}
	yMean /= float64(rows)
	yc = make([]float64, rows)
	for i, v := range y {
		yc[i] = v - yMean
	}
	return Xc, xMean, yc, yMean
}

// interceptFrom は中心化前の切片 yMean - xMean·coef を計算する
func interceptFrom(xMean, coef []float64, yMean float64) float64 {
	intercept := yMean
	for j, w := range coef {
		intercept -= xMean[j] * w
	}
	return intercept
}

// linearPredict は X·coef + intercept を n×1 行列で返す
func linearPredict(state *model.StateManager, name string, coef []float64, intercept float64, X mat.Matrix) (mat.Matrix, error) {
	if err := state.RequireFitted(name, "Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := state.RequireFeatures(name+".Predict", cols); err != nil {
		return nil, err
	}

	w := mat.NewVecDense(cols, coef)
	pred := mat.NewVecDense(rows, nil)
	pred.MulVec(X, w)
	for i := 0; i < rows; i++ {
		pred.SetVec(i, pred.AtVec(i)+intercept)
	}
	return pred, nil
}

// explainLinear は係数をそのまま説明として返す
func explainLinear(state *model.StateManager, name string, coef []float64) (model.Explanation, error) {
	if err := state.RequireFitted(name, "Explain"); err != nil {
		return model.Explanation{}, err
	}
	values := make([]float64, len(coef))
	copy(values, coef)
	return model.Explanation{Kind: model.LinearCoefficients, Values: values}, nil
}

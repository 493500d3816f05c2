package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/HaoJinjin/open-soda/core/model"
	"github.com/HaoJinjin/open-soda/pkg/errors"
)

// ImputeStrategy は欠損値の補完方法
type ImputeStrategy string

const (
	// ImputeMedian は列の中央値で補完する
	ImputeMedian ImputeStrategy = "median"
	// ImputeMean は列の平均値で補完する
	ImputeMean ImputeStrategy = "mean"
)

// SimpleImputer は NaN を列ごとの統計量で置き換える
type SimpleImputer struct {
	state *model.StateManager

	// Strategy は補完方法 (デフォルト: median)
	Strategy ImputeStrategy

	// Statistics は列ごとの補完値。全て欠損の列は NaN のまま。
	Statistics []float64
}

// NewSimpleImputer は新しいSimpleImputerを作成する
func NewSimpleImputer(strategy ImputeStrategy) *SimpleImputer {
	return &SimpleImputer{
		state:    model.NewStateManager(),
		Strategy: strategy,
	}
}

// Fit は各列の補完値を計算する
func (s *SimpleImputer) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("SimpleImputer.Fit", "empty data", errors.ErrEmptyData)
	}

	s.Statistics = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		stat, err := ImputeValue(col, s.Strategy)
		if err != nil {
			return err
		}
		s.Statistics[j] = stat
	}
	s.state.SetDimensions(c, r)
	s.state.SetFitted()
	return nil
}

// Transform は NaN を補完値で置き換えた新しい行列を返す
func (s *SimpleImputer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("SimpleImputer", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := s.state.RequireFeatures("SimpleImputer.Transform", c); err != nil {
		return nil, err
	}

	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		if math.IsNaN(v) {
			return s.Statistics[j]
		}
		return v
	}, X)
	return result, nil
}

// FitTransform は学習と変換を同時に行う
func (s *SimpleImputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// ImputeValue は1列分の補完値を計算する
func ImputeValue(values []float64, strategy ImputeStrategy) (float64, error) {
	switch strategy {
	case ImputeMedian, "":
		return Median(values), nil
	case ImputeMean:
		sum, n := 0.0, 0
		for _, v := range values {
			if !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		if n == 0 {
			return math.NaN(), nil
		}
		return sum / float64(n), nil
	default:
		return 0, errors.NewValidationError("strategy", "must be one of median, mean", string(strategy))
	}
}

func (s *SimpleImputer) String() string {
	return fmt.Sprintf("SimpleImputer(strategy=%s)", s.Strategy)
}

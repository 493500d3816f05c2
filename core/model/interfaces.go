package model

// ParameterGetter is implemented by models that expose their hyperparameters.
// The prediction pipeline logs them next to each evaluation.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// LinearModel は線形モデルのインターフェース
type LinearModel interface {
	// Coef は学習された係数を返す
	Coef() []float64
	// Intercept は学習された切片を返す
	Intercept() float64
}

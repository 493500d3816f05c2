package model

import "fmt"

// ExplanationKind tells how the values of an Explanation are to be read.
type ExplanationKind int

const (
	// LinearCoefficients are signed per-feature weights of a linear model.
	LinearCoefficients ExplanationKind = iota
	// TreeImportances are non-negative impurity-based importances summing to 1.
	TreeImportances
)

func (k ExplanationKind) String() string {
	switch k {
	case LinearCoefficients:
		return "linear_coefficients"
	case TreeImportances:
		return "tree_importances"
	default:
		return fmt.Sprintf("ExplanationKind(%d)", int(k))
	}
}

// Explanation is the per-feature attribution of a fitted model.
// Values has one entry per input feature in training column order.
type Explanation struct {
	Kind   ExplanationKind
	Values []float64
}

// Explainer is implemented by every model that can report feature
// attributions. Callers switch on Explanation.Kind instead of probing the
// concrete model type.
type Explainer interface {
	Explain() (Explanation, error)
}

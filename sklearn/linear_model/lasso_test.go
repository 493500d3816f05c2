package linear_model

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/HaoJinjin/open-soda/pkg/errors"
)

func TestLassoSingleFeature(t *testing.T) {
	// 中心化後 Σx² = 5, Σxy = 10, n·α = 0.4 → w = (10 - 0.4) / 5
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewVecDense(4, []float64{3, 5, 7, 9})

	l := NewLasso(WithLassoAlpha(0.1))
	if err := l.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if math.Abs(l.Coef()[0]-1.92) > 1e-10 {
		t.Errorf("coef = %v, want 1.92", l.Coef()[0])
	}
	if math.Abs(l.Intercept()-1.2) > 1e-10 {
		t.Errorf("intercept = %v, want 1.2", l.Intercept())
	}
	if l.NIter() != 1 {
		t.Errorf("NIter() = %d, want 1", l.NIter())
	}
}

func TestLassoSparsity(t *testing.T) {
	n := 80
	X := mat.NewDense(n, 3, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x0 := math.Sin(float64(i) / 3)
		x1 := math.Cos(float64(i) / 11)
		x2 := 0.01 * float64(i%7)
		X.SetRow(i, []float64{x0, x1, x2})
		y.SetVec(i, 2*x0+0.001*x2)
	}

	l := NewLasso(WithLassoAlpha(0.1))
	if err := l.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	coef := l.Coef()
	if coef[0] <= 1 {
		t.Errorf("coef[0] = %v, want strong positive weight", coef[0])
	}
	if coef[2] != 0 {
		t.Errorf("coef[2] = %v, want exactly 0", coef[2])
	}
}

func TestLassoLargeAlphaZeroesAll(t *testing.T) {
	X := mat.NewDense(5, 2, []float64{1, 0, 2, 1, 3, 0, 4, 1, 5, 0})
	y := mat.NewVecDense(5, []float64{1, 2, 3, 4, 5})

	l := NewLasso(WithLassoAlpha(100))
	if err := l.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	for j, w := range l.Coef() {
		if w != 0 {
			t.Errorf("coef[%d] = %v, want 0", j, w)
		}
	}
	if math.Abs(l.Intercept()-3) > 1e-12 {
		t.Errorf("intercept = %v, want mean of y", l.Intercept())
	}
}

func TestLassoConvergenceWarning(t *testing.T) {
	var warned []error
	errors.SetWarningHandler(func(w error) { warned = append(warned, w) })
	defer errors.SetWarningHandler(func(error) {})

	n := 50
	X := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		a := float64(i)
		X.SetRow(i, []float64{a, a + 5*math.Sin(a)})
		y.SetVec(i, 2*a+3*(a+5*math.Sin(a)))
	}

	// 強く相関した2列に対して1回の走査では最適解に届かない
	l := NewLasso(WithLassoAlpha(1e-3), WithLassoMaxIter(1), WithLassoTol(1e-12))
	if err := l.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if len(warned) != 1 {
		t.Fatalf("got %d warnings, want 1", len(warned))
	}
	var conv *errors.ConvergenceWarning
	if !errors.As(warned[0], &conv) || conv.Algorithm != "Lasso" {
		t.Errorf("warning = %v, want Lasso ConvergenceWarning", warned[0])
	}
}

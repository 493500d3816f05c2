// Package svm implements epsilon-support vector regression with a linear
// kernel, solved in the dual by sequential minimal optimization.
package svm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/HaoJinjin/open-soda/core/model"
	"github.com/HaoJinjin/open-soda/pkg/errors"
)

const (
	tau = 1e-12
	// defaultCacheSize is the kernel column budget in bytes.
	defaultCacheSize = 200 << 20
)

var (
	_ model.Regressor   = (*SVR)(nil)
	_ model.LinearModel = (*SVR)(nil)
)

// SVR is an epsilon-insensitive support vector regressor with a linear
// kernel. The dual has 2n box-constrained variables (one pair per sample)
// and the equality constraint Σ(α⁺ - α⁻) = 0; working pairs are chosen with
// second-order information and the intercept comes from the free variables.
type SVR struct {
	state *model.StateManager

	c         float64
	epsilon   float64
	tol       float64
	maxIter   int
	cacheSize int

	coef_      []float64
	intercept_ float64
	dualCoef_  []float64 // α⁺ - α⁻ per training sample
	nSupport_  int
	nIter_     int
}

// Option configures an SVR.
type Option func(*SVR)

// WithC sets the regularization parameter (default 1.0).
func WithC(c float64) Option {
	return func(s *SVR) { s.c = c }
}

// WithEpsilon sets the width of the insensitive tube (default 0.1).
func WithEpsilon(eps float64) Option {
	return func(s *SVR) { s.epsilon = eps }
}

// WithTol sets the stopping tolerance on the maximal violating pair (default 1e-3).
func WithTol(tol float64) Option {
	return func(s *SVR) { s.tol = tol }
}

// WithCacheSize sets the kernel column cache budget in bytes (default
// 200 MiB). Columns are recomputed from the samples once evicted, so the
// budget bounds memory, not the training set size.
func WithCacheSize(bytes int) Option {
	return func(s *SVR) { s.cacheSize = bytes }
}

// WithMaxIter caps the number of SMO steps.
func WithMaxIter(n int) Option {
	return func(s *SVR) { s.maxIter = n }
}

// NewSVR creates an unfitted linear SVR.
func NewSVR(options ...Option) *SVR {
	s := &SVR{
		state:     model.NewStateManager(),
		c:         1.0,
		epsilon:   0.1,
		tol:       1e-3,
		cacheSize: defaultCacheSize,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Name implements model.Regressor.
func (s *SVR) Name() string { return "SVR" }

// Fit solves the dual problem on X and y.
func (s *SVR) Fit(X, y mat.Matrix) error {
	if s.c <= 0 {
		return errors.NewValidationError("C", "must be positive", s.c)
	}
	if s.epsilon < 0 {
		return errors.NewValidationError("epsilon", "must be non-negative", s.epsilon)
	}
	n, cols := X.Dims()
	yRows, yCols := y.Dims()
	if n == 0 || cols == 0 {
		return errors.NewModelError("SVR.Fit", "empty data", errors.ErrEmptyData)
	}
	if n != yRows {
		return errors.NewDimensionError("SVR.Fit", n, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("SVR.Fit", 1, yCols, 1)
	}
	if err := errors.CheckMatrix("SVR.Fit", X, n, cols, 0); err != nil {
		return err
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, X)
	}
	sol := newSolver(newKernelCache(rows, s.cacheSize), mat.Col(nil, 0, y), s.c, s.epsilon, s.tol, s.maxIter)
	converged := sol.solve()
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("SVR", sol.iter, "maximal violating pair above tolerance"))
	}

	s.dualCoef_ = make([]float64, n)
	s.nSupport_ = 0
	s.coef_ = make([]float64, cols)
	for i := 0; i < n; i++ {
		d := sol.alpha[i] - sol.alpha[i+n]
		s.dualCoef_[i] = d
		if d != 0 {
			s.nSupport_++
			floats.AddScaled(s.coef_, d, rows[i])
		}
	}
	s.intercept_ = -sol.rho()
	s.nIter_ = sol.iter
	if err := errors.CheckNumericalStability("SVR.Fit", append(s.Coef(), s.intercept_), sol.iter); err != nil {
		return err
	}

	s.state.SetDimensions(cols, n)
	s.state.SetFitted()
	return nil
}

// solver holds the SMO state for the 2n-variable dual.
type solver struct {
	l      int // number of samples; variables are 2l
	kernel *kernelCache
	sign   []float64
	p      []float64
	qd     []float64
	alpha  []float64
	grad   []float64
	c      float64
	tol    float64
	max    int
	iter   int
}

func newSolver(kernel *kernelCache, y []float64, c, epsilon, tol float64, maxIter int) *solver {
	l := len(y)
	s := &solver{
		l:      l,
		kernel: kernel,
		sign:   make([]float64, 2*l),
		p:      make([]float64, 2*l),
		qd:     make([]float64, 2*l),
		alpha:  make([]float64, 2*l),
		grad:   make([]float64, 2*l),
		c:      c,
		tol:    tol,
		max:    maxIter,
	}
	for i := 0; i < l; i++ {
		s.sign[i], s.sign[i+l] = 1, -1
		s.p[i] = epsilon - y[i]
		s.p[i+l] = epsilon + y[i]
		s.qd[i] = kernel.diag[i]
		s.qd[i+l] = kernel.diag[i]
	}
	copy(s.grad, s.p)
	if s.max <= 0 {
		s.max = 10000000
		if 100*l > s.max {
			s.max = 100 * l
		}
	}
	return s
}

// column returns the kernel column of variable t, indexed by sample.
func (s *solver) column(t int) []float64 {
	return s.kernel.column(t % s.l)
}

// q reads Q[t][u] from the kernel column of t.
func (s *solver) q(col []float64, t, u int) float64 {
	return s.sign[t] * s.sign[u] * col[u%s.l]
}

func (s *solver) upper(t int) bool { return s.alpha[t] >= s.c }
func (s *solver) lower(t int) bool { return s.alpha[t] <= 0 }

func (s *solver) solve() bool {
	for s.iter = 0; s.iter < s.max; s.iter++ {
		i, j, ok := s.selectWorkingSet()
		if !ok {
			return true
		}
		s.update(i, j)
	}
	return false
}

// selectWorkingSet picks the maximal violating index i and, among the
// indices violating with it, the j giving the largest second-order decrease.
func (s *solver) selectWorkingSet() (int, int, bool) {
	gmax := math.Inf(-1)
	gmax2 := math.Inf(-1)
	i := -1
	for t := range s.alpha {
		if s.sign[t] > 0 {
			if !s.upper(t) && -s.grad[t] >= gmax {
				gmax, i = -s.grad[t], t
			}
		} else if !s.lower(t) && s.grad[t] >= gmax {
			gmax, i = s.grad[t], t
		}
	}
	if i == -1 {
		return 0, 0, false
	}

	qi := s.column(i)
	j := -1
	objMin := math.Inf(1)
	for t := range s.alpha {
		var gradDiff, quad float64
		if s.sign[t] > 0 {
			if s.lower(t) {
				continue
			}
			gradDiff = gmax + s.grad[t]
			if s.grad[t] >= gmax2 {
				gmax2 = s.grad[t]
			}
			quad = s.qd[i] + s.qd[t] - 2*s.sign[i]*s.q(qi, i, t)
		} else {
			if s.upper(t) {
				continue
			}
			gradDiff = gmax - s.grad[t]
			if -s.grad[t] >= gmax2 {
				gmax2 = -s.grad[t]
			}
			quad = s.qd[i] + s.qd[t] + 2*s.sign[i]*s.q(qi, i, t)
		}
		if gradDiff > 0 {
			if quad <= 0 {
				quad = tau
			}
			obj := -(gradDiff * gradDiff) / quad
			if obj <= objMin {
				j, objMin = t, obj
			}
		}
	}
	if gmax+gmax2 < s.tol || j == -1 {
		return 0, 0, false
	}
	return i, j, true
}

func (s *solver) update(i, j int) {
	c := s.c
	oldI, oldJ := s.alpha[i], s.alpha[j]
	qi, qj := s.column(i), s.column(j)
	qij := s.q(qi, i, j)

	if s.sign[i] != s.sign[j] {
		quad := s.qd[i] + s.qd[j] + 2*qij
		if quad <= 0 {
			quad = tau
		}
		delta := (-s.grad[i] - s.grad[j]) / quad
		diff := s.alpha[i] - s.alpha[j]
		s.alpha[i] += delta
		s.alpha[j] += delta
		if diff > 0 {
			if s.alpha[j] < 0 {
				s.alpha[j] = 0
				s.alpha[i] = diff
			}
		} else if s.alpha[i] < 0 {
			s.alpha[i] = 0
			s.alpha[j] = -diff
		}
		if diff > 0 {
			if s.alpha[i] > c {
				s.alpha[i] = c
				s.alpha[j] = c - diff
			}
		} else if s.alpha[j] > c {
			s.alpha[j] = c
			s.alpha[i] = c + diff
		}
	} else {
		quad := s.qd[i] + s.qd[j] - 2*qij
		if quad <= 0 {
			quad = tau
		}
		delta := (s.grad[i] - s.grad[j]) / quad
		sum := s.alpha[i] + s.alpha[j]
		s.alpha[i] -= delta
		s.alpha[j] += delta
		if sum > c {
			if s.alpha[i] > c {
				s.alpha[i] = c
				s.alpha[j] = sum - c
			}
		} else if s.alpha[j] < 0 {
			s.alpha[j] = 0
			s.alpha[i] = sum
		}
		if sum > c {
			if s.alpha[j] > c {
				s.alpha[j] = c
				s.alpha[i] = sum - c
			}
		} else if s.alpha[i] < 0 {
			s.alpha[i] = 0
			s.alpha[j] = sum
		}
	}

	dI, dJ := s.alpha[i]-oldI, s.alpha[j]-oldJ
	for t := range s.grad {
		s.grad[t] += s.q(qi, i, t)*dI + s.q(qj, j, t)*dJ
	}
}

// rho averages y·G over free variables, or takes the midpoint of the
// feasible interval when every variable sits at a bound.
func (s *solver) rho() float64 {
	ub, lb := math.Inf(1), math.Inf(-1)
	nFree, sumFree := 0, 0.0
	for t := range s.alpha {
		yG := s.sign[t] * s.grad[t]
		switch {
		case s.upper(t):
			if s.sign[t] < 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		case s.lower(t):
			if s.sign[t] > 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		default:
			nFree++
			sumFree += yG
		}
	}
	if nFree > 0 {
		return sumFree / float64(nFree)
	}
	return (ub + lb) / 2
}

// Predict returns X·coef + intercept.
func (s *SVR) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("SVR", "Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := s.state.RequireFeatures("SVR.Predict", cols); err != nil {
		return nil, err
	}
	out := mat.NewVecDense(rows, nil)
	out.MulVec(X, mat.NewVecDense(cols, s.Coef()))
	for i := 0; i < rows; i++ {
		out.SetVec(i, out.AtVec(i)+s.intercept_)
	}
	return out, nil
}

// Explain reports the primal weights of the linear kernel.
func (s *SVR) Explain() (model.Explanation, error) {
	if err := s.state.RequireFitted("SVR", "Explain"); err != nil {
		return model.Explanation{}, err
	}
	return model.Explanation{Kind: model.LinearCoefficients, Values: s.Coef()}, nil
}

// Coef returns the primal weight vector Σ(α⁺ - α⁻)x.
func (s *SVR) Coef() []float64 {
	out := make([]float64, len(s.coef_))
	copy(out, s.coef_)
	return out
}

// Intercept returns the bias term.
func (s *SVR) Intercept() float64 { return s.intercept_ }

// NSupport returns the number of support vectors.
func (s *SVR) NSupport() int { return s.nSupport_ }

// GetParams returns the hyperparameters.
func (s *SVR) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"kernel":  "linear",
		"C":       s.c,
		"epsilon": s.epsilon,
		"tol":     s.tol,
	}
}

func (s *SVR) String() string {
	return fmt.Sprintf("SVR(kernel='linear', C=%g, epsilon=%g)", s.c, s.epsilon)
}

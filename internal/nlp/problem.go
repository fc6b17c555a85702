package nlp

import (
	"fmt"
	"math"

	"github.com/san-kum/nmpc/internal/dynamics"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/reference"
	"gonum.org/v1/gonum/mat"
)

// Weights are the diagonals of the cost matrices.
type Weights struct {
	Q  []float64 // stage tracking error
	Qf []float64 // terminal tracking error
	R  []float64 // control effort
	S  []float64 // control rate, u_k - u_{k-1}
}

func (w Weights) Validate(nx, nu int) error {
	check := func(name string, v []float64, n int) error {
		if len(v) != n {
			return fmt.Errorf("%w: %s has %d entries, want %d", dynamo.ErrDimensionMismatch, name, len(v), n)
		}
		for i, x := range v {
			if x < 0 || math.IsNaN(x) || math.IsInf(x, 0) {
				return fmt.Errorf("%w: %s[%d] = %g must be finite and non-negative", dynamo.ErrConfigInvalid, name, i, x)
			}
		}
		return nil
	}
	if err := check("q", w.Q, nx); err != nil {
		return err
	}
	if err := check("qf", w.Qf, nx); err != nil {
		return err
	}
	if err := check("r", w.R, nu); err != nil {
		return err
	}
	return check("s", w.S, nu)
}

// Problem is one horizon-length NLP in multiple-shooting form.
//
// The decision vector is z = [x_0 … x_N, u_0 … u_{N-1}]. Equality
// constraints are x_0 - x̂ = 0 and x_{k+1} - f(x_k, u_k) = 0; states and
// controls are boxed by the model bounds. The objective is
//
//	Σ_k (x_{k+1}-r_k)ᵀQ(x_{k+1}-r_k) + u_kᵀRu_k + (u_k-u_{k-1})ᵀS(u_k-u_{k-1})
//	  + (x_N-r_{N-1})ᵀQf(x_N-r_{N-1})
//
// with the rate term starting at k = 1.
type Problem struct {
	model *dynamics.Model

	n, nx, nu int
	x0        dynamo.State
	ref       reference.Horizon
	w         Weights

	lower, upper []float64
}

// Build assembles the problem for the current state x0 and horizon ref.
// The horizon length N is len(ref).
func Build(model *dynamics.Model, x0 dynamo.State, ref reference.Horizon, w Weights) (*Problem, error) {
	nx, nu := model.StateDim(), model.ControlDim()
	if len(ref) == 0 {
		return nil, fmt.Errorf("%w: empty reference horizon", dynamo.ErrConfigInvalid)
	}
	if len(x0) != nx {
		return nil, fmt.Errorf("%w: state has %d components, model expects %d", dynamo.ErrDimensionMismatch, len(x0), nx)
	}
	if !x0.IsValid() {
		return nil, dynamo.ErrInvalidState
	}
	for k, r := range ref {
		if len(r) != nx {
			return nil, fmt.Errorf("%w: reference entry %d has %d components", dynamo.ErrDimensionMismatch, k, len(r))
		}
	}
	if err := w.Validate(nx, nu); err != nil {
		return nil, err
	}

	p := &Problem{
		model: model,
		n:     len(ref),
		nx:    nx,
		nu:    nu,
		x0:    x0.Clone(),
		ref:   make(reference.Horizon, len(ref)),
		w:     w,
	}
	for k, r := range ref {
		p.ref[k] = r.Clone()
	}

	p.lower = make([]float64, p.NumVars())
	p.upper = make([]float64, p.NumVars())
	sb, cb := model.StateBounds(), model.ControlBounds()
	for k := 0; k <= p.n; k++ {
		copy(p.lower[p.xIndex(k):], sb.Lower)
		copy(p.upper[p.xIndex(k):], sb.Upper)
	}
	for k := 0; k < p.n; k++ {
		copy(p.lower[p.uIndex(k):], cb.Lower)
		copy(p.upper[p.uIndex(k):], cb.Upper)
	}
	return p, nil
}

func (p *Problem) Horizon() int                 { return p.n }
func (p *Problem) StateDim() int                { return p.nx }
func (p *Problem) ControlDim() int              { return p.nu }
func (p *Problem) Model() *dynamics.Model       { return p.model }
func (p *Problem) Initial() dynamo.State        { return p.x0.Clone() }
func (p *Problem) Reference() reference.Horizon { return p.ref }

// NumVars is (N+1)·nx + N·nu.
func (p *Problem) NumVars() int {
	return (p.n+1)*p.nx + p.n*p.nu
}

// NumEqualities is (N+1)·nx: the initial condition plus N shooting gaps.
func (p *Problem) NumEqualities() int {
	return (p.n + 1) * p.nx
}

func (p *Problem) xIndex(k int) int { return k * p.nx }
func (p *Problem) uIndex(k int) int { return (p.n+1)*p.nx + k*p.nu }

func (p *Problem) state(z []float64, k int) dynamo.State {
	i := p.xIndex(k)
	return dynamo.State(z[i : i+p.nx : i+p.nx])
}

func (p *Problem) control(z []float64, k int) dynamo.Control {
	i := p.uIndex(k)
	return dynamo.Control(z[i : i+p.nu : i+p.nu])
}

// Bounds returns copies of the variable box. Unbounded sides are ±Inf.
func (p *Problem) Bounds() (lower, upper []float64) {
	return append([]float64(nil), p.lower...), append([]float64(nil), p.upper...)
}

// Objective evaluates the stage and terminal cost at z.
func (p *Problem) Objective(z []float64) float64 {
	cost := 0.0
	for k := 0; k < p.n; k++ {
		x := p.state(z, k+1)
		r := p.ref[k]
		for i := 0; i < p.nx; i++ {
			e := x[i] - r[i]
			cost += p.w.Q[i] * e * e
		}
		u := p.control(z, k)
		for j := 0; j < p.nu; j++ {
			cost += p.w.R[j] * u[j] * u[j]
		}
		if k > 0 {
			prev := p.control(z, k-1)
			for j := 0; j < p.nu; j++ {
				d := u[j] - prev[j]
				cost += p.w.S[j] * d * d
			}
		}
	}
	xN := p.state(z, p.n)
	rN := p.ref[p.n-1]
	for i := 0; i < p.nx; i++ {
		e := xN[i] - rN[i]
		cost += p.w.Qf[i] * e * e
	}
	return cost
}

// Gradient writes ∇Objective(z) into grad.
func (p *Problem) Gradient(grad, z []float64) {
	for i := range grad {
		grad[i] = 0
	}
	for k := 0; k < p.n; k++ {
		xi := p.xIndex(k + 1)
		r := p.ref[k]
		for i := 0; i < p.nx; i++ {
			grad[xi+i] += 2 * p.w.Q[i] * (z[xi+i] - r[i])
		}
		ui := p.uIndex(k)
		for j := 0; j < p.nu; j++ {
			grad[ui+j] += 2 * p.w.R[j] * z[ui+j]
		}
		if k > 0 {
			pi := p.uIndex(k - 1)
			for j := 0; j < p.nu; j++ {
				d := 2 * p.w.S[j] * (z[ui+j] - z[pi+j])
				grad[ui+j] += d
				grad[pi+j] -= d
			}
		}
	}
	xi := p.xIndex(p.n)
	rN := p.ref[p.n-1]
	for i := 0; i < p.nx; i++ {
		grad[xi+i] += 2 * p.w.Qf[i] * (z[xi+i] - rN[i])
	}
}

// Equalities writes c(z) into dst: the initial-condition residual followed
// by the N shooting gaps x_{k+1} - f(x_k, u_k).
func (p *Problem) Equalities(dst, z []float64) {
	x := p.state(z, 0)
	for i := 0; i < p.nx; i++ {
		dst[i] = x[i] - p.x0[i]
	}
	for k := 0; k < p.n; k++ {
		next := p.model.Next(p.state(z, k), p.control(z, k))
		x1 := p.state(z, k+1)
		row := (k + 1) * p.nx
		for i := 0; i < p.nx; i++ {
			dst[row+i] = x1[i] - next[i]
		}
	}
}

// EqualityJacobian returns ∂c/∂z as a dense NumEqualities × NumVars matrix.
func (p *Problem) EqualityJacobian(z []float64) *mat.Dense {
	jac := mat.NewDense(p.NumEqualities(), p.NumVars(), nil)
	for i := 0; i < p.nx; i++ {
		jac.Set(i, i, 1)
	}
	for k := 0; k < p.n; k++ {
		a, b := p.model.Linearize(p.state(z, k), p.control(z, k))
		row := (k + 1) * p.nx
		for i := 0; i < p.nx; i++ {
			jac.Set(row+i, p.xIndex(k+1)+i, 1)
			for j := 0; j < p.nx; j++ {
				jac.Set(row+i, p.xIndex(k)+j, -a.At(i, j))
			}
			for j := 0; j < p.nu; j++ {
				jac.Set(row+i, p.uIndex(k)+j, -b.At(i, j))
			}
		}
	}
	return jac
}

// EqualityVJP writes (∂c/∂z)ᵀλ into dst without forming the Jacobian.
func (p *Problem) EqualityVJP(dst, z, lambda []float64) {
	for i := range dst {
		dst[i] = 0
	}
	for i := 0; i < p.nx; i++ {
		dst[i] += lambda[i]
	}
	ax := mat.NewVecDense(p.nx, nil)
	bu := mat.NewVecDense(p.nu, nil)
	for k := 0; k < p.n; k++ {
		row := (k + 1) * p.nx
		l := mat.NewVecDense(p.nx, lambda[row:row+p.nx:row+p.nx])
		a, b := p.model.Linearize(p.state(z, k), p.control(z, k))
		ax.MulVec(a.T(), l)
		bu.MulVec(b.T(), l)

		xi, xn, ui := p.xIndex(k), p.xIndex(k+1), p.uIndex(k)
		for i := 0; i < p.nx; i++ {
			dst[xn+i] += lambda[row+i]
			dst[xi+i] -= ax.AtVec(i)
		}
		for j := 0; j < p.nu; j++ {
			dst[ui+j] -= bu.AtVec(j)
		}
	}
}

// EqualityViolation is max_i |c_i(z)|.
func (p *Problem) EqualityViolation(z []float64) float64 {
	c := make([]float64, p.NumEqualities())
	p.Equalities(c, z)
	worst := 0.0
	for _, v := range c {
		if math.IsNaN(v) {
			return math.Inf(1)
		}
		worst = math.Max(worst, math.Abs(v))
	}
	return worst
}

// BoundViolation is the largest distance of any variable outside its box.
func (p *Problem) BoundViolation(z []float64) float64 {
	worst := 0.0
	for i, v := range z {
		worst = math.Max(worst, math.Max(p.lower[i]-v, v-p.upper[i]))
	}
	return worst
}

// Violation combines equality and bound violations.
func (p *Problem) Violation(z []float64) float64 {
	return math.Max(p.EqualityViolation(z), p.BoundViolation(z))
}

// InitialFeasible reports whether x̂ itself satisfies the state bounds.
// When it does not, the initial-condition constraint cannot be met.
func (p *Problem) InitialFeasible() bool {
	return p.model.StateBounds().Contains(p.x0, 0)
}

package dynamics

import (
	"fmt"

	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/integrators"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Model is the discrete-time transition next = f(x, u, Δt) together with
// its control and state bounds. It is the only view of the robot the
// formulator sees.
type Model struct {
	name  string
	sys   dynamo.System
	integ dynamo.Integrator
	dt    float64

	control Bounds
	state   Bounds

	analytic dynamo.Linearizable
}

// New builds a discrete model. A nil state bound means unbounded.
func New(name string, sys dynamo.System, integ dynamo.Integrator, dt float64, control Bounds, state *Bounds) (*Model, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("%w: dt must be positive, got %f", dynamo.ErrConfigInvalid, dt)
	}
	if control.Dim() != sys.ControlDim() {
		return nil, fmt.Errorf("%w: %d control bounds for %d controls", dynamo.ErrDimensionMismatch, control.Dim(), sys.ControlDim())
	}
	if err := control.Validate(); err != nil {
		return nil, fmt.Errorf("%w: control %v", dynamo.ErrConfigInvalid, err)
	}

	sb := Unbounded(sys.StateDim())
	if state != nil {
		if state.Dim() != sys.StateDim() {
			return nil, fmt.Errorf("%w: %d state bounds for %d states", dynamo.ErrDimensionMismatch, state.Dim(), sys.StateDim())
		}
		if err := state.Validate(); err != nil {
			return nil, fmt.Errorf("%w: state %v", dynamo.ErrConfigInvalid, err)
		}
		sb = *state
	}

	m := &Model{
		name:    name,
		sys:     sys,
		integ:   integ,
		dt:      dt,
		control: control,
		state:   sb,
	}

	// Closed-form Jacobians of the discrete map are only available for the
	// forward Euler step; everything else goes through finite differences.
	if _, ok := integ.(*integrators.Euler); ok {
		if lin, ok := sys.(dynamo.Linearizable); ok {
			m.analytic = lin
		}
	}
	return m, nil
}

func (m *Model) Name() string                  { return m.name }
func (m *Model) StateDim() int                 { return m.sys.StateDim() }
func (m *Model) ControlDim() int               { return m.sys.ControlDim() }
func (m *Model) Dt() float64                   { return m.dt }
func (m *Model) ControlBounds() Bounds         { return m.control }
func (m *Model) StateBounds() Bounds           { return m.state }
func (m *Model) System() dynamo.System         { return m.sys }
func (m *Model) Analytic() bool                { return m.analytic != nil }
func (m *Model) Integrator() dynamo.Integrator { return m.integ }

// Next evaluates the discrete transition.
func (m *Model) Next(x dynamo.State, u dynamo.Control) dynamo.State {
	return m.integ.Step(m.sys, x, u, 0, m.dt)
}

// Linearize returns A = ∂f/∂x and B = ∂f/∂u of the discrete transition.
func (m *Model) Linearize(x dynamo.State, u dynamo.Control) (a, b *mat.Dense) {
	nx, nu := m.StateDim(), m.ControlDim()

	if m.analytic != nil {
		ac, bc := m.analytic.Jacobian(x, u)
		a = mat.NewDense(nx, nx, nil)
		a.Scale(m.dt, ac)
		for i := 0; i < nx; i++ {
			a.Set(i, i, a.At(i, i)+1)
		}
		b = mat.NewDense(nx, nu, nil)
		b.Scale(m.dt, bc)
		return a, b
	}

	w := make([]float64, nx+nu)
	copy(w, x)
	copy(w[nx:], u)
	jac := mat.NewDense(nx, nx+nu, nil)
	fd.Jacobian(jac, func(y, w []float64) {
		copy(y, m.Next(dynamo.State(w[:nx]), dynamo.Control(w[nx:])))
	}, w, &fd.JacobianSettings{Formula: fd.Central})

	a = mat.DenseCopyOf(jac.Slice(0, nx, 0, nx))
	b = mat.DenseCopyOf(jac.Slice(0, nx, nx, nx+nu))
	return a, b
}

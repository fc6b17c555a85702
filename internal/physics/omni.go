package physics

import (
	"github.com/san-kum/nmpc/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Omni is a holonomic base commanded in the world frame: ẋ = vx, ẏ = vy,
// θ̇ = ω. It is linear, which makes it the reference model for
// convergence checks.
type Omni struct{}

func NewOmni() *Omni {
	return &Omni{}
}

func (m *Omni) StateDim() int {
	return 3
}

func (m *Omni) ControlDim() int {
	return 3
}

func (m *Omni) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{u[0], u[1], u[2]}
}

func (m *Omni) Jacobian(x dynamo.State, u dynamo.Control) (*mat.Dense, *mat.Dense) {
	a := mat.NewDense(3, 3, nil)
	b := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
	return a, b
}

package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/nmpc/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Unicycle is the nonholonomic kinematic model ẋ = v cosθ, ẏ = v sinθ,
// θ̇ = ω with state (x, y, θ) and control (v, ω).
type Unicycle struct {
	// SpeedScale multiplies commanded linear velocity, modelling wheel
	// slip or a miscalibrated drive when the unicycle is used as a plant.
	SpeedScale float64
}

func NewUnicycle() *Unicycle {
	return &Unicycle{SpeedScale: 1.0}
}

func (m *Unicycle) StateDim() int {
	return 3
}

func (m *Unicycle) ControlDim() int {
	return 2
}

func (m *Unicycle) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	v := m.SpeedScale * u[0]
	omega := u[1]
	theta := x[2]

	return dynamo.State{v * math.Cos(theta), v * math.Sin(theta), omega}
}

func (m *Unicycle) Jacobian(x dynamo.State, u dynamo.Control) (*mat.Dense, *mat.Dense) {
	v := m.SpeedScale * u[0]
	sin, cos := math.Sincos(x[2])

	a := mat.NewDense(3, 3, []float64{
		0, 0, -v * sin,
		0, 0, v * cos,
		0, 0, 0,
	})
	b := mat.NewDense(3, 2, []float64{
		m.SpeedScale * cos, 0,
		m.SpeedScale * sin, 0,
		0, 1,
	})
	return a, b
}

func (m *Unicycle) GetParams() map[string]float64 {
	return map[string]float64{
		"speed_scale": m.SpeedScale,
	}
}

func (m *Unicycle) SetParam(name string, value float64) error {
	switch name {
	case "speed_scale":
		m.SpeedScale = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}

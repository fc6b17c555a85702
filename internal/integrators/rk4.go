package integrators

import "github.com/san-kum/nmpc/internal/dynamo"

// RK4 is the classical fourth-order Runge-Kutta step with the command held
// constant over the interval. The plant in simulation always uses it; the
// prediction model uses it under the rk4 preset, where the controller
// falls back to finite-difference Jacobians.
//
// RK4 keeps no state between steps, so one value can serve the model and
// an abandoned solve at the same time.
type RK4 struct{}

func NewRK4() *RK4 {
	return &RK4{}
}

// rk4Nodes are the stage offsets, as fractions of dt, at which k2..k4 are
// evaluated.
var rk4Nodes = [3]float64{0.5, 0.5, 1}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	n := len(x)
	next := x.Clone()
	stage := make(dynamo.State, n)

	k := dyn.Derive(x, u, t)
	for i := range next {
		next[i] += dt / 6 * k[i]
	}
	for s, c := range rk4Nodes {
		for i := range stage {
			stage[i] = x[i] + c*dt*k[i]
		}
		k = dyn.Derive(stage, u, t+c*dt)
		// Middle stages carry double weight.
		w := 2.0
		if s == len(rk4Nodes)-1 {
			w = 1
		}
		for i := range next {
			next[i] += w * dt / 6 * k[i]
		}
	}
	return next
}

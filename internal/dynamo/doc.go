// Package dynamo provides the core primitives shared by the controller.
//
// The package defines the vector types and interfaces every other package
// builds on:
//
//   - [State]: robot state vector, (x, y, θ) for the planar models
//   - [Control]: actuation command, (v, ω) for a unicycle
//   - [Pose], [Waypoint], [Path]: goal and reference inputs
//   - [System]: continuous kinematics (dX/dt = f(X, u, t))
//   - [Integrator]: one-step discretisation of a [System]
//
// Failure classes used across the control loop are exported as sentinel
// errors ([ErrInputStale], [ErrInfeasible], [ErrSolver], [ErrTimedOut],
// [ErrConfigInvalid]) so callers can match them with errors.Is.
//
// # Example
//
//	dyn := physics.NewUnicycle()
//	integ := integrators.NewEuler()
//	x := integ.Step(dyn, dynamo.State{0, 0, 0}, dynamo.Control{0.5, 0}, 0, 0.1)
//
// # Angles
//
// Headings are radians. [WrapAngle] maps to (-π, π] and [UnwrapNear]
// returns the representative closest to a reference heading.
package dynamo

// Package physics provides the continuous-time robot kinematics.
//
// Each model implements [dynamo.System] and [dynamo.Linearizable]:
//
//   - [Unicycle]: differential-drive / nonholonomic base, control (v, ω)
//   - [Omni]: holonomic base with world-frame velocity control (vx, vy, ω)
//
// Discretisation and bounds live in the dynamics package; this package only
// answers "how does the state move for a given command".
package physics

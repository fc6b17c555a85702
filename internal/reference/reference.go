package reference

import (
	"math"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// Params fixes the shape of the generated horizon.
type Params struct {
	Horizon int     // N, number of entries
	Dt      float64 // discretisation step
	Speed   float64 // v_ref, reference speed along the path

	// Optional state box. Targets are clamped into it after unwrapping,
	// so a heading box of [-π, π] never receives a target past ±π.
	StateLower []float64
	StateUpper []float64
}

// Horizon holds N target states; entry k is the target for predicted state
// k+1.
type Horizon []dynamo.State

// Generate projects path into N target poses ahead of the robot at x.
//
// The walk starts at the waypoint nearest the robot (ties go to the lowest
// index) and advances Speed·Dt of arc length per entry. Once the path runs
// out the remaining entries hold the final waypoint with the goal heading.
// An empty path yields N copies of the goal. Headings are unwrapped to lie
// within π of the robot heading.
func Generate(x dynamo.State, path dynamo.Path, goal dynamo.Pose, p Params) Horizon {
	out := generate(x, path, goal, p)
	for _, target := range out {
		for i := range target {
			if i < len(p.StateLower) {
				target[i] = math.Max(target[i], p.StateLower[i])
			}
			if i < len(p.StateUpper) {
				target[i] = math.Min(target[i], p.StateUpper[i])
			}
		}
	}
	return out
}

func generate(x dynamo.State, path dynamo.Path, goal dynamo.Pose, p Params) Horizon {
	n := p.Horizon
	if n < 0 {
		n = 0
	}
	out := make(Horizon, n)

	heading := 0.0
	if len(x) > 2 {
		heading = x[2]
	}

	if len(path) == 0 {
		for k := range out {
			out[k] = dynamo.State{goal.X, goal.Y, dynamo.UnwrapNear(goal.Theta, heading)}
		}
		return out
	}

	start := Nearest(path, x)
	arc := cumulative(path)
	last := len(path) - 1
	step := math.Max(p.Speed, 0) * p.Dt

	seg := start
	for k := range out {
		target := arc[start] + float64(k+1)*step
		if target >= arc[last] {
			wp := path[last]
			out[k] = dynamo.State{wp.X, wp.Y, dynamo.UnwrapNear(goal.Theta, heading)}
			continue
		}

		for seg < last-1 && arc[seg+1] <= target {
			seg++
		}
		a, b := path[seg], path[seg+1]
		length := arc[seg+1] - arc[seg]
		f := 0.0
		if length > 0 {
			f = (target - arc[seg]) / length
		}

		theta := dynamo.HeadingTo(a.X, a.Y, b.X, b.Y)
		if a.HasTheta {
			theta = a.Theta
		}
		out[k] = dynamo.State{
			a.X + f*(b.X-a.X),
			a.Y + f*(b.Y-a.Y),
			dynamo.UnwrapNear(theta, heading),
		}
	}
	return out
}

// Nearest returns the index of the waypoint closest to the position in x.
// Ties resolve to the lowest index so self-intersecting paths do not make
// the projection jump between branches.
func Nearest(path dynamo.Path, x dynamo.State) int {
	best := 0
	bestDist := math.Inf(1)
	for i, wp := range path {
		d := math.Hypot(wp.X-x[0], wp.Y-x[1])
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

func cumulative(path dynamo.Path) []float64 {
	arc := make([]float64, len(path))
	for i := 1; i < len(path); i++ {
		arc[i] = arc[i-1] + math.Hypot(path[i].X-path[i-1].X, path[i].Y-path[i-1].Y)
	}
	return arc
}

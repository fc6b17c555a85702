package metrics

import (
	"math"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// TrackingError is the RMS distance between the robot and the reference
// path polyline.
type TrackingError struct {
	path    dynamo.Path
	sumSq   float64
	worst   float64
	samples int
}

func NewTrackingError(path dynamo.Path) *TrackingError {
	return &TrackingError{path: path.Clone()}
}

func (e *TrackingError) Name() string { return "tracking_rms" }

func (e *TrackingError) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if len(e.path) == 0 || len(x) < 2 {
		return
	}
	d := DistanceToPath(e.path, x[0], x[1])
	e.sumSq += d * d
	e.worst = math.Max(e.worst, d)
	e.samples++
}

func (e *TrackingError) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return math.Sqrt(e.sumSq / float64(e.samples))
}

// Max is the largest deviation seen.
func (e *TrackingError) Max() float64 { return e.worst }

func (e *TrackingError) Reset() {
	e.sumSq = 0
	e.worst = 0
	e.samples = 0
}

// GoalDistance reports the distance to the goal at the latest sample.
type GoalDistance struct {
	goal dynamo.Pose
	last float64
}

func NewGoalDistance(goal dynamo.Pose) *GoalDistance {
	return &GoalDistance{goal: goal, last: math.NaN()}
}

func (g *GoalDistance) Name() string { return "goal_distance" }

func (g *GoalDistance) Observe(x dynamo.State, u dynamo.Control, t float64) {
	g.last = x.Pose().Distance(g.goal)
}

func (g *GoalDistance) Value() float64 { return g.last }

func (g *GoalDistance) Reset() { g.last = math.NaN() }

// DistanceToPath is the distance from (px, py) to the nearest segment of
// path. A single waypoint is treated as a point.
func DistanceToPath(path dynamo.Path, px, py float64) float64 {
	if len(path) == 1 {
		return math.Hypot(px-path[0].X, py-path[0].Y)
	}
	best := math.Inf(1)
	for i := 0; i+1 < len(path); i++ {
		a, b := path[i], path[i+1]
		dx, dy := b.X-a.X, b.Y-a.Y
		f := 0.0
		if l2 := dx*dx + dy*dy; l2 > 0 {
			f = math.Max(0, math.Min(1, ((px-a.X)*dx+(py-a.Y)*dy)/l2))
		}
		best = math.Min(best, math.Hypot(px-(a.X+f*dx), py-(a.Y+f*dy)))
	}
	return best
}

package dynamo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// State is a robot state vector. For the planar models this is (x, y, θ).
type State []float64

func (s State) Clone() State {
	if s == nil {
		return nil
	}
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	return finite(s)
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// Pose returns the planar pose held in the first three components.
func (s State) Pose() Pose {
	var p Pose
	if len(s) > 0 {
		p.X = s[0]
	}
	if len(s) > 1 {
		p.Y = s[1]
	}
	if len(s) > 2 {
		p.Theta = s[2]
	}
	return p
}

// Control is an actuation command, (v, ω) for a unicycle.
type Control []float64

func (u Control) Clone() Control {
	if u == nil {
		return nil
	}
	c := make(Control, len(u))
	copy(c, u)
	return c
}

func (u Control) IsValid() bool {
	return finite(u)
}

func (u Control) Scale(factor float64) Control {
	result := make(Control, len(u))
	for i := range u {
		result[i] = u[i] * factor
	}
	return result
}

// IsZero reports whether every component is exactly zero.
func (u Control) IsZero() bool {
	for _, v := range u {
		if v != 0 {
			return false
		}
	}
	return true
}

// Pose is a planar target pose.
type Pose struct {
	X     float64 `json:"x" yaml:"x" msgpack:"x"`
	Y     float64 `json:"y" yaml:"y" msgpack:"y"`
	Theta float64 `json:"theta" yaml:"theta" msgpack:"theta"`
}

func (p Pose) State() State {
	return State{p.X, p.Y, p.Theta}
}

// Distance is the Euclidean distance between the positions of p and q.
func (p Pose) Distance(q Pose) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", p.X, p.Y, p.Theta)
}

// Waypoint is a path point. Theta is only meaningful when HasTheta is set.
type Waypoint struct {
	X        float64 `json:"x" yaml:"x" msgpack:"x"`
	Y        float64 `json:"y" yaml:"y" msgpack:"y"`
	Theta    float64 `json:"theta,omitempty" yaml:"theta,omitempty" msgpack:"theta,omitempty"`
	HasTheta bool    `json:"has_theta,omitempty" yaml:"has_theta,omitempty" msgpack:"has_theta,omitempty"`
}

// Path is an ordered sequence of waypoints, replaced wholesale on update.
type Path []Waypoint

func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	c := make(Path, len(p))
	copy(c, p)
	return c
}

// Length returns the arc length of the polyline through the waypoints.
func (p Path) Length() float64 {
	total := 0.0
	for i := 1; i < len(p); i++ {
		total += math.Hypot(p[i].X-p[i-1].X, p[i].Y-p[i-1].Y)
	}
	return total
}

// StraightPath returns n evenly spaced waypoints from a to b inclusive.
func StraightPath(a, b Pose, n int) Path {
	if n <= 0 {
		return Path{}
	}
	if n == 1 {
		return Path{{X: b.X, Y: b.Y}}
	}
	path := make(Path, n)
	for i := 0; i < n; i++ {
		f := float64(i) / float64(n-1)
		path[i] = Waypoint{X: a.X + f*(b.X-a.X), Y: a.Y + f*(b.Y-a.Y)}
	}
	return path
}

type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

// Linearizable systems provide the continuous-time Jacobians
// A = ∂ẋ/∂x and B = ∂ẋ/∂u.
type Linearizable interface {
	Jacobian(x State, u Control) (a, b *mat.Dense)
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

type Metric interface {
	Name() string
	Observe(x State, u Control, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, u Control, t float64)
}

type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

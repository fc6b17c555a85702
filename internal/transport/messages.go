package transport

import (
	"math"
	"time"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// The wire messages mirror the geometry_msgs and nav_msgs layouts so that
// a ROS bridge can forward them unchanged.

type Header struct {
	Stamp   time.Time `json:"stamp" msgpack:"stamp"`
	FrameID string    `json:"frame_id,omitempty" msgpack:"frame_id,omitempty"`
}

type Vector3 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

type Quaternion struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
	W float64 `json:"w" msgpack:"w"`
}

type Pose struct {
	Position    Vector3    `json:"position" msgpack:"position"`
	Orientation Quaternion `json:"orientation" msgpack:"orientation"`
}

type PoseStamped struct {
	Header Header `json:"header" msgpack:"header"`
	Pose   Pose   `json:"pose" msgpack:"pose"`
}

type PathMsg struct {
	Header Header        `json:"header" msgpack:"header"`
	Poses  []PoseStamped `json:"poses" msgpack:"poses"`
}

type Twist struct {
	Linear  Vector3 `json:"linear" msgpack:"linear"`
	Angular Vector3 `json:"angular" msgpack:"angular"`
}

// Yaw extracts the heading from q with the standard roll/pitch/yaw
// decomposition.
func Yaw(q Quaternion) float64 {
	sinyCosp := 2 * (q.W*q.Z + q.X*q.Y)
	cosyCosp := 1 - 2*(q.Y*q.Y+q.Z*q.Z)
	return math.Atan2(sinyCosp, cosyCosp)
}

// FromYaw is the quaternion of a pure rotation about z.
func FromYaw(yaw float64) Quaternion {
	return Quaternion{Z: math.Sin(yaw / 2), W: math.Cos(yaw / 2)}
}

func (p PoseStamped) ToPose() dynamo.Pose {
	return dynamo.Pose{
		X:     p.Pose.Position.X,
		Y:     p.Pose.Position.Y,
		Theta: Yaw(p.Pose.Orientation),
	}
}

func NewPoseStamped(p dynamo.Pose, stamp time.Time, frame string) PoseStamped {
	return PoseStamped{
		Header: Header{Stamp: stamp, FrameID: frame},
		Pose: Pose{
			Position:    Vector3{X: p.X, Y: p.Y},
			Orientation: FromYaw(p.Theta),
		},
	}
}

// ToPath keeps waypoint positions only; headings along the path come from
// the segment directions.
func (m PathMsg) ToPath() dynamo.Path {
	path := make(dynamo.Path, len(m.Poses))
	for i, p := range m.Poses {
		path[i] = dynamo.Waypoint{X: p.Pose.Position.X, Y: p.Pose.Position.Y}
	}
	return path
}

func NewPathMsg(path dynamo.Path, stamp time.Time, frame string) PathMsg {
	m := PathMsg{Header: Header{Stamp: stamp, FrameID: frame}, Poses: make([]PoseStamped, len(path))}
	for i, wp := range path {
		m.Poses[i] = NewPoseStamped(dynamo.Pose{X: wp.X, Y: wp.Y, Theta: wp.Theta}, stamp, frame)
	}
	return m
}

// TwistFromControl maps a command onto a twist. Two components are a
// unicycle (v, ω); three are an omnidirectional (vx, vy, ω).
func TwistFromControl(u dynamo.Control) Twist {
	var t Twist
	switch len(u) {
	case 2:
		t.Linear.X, t.Angular.Z = u[0], u[1]
	case 3:
		t.Linear.X, t.Linear.Y, t.Angular.Z = u[0], u[1], u[2]
	}
	return t
}

func ControlFromTwist(t Twist, dim int) dynamo.Control {
	if dim == 3 {
		return dynamo.Control{t.Linear.X, t.Linear.Y, t.Angular.Z}
	}
	return dynamo.Control{t.Linear.X, t.Angular.Z}
}

package governor

import "fmt"

// Mode is the controller state.
type Mode int

const (
	Idle Mode = iota
	Tracking
	GoalReached
	Faulted
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "IDLE"
	case Tracking:
		return "TRACKING"
	case GoalReached:
		return "GOAL_REACHED"
	case Faulted:
		return "FAULTED"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

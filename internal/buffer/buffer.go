// Package buffer holds the latest robot state, goal and path. Input
// handlers replace slots wholesale; the control loop copies a snapshot at
// the start of each cycle and never holds the lock while it works.
package buffer

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// Snapshot is a consistent copy of the buffer at one instant.
type Snapshot struct {
	State    dynamo.State
	StateAt  time.Time
	HasState bool

	Goal    dynamo.Pose
	HasGoal bool

	// Path is shared with the buffer and must not be modified.
	Path dynamo.Path

	// Version increments whenever the goal or the path is replaced.
	Version uint64
}

// Age is how old the state was at now. Without a state it is unbounded.
func (s Snapshot) Age(now time.Time) time.Duration {
	if !s.HasState {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(s.StateAt)
}

// Fresh reports whether a state newer than staleness is present.
func (s Snapshot) Fresh(now time.Time, staleness time.Duration) bool {
	return s.HasState && s.Age(now) <= staleness
}

type Buffer struct {
	clock clock.Clock

	mu   sync.Mutex
	snap Snapshot
}

func New(c clock.Clock) *Buffer {
	if c == nil {
		c = clock.New()
	}
	return &Buffer{clock: c}
}

// SetState replaces the robot state and stamps it with the current time.
func (b *Buffer) SetState(x dynamo.State) error {
	if len(x) < 3 || !x.IsValid() {
		return fmt.Errorf("%w: %v", dynamo.ErrInvalidState, x)
	}
	x = x.Clone()
	now := b.clock.Now()

	b.mu.Lock()
	b.snap.State = x
	b.snap.StateAt = now
	b.snap.HasState = true
	b.mu.Unlock()
	return nil
}

func (b *Buffer) SetGoal(g dynamo.Pose) error {
	if !g.State().IsValid() {
		return fmt.Errorf("%w: goal %v", dynamo.ErrInvalidState, g)
	}

	b.mu.Lock()
	b.snap.Goal = g
	b.snap.HasGoal = true
	b.snap.Version++
	b.mu.Unlock()
	return nil
}

// SetPath installs a copy of p as the new path. An empty path is valid and
// means "drive straight at the goal".
func (b *Buffer) SetPath(p dynamo.Path) error {
	for i, wp := range p {
		if !dynamo.State([]float64{wp.X, wp.Y, wp.Theta}).IsValid() {
			return fmt.Errorf("%w: waypoint %d is not finite", dynamo.ErrInvalidState, i)
		}
	}
	p = p.Clone()

	b.mu.Lock()
	b.snap.Path = p
	b.snap.Version++
	b.mu.Unlock()
	return nil
}

func (b *Buffer) Snapshot() Snapshot {
	b.mu.Lock()
	s := b.snap
	b.mu.Unlock()
	s.State = s.State.Clone()
	return s
}

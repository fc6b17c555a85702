package control

import (
	"context"
	"sync"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// Actuator receives the command chosen each cycle.
type Actuator interface {
	Publish(ctx context.Context, u dynamo.Control) error
}

type ActuatorFunc func(ctx context.Context, u dynamo.Control) error

func (f ActuatorFunc) Publish(ctx context.Context, u dynamo.Control) error {
	return f(ctx, u)
}

// Discard drops every command.
var Discard Actuator = ActuatorFunc(func(context.Context, dynamo.Control) error { return nil })

// Latest keeps the most recent command, for simulation and tests.
type Latest struct {
	mu sync.Mutex
	u  dynamo.Control
	n  int
}

func (l *Latest) Publish(_ context.Context, u dynamo.Control) error {
	l.mu.Lock()
	l.u = u.Clone()
	l.n++
	l.mu.Unlock()
	return nil
}

// Command returns the last published command and how many were published.
func (l *Latest) Command() (dynamo.Control, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.u.Clone(), l.n
}

package solver

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/nlp"
)

// Driver runs one backend solve per cycle under a time budget and owns the
// warm start carried between cycles.
//
// At most one solve is in flight. When a previous solve was abandoned at
// its deadline and is still running, the next call returns TimedOut at once
// without starting another.
type Driver struct {
	backend Solver
	timeout time.Duration
	maxAge  time.Duration
	clock   clock.Clock
	logger  *zap.SugaredLogger

	busy chan struct{}

	mu     sync.Mutex
	warm   []float64
	warmAt time.Time
	shape  [3]int
}

type DriverOption func(*Driver)

// WithClock replaces the wall clock used for deadlines and warm-start age.
func WithClock(c clock.Clock) DriverOption {
	return func(d *Driver) { d.clock = c }
}

func WithLogger(l *zap.SugaredLogger) DriverOption {
	return func(d *Driver) { d.logger = l }
}

// WithWarmStartMaxAge discards a warm start older than age. Zero keeps it
// regardless of age.
func WithWarmStartMaxAge(age time.Duration) DriverOption {
	return func(d *Driver) { d.maxAge = age }
}

func NewDriver(backend Solver, timeout time.Duration, opts ...DriverOption) *Driver {
	d := &Driver{
		backend: backend,
		timeout: timeout,
		clock:   clock.New(),
		logger:  zap.NewNop().Sugar(),
		busy:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Timeout() time.Duration { return d.timeout }

// Solve builds the initial guess, runs the backend under the driver budget
// and updates the warm start from the result.
func (d *Driver) Solve(ctx context.Context, p *nlp.Problem) Result {
	select {
	case d.busy <- struct{}{}:
	default:
		d.Reset()
		return Failed(TimedOut, errors.Wrap(dynamo.ErrTimedOut, "previous solve still running"))
	}

	initial, warm := d.guess(p)
	start := d.clock.Now()

	solveCtx, cancel := d.clock.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		r := d.backend.Solve(solveCtx, p, initial)
		<-d.busy
		done <- r
	}()

	var r Result
	select {
	case r = <-done:
		if solveCtx.Err() != nil && r.Outcome != TimedOut {
			// Finished, but only after the budget ran out.
			r = Failed(TimedOut, errors.Wrap(dynamo.ErrTimedOut, solveCtx.Err().Error()))
		}
	case <-solveCtx.Done():
		r = Failed(TimedOut, errors.Wrap(dynamo.ErrTimedOut, solveCtx.Err().Error()))
	}
	r.WarmStart = warm
	r.Elapsed = d.clock.Since(start)

	if r.Outcome.OK() {
		d.store(p, r.Z)
	} else {
		d.Reset()
		d.logger.Debugw("solve failed", "outcome", r.Outcome, "elapsed", r.Elapsed, "error", r.Err)
	}
	return r
}

func (d *Driver) guess(p *nlp.Problem) ([]float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.warm == nil {
		return p.StaticGuess(), false
	}
	if len(d.warm) != p.NumVars() || d.shape != shapeOf(p) {
		d.logger.Debugw("warm start dimension mismatch, discarding")
		d.warm = nil
		return p.StaticGuess(), false
	}
	if d.maxAge > 0 && d.clock.Since(d.warmAt) > d.maxAge {
		d.logger.Debugw("warm start expired", "age", d.clock.Since(d.warmAt))
		d.warm = nil
		return p.StaticGuess(), false
	}
	return p.Seed(d.warm), true
}

func (d *Driver) store(p *nlp.Problem, z []float64) {
	shifted := p.Shift(z)
	d.mu.Lock()
	d.warm = shifted
	d.warmAt = d.clock.Now()
	d.shape = shapeOf(p)
	d.mu.Unlock()
}

// Reset drops the warm start so the next solve starts cold.
func (d *Driver) Reset() {
	d.mu.Lock()
	d.warm = nil
	d.mu.Unlock()
}

// WarmStart returns a copy of the stored warm start, or nil.
func (d *Driver) WarmStart() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.warm == nil {
		return nil
	}
	return append([]float64(nil), d.warm...)
}

// Busy reports whether a solve is still running.
func (d *Driver) Busy() bool {
	return len(d.busy) > 0
}

func shapeOf(p *nlp.Problem) [3]int {
	return [3]int{p.Horizon(), p.StateDim(), p.ControlDim()}
}

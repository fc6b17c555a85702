package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/san-kum/nmpc/internal/buffer"
	"github.com/san-kum/nmpc/internal/dynamics"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/governor"
	"github.com/san-kum/nmpc/internal/metrics"
	"github.com/san-kum/nmpc/internal/nlp"
	"github.com/san-kum/nmpc/internal/reference"
	"github.com/san-kum/nmpc/internal/solver"
)

type Params struct {
	Horizon   int           // N, fixed for the life of the pipeline
	Speed     float64       // v_ref
	Staleness time.Duration // oldest state the loop will act on
}

// Cycle records what happened in one control cycle.
type Cycle struct {
	Seq       uint64
	At        time.Time
	State     dynamo.State
	Goal      dynamo.Pose
	Reference reference.Horizon
	Solved    bool // the solver was called
	Result    solver.Result
	Decision  governor.Decision
	Err       error // *dynamo.CycleError when the cycle fell back
}

type Option func(*Pipeline)

func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func WithCounters(c *metrics.Counters) Option {
	return func(p *Pipeline) { p.counters = c }
}

// WithObserver registers fn to be called with every finished cycle, on the
// loop goroutine.
func WithObserver(fn func(Cycle)) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, fn) }
}

type Pipeline struct {
	model   *dynamics.Model
	weights nlp.Weights
	params  Params

	buf    *buffer.Buffer
	driver *solver.Driver
	gov    *governor.Governor
	out    Actuator

	clock     clock.Clock
	logger    *zap.SugaredLogger
	counters  *metrics.Counters
	observers []func(Cycle)

	started time.Time
	seq     uint64
	version uint64

	mu   sync.Mutex
	last Cycle
}

func New(model *dynamics.Model, weights nlp.Weights, params Params, buf *buffer.Buffer, driver *solver.Driver, gov *governor.Governor, out Actuator, opts ...Option) (*Pipeline, error) {
	if params.Horizon < 1 {
		return nil, fmt.Errorf("%w: horizon must be at least 1, got %d", dynamo.ErrConfigInvalid, params.Horizon)
	}
	if params.Staleness <= 0 {
		return nil, fmt.Errorf("%w: staleness must be positive", dynamo.ErrConfigInvalid)
	}
	if err := weights.Validate(model.StateDim(), model.ControlDim()); err != nil {
		return nil, err
	}
	if out == nil {
		out = Discard
	}
	p := &Pipeline{
		model:    model,
		weights:  weights,
		params:   params,
		buf:      buf,
		driver:   driver,
		gov:      gov,
		out:      out,
		clock:    clock.New(),
		logger:   zap.NewNop().Sugar(),
		counters: &metrics.Counters{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.started = p.clock.Now()
	return p, nil
}

func (p *Pipeline) Counters() *metrics.Counters  { return p.counters }
func (p *Pipeline) Governor() *governor.Governor { return p.gov }
func (p *Pipeline) Driver() *solver.Driver       { return p.driver }

// Last returns the most recent cycle.
func (p *Pipeline) Last() Cycle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Tick runs one cycle; it has the scheduler.Work signature.
func (p *Pipeline) Tick(ctx context.Context) {
	p.Step(ctx)
}

// Step runs one full cycle and publishes its command.
func (p *Pipeline) Step(ctx context.Context) Cycle {
	p.seq++
	now := p.clock.Now()
	snap := p.buf.Snapshot()
	c := Cycle{Seq: p.seq, At: now, State: snap.State, Goal: snap.Goal}
	p.counters.Cycles.Inc()

	c.Decision = p.decide(ctx, snap, now, &c)
	if c.Decision.Reason != nil {
		c.Err = &dynamo.CycleError{Cycle: c.Seq, Time: now.Sub(p.started).Seconds(), Wrapped: c.Decision.Reason}
	}
	p.account(c)

	if err := p.out.Publish(ctx, c.Decision.Command); err != nil {
		p.counters.PublishErrs.Inc()
		p.logger.Warnw("publish failed", "cycle", c.Seq, "error", err)
	} else {
		p.counters.Published.Inc()
	}

	p.mu.Lock()
	p.last = c
	p.mu.Unlock()
	for _, fn := range p.observers {
		fn(c)
	}
	return c
}

func (p *Pipeline) decide(ctx context.Context, snap buffer.Snapshot, now time.Time, c *Cycle) governor.Decision {
	if !snap.HasGoal {
		return p.gov.Idle()
	}
	if snap.Version != p.version {
		p.version = snap.Version
		p.gov.NewInputs()
		p.driver.Reset()
		p.logger.Infow("new goal or path", "goal", snap.Goal, "waypoints", len(snap.Path))
	}
	if p.gov.Mode() == governor.GoalReached {
		return p.gov.GoalReached()
	}

	if !snap.Fresh(now, p.params.Staleness) {
		p.counters.Stale.Inc()
		return p.gov.Fail(fmt.Errorf("%w: state age %v exceeds %v", dynamo.ErrInputStale, snap.Age(now), p.params.Staleness))
	}
	if p.gov.AtGoal(snap.State, snap.Goal) {
		return p.gov.GoalReached()
	}

	sb := p.model.StateBounds()
	c.Reference = reference.Generate(snap.State, snap.Path, snap.Goal, reference.Params{
		Horizon:    p.params.Horizon,
		Dt:         p.model.Dt(),
		Speed:      p.params.Speed,
		StateLower: sb.Lower,
		StateUpper: sb.Upper,
	})
	problem, err := nlp.Build(p.model, snap.State, c.Reference, p.weights)
	if err != nil {
		p.counters.SolverError.Inc()
		return p.gov.Fail(err)
	}

	c.Solved = true
	c.Result = p.driver.Solve(ctx, problem)
	p.logger.Debugw("solve",
		"cycle", c.Seq,
		"outcome", c.Result.Outcome,
		"elapsed", c.Result.Elapsed,
		"iterations", c.Result.Iterations,
		"warm", c.Result.WarmStart,
	)
	return p.gov.Accept(c.Result)
}

func (p *Pipeline) account(c Cycle) {
	if c.Solved {
		switch c.Result.Outcome {
		case solver.Optimal:
			p.counters.Optimal.Inc()
		case solver.SuboptimalFeasible:
			p.counters.Suboptimal.Inc()
		case solver.Infeasible:
			p.counters.Infeasible.Inc()
		case solver.SolverError:
			p.counters.SolverError.Inc()
		case solver.TimedOut:
			p.counters.TimedOut.Inc()
		}
		if c.Result.WarmStart {
			p.counters.WarmStarts.Inc()
		}
	}
	if c.Decision.Fallback {
		p.counters.Fallbacks.Inc()
	}
	if c.Decision.ForcedStop {
		p.counters.ForcedStops.Inc()
	}
	if c.Decision.Mode == governor.GoalReached && p.Last().Decision.Mode != governor.GoalReached {
		p.counters.GoalReached.Inc()
	}
}

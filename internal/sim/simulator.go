// Package sim closes the loop between the controller and a simulated robot.
package sim

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/san-kum/nmpc/internal/buffer"
	"github.com/san-kum/nmpc/internal/control"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/governor"
)

// Simulator steps a plant with the commands a control pipeline produces.
// Time only moves through the mock clock, so runs are deterministic and
// as fast as the solver allows.
type Simulator struct {
	plant      dynamo.System
	integrator dynamo.Integrator
	pipeline   *control.Pipeline
	buf        *buffer.Buffer
	clock      *clock.Mock
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
}

// New wires a simulator. buf and pipeline must share mock as their clock.
func New(plant dynamo.System, integrator dynamo.Integrator, pipeline *control.Pipeline, buf *buffer.Buffer, mock *clock.Mock) *Simulator {
	return &Simulator{
		plant:      plant,
		integrator: integrator,
		pipeline:   pipeline,
		buf:        buf,
		clock:      mock,
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := s.buf.SetGoal(cfg.Goal); err != nil {
		return nil, err
	}
	if err := s.buf.SetPath(cfg.Path); err != nil {
		return nil, err
	}

	steps := int(math.Ceil(cfg.Duration / cfg.Period.Seconds()))
	result := &Result{
		Times:    make([]float64, 0, steps+1),
		States:   make([]dynamo.State, 0, steps+1),
		Controls: make([]dynamo.Control, 0, steps),
		Outcomes: make([]string, 0, steps),
		Modes:    make([]string, 0, steps),
		Metrics:  make(map[string]float64),
	}
	for _, m := range s.metrics {
		m.Reset()
	}

	x := cfg.Start.Clone()
	t := 0.0
	for t < cfg.Duration {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.buf.SetState(x); err != nil {
			result.Errors = append(result.Errors, err)
			break
		}

		started := s.clock.Now()
		c := s.pipeline.Step(ctx)
		s.settle()
		u := c.Decision.Command
		if len(u) != s.plant.ControlDim() {
			u = make(dynamo.Control, s.plant.ControlDim())
		}

		for _, m := range s.metrics {
			m.Observe(x, u, t)
		}
		for _, o := range s.observers {
			o.OnStep(x, u, t)
		}
		result.Times = append(result.Times, t)
		result.States = append(result.States, x.Clone())
		result.Controls = append(result.Controls, u.Clone())
		result.Modes = append(result.Modes, c.Decision.Mode.String())
		if c.Solved {
			result.Outcomes = append(result.Outcomes, c.Result.Outcome.String())
		} else {
			result.Outcomes = append(result.Outcomes, "")
		}
		if c.Err != nil {
			result.Errors = append(result.Errors, c.Err)
		}

		if c.Decision.Mode == governor.GoalReached {
			result.Reached = true
			if cfg.StopAtGoal {
				break
			}
		}

		// A cycle that overran holds its command until the next period
		// boundary, as the scheduler would.
		hold := cfg.Period
		if elapsed := s.clock.Since(started); elapsed > hold {
			hold = time.Duration(math.Ceil(float64(elapsed)/float64(cfg.Period))) * cfg.Period
		}
		if rest := hold - s.clock.Since(started); rest > 0 {
			s.clock.Add(rest)
		}

		x = s.advance(x, u, t, hold.Seconds(), cfg.PlantDt)
		t += hold.Seconds()
		if !x.IsValid() {
			result.Errors = append(result.Errors, &dynamo.CycleError{Cycle: c.Seq, Time: t, Wrapped: dynamo.ErrInvalidState})
			break
		}
	}
	result.Times = append(result.Times, t)
	result.States = append(result.States, x.Clone())

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	result.Counters = s.pipeline.Counters().Snapshot()
	return result, nil
}

// settle waits for an abandoned solve to return so that its simulated
// latency is fully charged to the clock before the plant moves.
func (s *Simulator) settle() {
	for s.pipeline.Driver().Busy() {
		time.Sleep(50 * time.Microsecond)
	}
}

// advance integrates the plant over span seconds with u held constant.
func (s *Simulator) advance(x dynamo.State, u dynamo.Control, t, span, dt float64) dynamo.State {
	if dt <= 0 || dt > span {
		dt = span
	}
	n := int(math.Round(span / dt))
	if n < 1 {
		n = 1
	}
	h := span / float64(n)
	for i := 0; i < n; i++ {
		x = s.integrator.Step(s.plant, x, u, t, h)
		t += h
	}
	return x
}

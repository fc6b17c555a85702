// Package experiment assembles a controller from configuration and runs it
// against a simulated plant.
package experiment

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/nmpc/internal/buffer"
	"github.com/san-kum/nmpc/internal/config"
	"github.com/san-kum/nmpc/internal/control"
	"github.com/san-kum/nmpc/internal/dynamics"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/governor"
	"github.com/san-kum/nmpc/internal/metrics"
	"github.com/san-kum/nmpc/internal/sim"
	"github.com/san-kum/nmpc/internal/solver"
)

// Rig is a fully wired controller.
type Rig struct {
	Config   *config.Config
	Model    *dynamics.Model
	Buffer   *buffer.Buffer
	Driver   *solver.Driver
	Governor *governor.Governor
	Pipeline *control.Pipeline
	Counters *metrics.Counters
}

// Options adjust how a rig is built. The zero value uses the wall clock,
// a no-op logger and discards commands.
type Options struct {
	Clock     clock.Clock
	Logger    *zap.SugaredLogger
	Actuator  control.Actuator
	Observers []func(control.Cycle)

	// WrapBackend, when set, decorates the configured solver backend.
	WrapBackend func(solver.Solver) solver.Solver
}

// Build validates cfg and wires every component of the control loop.
func Build(cfg *config.Config, reg *Registry, opts Options) (*Rig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = NewRegistry()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	sys, err := reg.GetModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	integ, err := reg.GetIntegrator(cfg.Integrator)
	if err != nil {
		return nil, err
	}
	model, err := dynamics.New(cfg.Model, sys, integ, cfg.Dt, cfg.ControlBounds(), cfg.StateBounds())
	if err != nil {
		return nil, errors.Wrap(err, "model")
	}

	backend, err := reg.GetBackend(cfg.Solver.Backend, cfg.SolverSettings(), opts.Logger.Named("solver"))
	if err != nil {
		return nil, err
	}
	if opts.WrapBackend != nil {
		backend = opts.WrapBackend(backend)
	}
	driver := solver.NewDriver(backend, cfg.SolveTimeout,
		solver.WithClock(opts.Clock),
		solver.WithLogger(opts.Logger.Named("driver")),
		solver.WithWarmStartMaxAge(cfg.WarmStartMaxAge),
	)

	gcfg, err := cfg.GovernorConfig()
	if err != nil {
		return nil, err
	}
	gov, err := governor.New(gcfg, opts.Logger.Named("governor"))
	if err != nil {
		return nil, err
	}

	buf := buffer.New(opts.Clock)
	counters := &metrics.Counters{}
	pipeOpts := []control.Option{
		control.WithClock(opts.Clock),
		control.WithLogger(opts.Logger.Named("pipeline")),
		control.WithCounters(counters),
	}
	for _, fn := range opts.Observers {
		pipeOpts = append(pipeOpts, control.WithObserver(fn))
	}
	pipe, err := control.New(model, cfg.NLPWeights(), control.Params{
		Horizon:   cfg.Horizon,
		Speed:     cfg.RefSpeed,
		Staleness: cfg.Staleness,
	}, buf, driver, gov, opts.Actuator, pipeOpts...)
	if err != nil {
		return nil, err
	}

	return &Rig{
		Config:   cfg,
		Model:    model,
		Buffer:   buf,
		Driver:   driver,
		Governor: gov,
		Pipeline: pipe,
		Counters: counters,
	}, nil
}

// Experiment runs a configuration in closed loop against a simulated plant
// on a mock clock. Solve latency is charged to the mock clock so the solve
// budget is enforced in simulated time.
type Experiment struct {
	cfg       *config.Config
	reg       *Registry
	logger    *zap.SugaredLogger
	observers []func(control.Cycle)
	steps     []dynamo.Observer
}

func New(cfg *config.Config, reg *Registry, logger *zap.SugaredLogger) *Experiment {
	if reg == nil {
		reg = NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Experiment{cfg: cfg, reg: reg, logger: logger}
}

// OnCycle registers fn to see every control cycle.
func (e *Experiment) OnCycle(fn func(control.Cycle)) { e.observers = append(e.observers, fn) }

// AddObserver registers o to see every plant step.
func (e *Experiment) AddObserver(o dynamo.Observer) { e.steps = append(e.steps, o) }

// Scenario turns the simulation section of the configuration into a
// simulator scenario. The path is a straight line from start to goal.
func Scenario(cfg *config.Config) sim.Config {
	start, goal := cfg.Sim.Start.Pose(), cfg.Sim.Goal.Pose()
	var path dynamo.Path
	if cfg.Sim.PathPoints > 0 {
		path = dynamo.StraightPath(start, goal, cfg.Sim.PathPoints)
	}
	return sim.Config{
		Period:     cfg.Period,
		Duration:   cfg.Sim.Duration,
		Start:      start.State(),
		Goal:       goal,
		Path:       path,
		PlantDt:    cfg.Dt / 10,
		StopAtGoal: true,
	}
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	return e.RunScenario(ctx, Scenario(e.cfg))
}

func (e *Experiment) RunScenario(ctx context.Context, sc sim.Config) (*sim.Result, error) {
	s, err := e.Simulator(sc)
	if err != nil {
		return nil, err
	}
	e.logger.Infow("simulation starting",
		"model", e.cfg.Model,
		"integrator", e.cfg.Integrator,
		"backend", e.cfg.Solver.Backend,
		"goal", sc.Goal,
	)
	return s.Run(ctx, sc)
}

// Simulator builds a fresh rig on its own mock clock and wraps it in a
// simulator with the default metrics for sc.
func (e *Experiment) Simulator(sc sim.Config) (*sim.Simulator, error) {
	mock := clock.NewMock()
	mock.Set(time.Unix(0, 0))

	opts := Options{
		Clock:     mock,
		Logger:    e.logger,
		Observers: e.observers,
	}
	if e.cfg.Sim.SolveLatency > 0 {
		latency := e.cfg.Sim.SolveLatency
		opts.WrapBackend = func(s solver.Solver) solver.Solver { return sim.WithLatency(s, mock, latency) }
	}
	rig, err := Build(e.cfg, e.reg, opts)
	if err != nil {
		return nil, err
	}

	// The plant always integrates with RK4, independent of the prediction
	// model's integrator.
	plantInteg, err := e.reg.GetIntegrator("rk4")
	if err != nil {
		return nil, err
	}
	s := sim.New(rig.Model.System(), plantInteg, rig.Pipeline, rig.Buffer, mock)
	for _, m := range e.reg.DefaultMetrics(sc.Path, sc.Goal) {
		s.AddMetric(m)
	}
	s.AddMetric(metrics.NewCompliance(e.cfg.Bounds.StateMin, e.cfg.Bounds.StateMax, e.cfg.Bounds.ControlMin, e.cfg.Bounds.ControlMax))
	for _, o := range e.steps {
		s.AddObserver(o)
	}
	return s, nil
}

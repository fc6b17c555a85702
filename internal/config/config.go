package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/nmpc/internal/dynamics"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/governor"
	"github.com/san-kum/nmpc/internal/nlp"
	"github.com/san-kum/nmpc/internal/solver"
)

const (
	DefaultHorizon   = 10
	DefaultDt        = 0.1
	DefaultPeriod    = 100 * time.Millisecond
	DefaultTimeout   = 80 * time.Millisecond
	DefaultRefSpeed  = 0.5
	DefaultStaleness = 500 * time.Millisecond
	DefaultWarmAge   = time.Second
	DefaultK         = 3
)

// Config is the immutable controller configuration, read once at startup.
type Config struct {
	Model           string        `yaml:"model"`
	Integrator      string        `yaml:"integrator"`
	Horizon         int           `yaml:"horizon"`
	Dt              float64       `yaml:"dt"`
	Period          time.Duration `yaml:"period"`
	SolveTimeout    time.Duration `yaml:"solve_timeout"`
	RefSpeed        float64       `yaml:"ref_speed"`
	Staleness       time.Duration `yaml:"staleness"`
	WarmStartMaxAge time.Duration `yaml:"warm_start_max_age"`

	Weights   WeightsConfig   `yaml:"weights"`
	Bounds    BoundsConfig    `yaml:"bounds"`
	Goal      ToleranceConfig `yaml:"goal_tolerance"`
	Fault     FaultConfig     `yaml:"fault"`
	Solver    SolverConfig    `yaml:"solver"`
	Transport TransportConfig `yaml:"transport"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sim       SimConfig       `yaml:"sim"`
}

type WeightsConfig struct {
	Q  []float64 `yaml:"q"`
	Qf []float64 `yaml:"qf"`
	R  []float64 `yaml:"r"`
	S  []float64 `yaml:"s"`
}

// BoundsConfig holds the actuation box and the optional state box. An
// empty state box leaves states unconstrained.
type BoundsConfig struct {
	ControlMin []float64 `yaml:"control_min"`
	ControlMax []float64 `yaml:"control_max"`
	StateMin   []float64 `yaml:"state_min,omitempty"`
	StateMax   []float64 `yaml:"state_max,omitempty"`
}

type ToleranceConfig struct {
	Position float64 `yaml:"position"`
	Heading  float64 `yaml:"heading"`
}

type FaultConfig struct {
	Policy      string `yaml:"policy"`
	MaxFailures int    `yaml:"max_failures"`
}

type SolverConfig struct {
	Backend       string  `yaml:"backend"`
	MaxOuter      int     `yaml:"max_outer"`
	MaxInner      int     `yaml:"max_inner"`
	Tolerance     float64 `yaml:"tolerance"`
	GradTolerance float64 `yaml:"grad_tolerance"`
	Penalty       float64 `yaml:"penalty"`
	PenaltyGrowth float64 `yaml:"penalty_growth"`
	MaxPenalty    float64 `yaml:"max_penalty"`
}

type TopicsConfig struct {
	Pose    string `yaml:"pose"`
	Goal    string `yaml:"goal"`
	Path    string `yaml:"path"`
	Command string `yaml:"command"`
}

type TransportConfig struct {
	Broker   string       `yaml:"broker"`
	ClientID string       `yaml:"client_id"`
	Codec    string       `yaml:"codec"`
	QoS      byte         `yaml:"qos"`
	Topics   TopicsConfig `yaml:"topics"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type PoseConfig struct {
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Theta float64 `yaml:"theta"`
}

func (p PoseConfig) Pose() dynamo.Pose {
	return dynamo.Pose{X: p.X, Y: p.Y, Theta: p.Theta}
}

// SimConfig describes the closed-loop simulation scenario.
type SimConfig struct {
	Duration   float64    `yaml:"duration"`
	Start      PoseConfig `yaml:"start"`
	Goal       PoseConfig `yaml:"goal"`
	PathPoints int        `yaml:"path_points"`

	// SolveLatency is the simulated time a solve takes. Zero means the
	// solve is instantaneous in simulated time.
	SolveLatency time.Duration `yaml:"solve_latency"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:           "unicycle",
		Integrator:      "euler",
		Horizon:         DefaultHorizon,
		Dt:              DefaultDt,
		Period:          DefaultPeriod,
		SolveTimeout:    DefaultTimeout,
		RefSpeed:        DefaultRefSpeed,
		Staleness:       DefaultStaleness,
		WarmStartMaxAge: DefaultWarmAge,
		Weights: WeightsConfig{
			Q:  []float64{1, 1, 0.5},
			Qf: []float64{5, 5, 1},
			R:  []float64{0.05, 0.05},
			S:  []float64{0.1, 0.1},
		},
		Bounds: BoundsConfig{
			ControlMin: []float64{-1, -1.5},
			ControlMax: []float64{1, 1.5},
		},
		Goal:  ToleranceConfig{Position: 0.1, Heading: 0.05},
		Fault: FaultConfig{Policy: "hold", MaxFailures: DefaultK},
		Solver: SolverConfig{
			Backend:       "auglag",
			MaxOuter:      30,
			MaxInner:      200,
			Tolerance:     1e-4,
			GradTolerance: 1e-6,
			Penalty:       10,
			PenaltyGrowth: 10,
			MaxPenalty:    1e8,
		},
		Transport: TransportConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "nmpc",
			Codec:    "json",
			QoS:      0,
			Topics: TopicsConfig{
				Pose:    "/robot_pose",
				Goal:    "/goal_pose",
				Path:    "/path",
				Command: "/cmd_vel",
			},
		},
		Logging: LoggingConfig{Level: "info", Encoding: "console"},
		Sim: SimConfig{
			Duration:   20,
			Goal:       PoseConfig{X: 3, Y: 2},
			PathPoints: 30,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", dynamo.ErrConfigInvalid, path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every problem with the configuration at once, wrapped
// in dynamo.ErrConfigInvalid.
func (c *Config) Validate() error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}

	if c.Horizon < 1 {
		add("horizon must be at least 1, got %d", c.Horizon)
	}
	if !(c.Dt > 0) || math.IsInf(c.Dt, 0) {
		add("dt must be positive, got %g", c.Dt)
	}
	if c.Period <= 0 {
		add("period must be positive, got %v", c.Period)
	}
	if c.SolveTimeout <= 0 || c.SolveTimeout >= c.Period {
		add("solve_timeout must be positive and shorter than the period, got %v with period %v", c.SolveTimeout, c.Period)
	}
	if c.RefSpeed < 0 {
		add("ref_speed must not be negative, got %g", c.RefSpeed)
	}
	if c.Staleness <= 0 {
		add("staleness must be positive, got %v", c.Staleness)
	}
	if c.WarmStartMaxAge < 0 {
		add("warm_start_max_age must not be negative, got %v", c.WarmStartMaxAge)
	}

	nx, nu := len(c.Weights.Q), len(c.Weights.R)
	if nx == 0 || nu == 0 {
		add("weights q and r must not be empty")
	}
	if err := c.NLPWeights().Validate(nx, nu); err != nil {
		errs = multierr.Append(errs, err)
	}
	if len(c.Bounds.ControlMin) != nu || len(c.Bounds.ControlMax) != nu {
		add("control bounds need %d entries to match r", nu)
	} else if err := c.ControlBounds().Validate(); err != nil {
		errs = multierr.Append(errs, err)
	} else if !c.ControlBounds().AdmitsZero() {
		add("control bounds must admit a zero command, got %v..%v", c.Bounds.ControlMin, c.Bounds.ControlMax)
	}
	if len(c.Bounds.StateMin) > 0 || len(c.Bounds.StateMax) > 0 {
		if len(c.Bounds.StateMin) != nx || len(c.Bounds.StateMax) != nx {
			add("state bounds need %d entries to match q", nx)
		} else if err := c.StateBounds().Validate(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.Goal.Position <= 0 || c.Goal.Heading <= 0 {
		add("goal tolerances must be positive")
	}
	if _, err := governor.ParsePolicy(c.Fault.Policy); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.Fault.MaxFailures < 1 {
		add("fault.max_failures must be at least 1, got %d", c.Fault.MaxFailures)
	}

	switch c.Solver.Backend {
	case "auglag", "slsqp":
	default:
		add("unknown solver backend %q", c.Solver.Backend)
	}
	if c.Solver.Tolerance < 0 || c.Solver.GradTolerance < 0 {
		add("solver tolerances must not be negative")
	}

	switch c.Transport.Codec {
	case "json", "msgpack":
	default:
		add("unknown transport codec %q", c.Transport.Codec)
	}
	if c.Transport.QoS > 2 {
		add("transport qos must be 0, 1 or 2, got %d", c.Transport.QoS)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		add("logging level: %v", err)
	}
	switch c.Logging.Encoding {
	case "console", "json":
	default:
		add("unknown logging encoding %q", c.Logging.Encoding)
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", dynamo.ErrConfigInvalid, errs)
	}
	return nil
}

func (c *Config) NLPWeights() nlp.Weights {
	return nlp.Weights{Q: c.Weights.Q, Qf: c.Weights.Qf, R: c.Weights.R, S: c.Weights.S}
}

func (c *Config) ControlBounds() dynamics.Bounds {
	return dynamics.Bounds{Lower: c.Bounds.ControlMin, Upper: c.Bounds.ControlMax}
}

// StateBounds is nil when no state box is configured.
func (c *Config) StateBounds() *dynamics.Bounds {
	if len(c.Bounds.StateMin) == 0 && len(c.Bounds.StateMax) == 0 {
		return nil
	}
	return &dynamics.Bounds{Lower: c.Bounds.StateMin, Upper: c.Bounds.StateMax}
}

func (c *Config) SolverSettings() solver.Settings {
	return solver.Settings{
		MaxOuter:      c.Solver.MaxOuter,
		MaxInner:      c.Solver.MaxInner,
		Tolerance:     c.Solver.Tolerance,
		GradTolerance: c.Solver.GradTolerance,
		Penalty:       c.Solver.Penalty,
		PenaltyGrowth: c.Solver.PenaltyGrowth,
		MaxPenalty:    c.Solver.MaxPenalty,
	}
}

func (c *Config) GovernorConfig() (governor.Config, error) {
	policy, err := governor.ParsePolicy(c.Fault.Policy)
	if err != nil {
		return governor.Config{}, err
	}
	return governor.Config{
		Policy:      policy,
		MaxFailures: c.Fault.MaxFailures,
		Limits:      c.ControlBounds(),
		PosTol:      c.Goal.Position,
		HeadingTol:  c.Goal.Heading,
	}, nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Weights = WeightsConfig{
		Q:  clone(c.Weights.Q),
		Qf: clone(c.Weights.Qf),
		R:  clone(c.Weights.R),
		S:  clone(c.Weights.S),
	}
	out.Bounds = BoundsConfig{
		ControlMin: clone(c.Bounds.ControlMin),
		ControlMax: clone(c.Bounds.ControlMax),
		StateMin:   clone(c.Bounds.StateMin),
		StateMax:   clone(c.Bounds.StateMax),
	}
	return &out
}

func clone(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append([]float64(nil), v...)
}

package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/nlp"
)

// Outcome classifies a solve.
type Outcome int

const (
	Optimal Outcome = iota
	SuboptimalFeasible
	Infeasible
	SolverError
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Optimal:
		return "optimal"
	case SuboptimalFeasible:
		return "suboptimal_feasible"
	case Infeasible:
		return "infeasible"
	case SolverError:
		return "solver_error"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// OK reports whether the outcome carries a usable trajectory.
func (o Outcome) OK() bool {
	return o == Optimal || o == SuboptimalFeasible
}

// Err maps failure outcomes onto the dynamo sentinel errors.
func (o Outcome) Err() error {
	switch o {
	case Infeasible:
		return dynamo.ErrInfeasible
	case SolverError:
		return dynamo.ErrSolver
	case TimedOut:
		return dynamo.ErrTimedOut
	default:
		return nil
	}
}

// Result is the tagged outcome of one solve. Z and Trajectory are only
// populated when Outcome.OK() is true.
type Result struct {
	Outcome    Outcome
	Z          []float64
	Trajectory nlp.Trajectory
	Objective  float64
	Violation  float64
	Iterations int
	Elapsed    time.Duration
	WarmStart  bool
	Err        error
}

// Failed builds a failure result for outcome o.
func Failed(o Outcome, err error) Result {
	if err == nil {
		err = o.Err()
	}
	return Result{Outcome: o, Err: err}
}

// Solver is a pluggable NLP backend. Solve must honour ctx: once it is done
// the backend should return promptly; whatever it returns after the
// deadline is discarded by the Driver.
type Solver interface {
	Solve(ctx context.Context, p *nlp.Problem, initial []float64) Result
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, p *nlp.Problem, initial []float64) Result

func (f SolverFunc) Solve(ctx context.Context, p *nlp.Problem, initial []float64) Result {
	return f(ctx, p, initial)
}

// Settings tune the iterative backends.
type Settings struct {
	MaxOuter      int     // outer (multiplier) iterations
	MaxInner      int     // inner iterations per outer iteration
	Tolerance     float64 // constraint violation accepted as feasible
	GradTolerance float64 // inner stationarity threshold
	Penalty       float64 // initial penalty μ
	PenaltyGrowth float64 // μ multiplier when violation stalls
	MaxPenalty    float64
}

func DefaultSettings() Settings {
	return Settings{
		MaxOuter:      30,
		MaxInner:      200,
		Tolerance:     1e-4,
		GradTolerance: 1e-6,
		Penalty:       10,
		PenaltyGrowth: 10,
		MaxPenalty:    1e8,
	}
}

// withDefaults fills zero fields from DefaultSettings.
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxOuter <= 0 {
		s.MaxOuter = d.MaxOuter
	}
	if s.MaxInner <= 0 {
		s.MaxInner = d.MaxInner
	}
	if s.Tolerance <= 0 {
		s.Tolerance = d.Tolerance
	}
	if s.GradTolerance <= 0 {
		s.GradTolerance = d.GradTolerance
	}
	if s.Penalty <= 0 {
		s.Penalty = d.Penalty
	}
	if s.PenaltyGrowth <= 1 {
		s.PenaltyGrowth = d.PenaltyGrowth
	}
	if s.MaxPenalty < s.Penalty {
		s.MaxPenalty = d.MaxPenalty
	}
	return s
}

// Classify assigns the outcome for a finished iterate z: Optimal when the
// method converged and z is feasible, SuboptimalFeasible when it stopped
// early but z is feasible, Infeasible otherwise.
func Classify(p *nlp.Problem, z []float64, converged bool, tol float64) (Outcome, float64) {
	v := p.Violation(z)
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return SolverError, v
	case v > tol:
		return Infeasible, v
	case converged:
		return Optimal, v
	default:
		return SuboptimalFeasible, v
	}
}

//go:build nlopt

package nloptsolver

import (
	"context"
	"math"
	"time"

	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/nlp"
	"github.com/san-kum/nmpc/internal/solver"
)

// Available reports whether this build links NLopt.
const Available = true

// SLSQP runs NLopt's sequential least-squares QP on the full
// multiple-shooting problem, using the analytic objective gradient and the
// dense equality Jacobian.
type SLSQP struct {
	settings solver.Settings
	logger   *zap.SugaredLogger
}

func New(settings solver.Settings, logger *zap.SugaredLogger) (solver.Solver, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	d := solver.DefaultSettings()
	if settings.Tolerance <= 0 {
		settings.Tolerance = d.Tolerance
	}
	if settings.MaxOuter <= 0 {
		settings.MaxOuter = d.MaxOuter
	}
	if settings.MaxInner <= 0 {
		settings.MaxInner = d.MaxInner
	}
	return &SLSQP{settings: settings, logger: logger}, nil
}

func (s *SLSQP) Solve(ctx context.Context, p *nlp.Problem, initial []float64) solver.Result {
	start := time.Now()
	n := p.NumVars()
	if len(initial) != n {
		return solver.Failed(solver.SolverError, errors.Wrapf(dynamo.ErrDimensionMismatch, "initial guess has %d entries, want %d", len(initial), n))
	}
	if !p.InitialFeasible() {
		return solver.Failed(solver.Infeasible, errors.Wrap(dynamo.ErrInfeasible, "current state violates the state bounds"))
	}

	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, uint(n))
	if err != nil {
		return solver.Failed(solver.SolverError, errors.Wrap(err, "nlopt creation error"))
	}
	defer opt.Destroy()

	evals := 0
	objective := func(x, gradient []float64) float64 {
		evals++
		if ctx.Err() != nil {
			if err := opt.ForceStop(); err != nil {
				s.logger.Errorw("forcestop error", "error", err)
			}
		}
		if len(gradient) > 0 {
			p.Gradient(gradient, x)
		}
		return p.Objective(x)
	}
	// The Jacobian gradient is m×n in row-major order, the same layout as
	// a freshly allocated mat.Dense.
	equalities := func(result, x, gradient []float64) {
		p.Equalities(result, x)
		if len(gradient) > 0 {
			copy(gradient, p.EqualityJacobian(x).RawMatrix().Data)
		}
	}

	tol := make([]float64, p.NumEqualities())
	for i := range tol {
		tol[i] = s.settings.Tolerance / 10
	}
	lower, upper := p.Bounds()
	err = multierr.Combine(
		opt.SetLowerBounds(lower),
		opt.SetUpperBounds(upper),
		opt.SetMinObjective(objective),
		opt.AddEqualityMConstraint(equalities, tol),
		opt.SetFtolRel(1e-10),
		opt.SetXtolRel(1e-8),
		opt.SetMaxEval(s.settings.MaxOuter*s.settings.MaxInner),
	)
	if err != nil {
		return solver.Failed(solver.SolverError, errors.Wrap(err, "nlopt setup"))
	}

	z := make([]float64, n)
	for i := range z {
		z[i] = math.Max(lower[i], math.Min(upper[i], initial[i]))
	}
	x, _, nloptErr := opt.Optimize(z)
	status := opt.LastStatus()
	s.logger.Debugw("slsqp finished", "status", status, "evaluations", evals)

	if ctx.Err() != nil {
		r := solver.Failed(solver.TimedOut, errors.Wrap(dynamo.ErrTimedOut, ctx.Err().Error()))
		r.Iterations = evals
		return r
	}
	if nloptErr != nil || x == nil {
		return solver.Failed(solver.SolverError, errors.Wrapf(dynamo.ErrSolver, "nlopt stopped with %s", status))
	}

	converged := status == "SUCCESS" || status == "FTOL_REACHED" || status == "XTOL_REACHED" || status == "STOPVAL_REACHED"
	outcome, violation := solver.Classify(p, x, converged, s.settings.Tolerance)
	r := solver.Result{
		Outcome:    outcome,
		Violation:  violation,
		Iterations: evals,
		Elapsed:    time.Since(start),
	}
	if outcome.OK() {
		r.Z = x
		r.Trajectory = p.Unpack(x)
		r.Objective = p.Objective(x)
	} else {
		r.Err = errors.Wrapf(outcome.Err(), "nlopt %s with violation %.3g", status, violation)
	}
	return r
}

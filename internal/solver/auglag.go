package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/nlp"
)

// AugLag solves the multiple-shooting NLP with a Powell-Hestenes-Rockafellar
// augmented Lagrangian. Each outer iteration minimises the smooth
// unconstrained Lagrangian with gonum's L-BFGS, then updates the equality
// and bound multipliers; the penalty grows whenever the constraint
// violation fails to drop by a factor of four.
type AugLag struct {
	settings Settings
	logger   *zap.SugaredLogger
}

func NewAugLag(settings Settings, logger *zap.SugaredLogger) *AugLag {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AugLag{settings: settings.withDefaults(), logger: logger}
}

func (a *AugLag) Settings() Settings {
	return a.settings
}

func (a *AugLag) Solve(ctx context.Context, p *nlp.Problem, initial []float64) Result {
	start := time.Now()
	s := a.settings

	n := p.NumVars()
	if len(initial) != n {
		return Failed(SolverError, fmt.Errorf("%w: initial guess has %d entries, want %d", dynamo.ErrDimensionMismatch, len(initial), n))
	}
	if !p.InitialFeasible() {
		return Failed(Infeasible, errors.Wrap(dynamo.ErrInfeasible, "current state violates the state bounds"))
	}

	lower, upper := p.Bounds()
	z := make([]float64, n)
	for i := range z {
		z[i] = math.Max(lower[i], math.Min(upper[i], initial[i]))
	}
	if !isFinite(z) {
		return Failed(SolverError, errors.Wrap(dynamo.ErrSolver, "initial guess is not finite"))
	}

	al := newLagrangian(p, lower, upper, s.Penalty)
	problem := optimize.Problem{
		Func: al.value,
		Grad: al.gradient,
		Status: func() (optimize.Status, error) {
			if ctx.Err() != nil {
				return optimize.RuntimeLimit, nil
			}
			return optimize.NotTerminated, nil
		},
	}
	inner := &optimize.Settings{
		GradientThreshold: s.GradTolerance,
		MajorIterations:   s.MaxInner,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 25,
		},
	}

	converged := false
	iterations := 0
	prev := math.Inf(1)
	for outer := 0; outer < s.MaxOuter; outer++ {
		if err := ctx.Err(); err != nil {
			return timedOut(err, iterations, start)
		}

		res, err := optimize.Minimize(problem, z, inner, &optimize.LBFGS{})
		if res == nil {
			return Failed(SolverError, errors.Wrap(err, "inner minimisation"))
		}
		iterations += res.Stats.MajorIterations
		if !isFinite(res.X) {
			return Failed(SolverError, errors.Wrapf(dynamo.ErrSolver, "non-finite iterate after outer iteration %d", outer))
		}
		copy(z, res.X)

		if err := ctx.Err(); err != nil {
			return timedOut(err, iterations, start)
		}

		violation := p.Violation(z)
		if math.IsNaN(violation) || math.IsInf(violation, 0) {
			return Failed(SolverError, errors.Wrap(dynamo.ErrSolver, "non-finite constraint residual"))
		}
		innerDone := err == nil && !res.Status.Early()
		a.logger.Debugw("auglag iteration",
			"outer", outer,
			"status", res.Status,
			"violation", violation,
			"penalty", al.mu,
			"objective", p.Objective(z),
		)
		if violation <= s.Tolerance && innerDone {
			converged = true
			break
		}

		al.updateMultipliers(z)
		if violation > 0.25*prev {
			al.mu = math.Min(al.mu*s.PenaltyGrowth, s.MaxPenalty)
		}
		prev = violation
	}

	outcome, violation := Classify(p, z, converged, s.Tolerance)
	r := Result{
		Outcome:    outcome,
		Violation:  violation,
		Iterations: iterations,
		Elapsed:    time.Since(start),
	}
	if outcome.OK() {
		r.Z = z
		r.Trajectory = p.Unpack(z)
		r.Objective = p.Objective(z)
	} else {
		r.Err = errors.Wrapf(outcome.Err(), "violation %.3g after %d iterations", violation, iterations)
	}
	return r
}

func timedOut(err error, iterations int, start time.Time) Result {
	r := Failed(TimedOut, errors.Wrap(dynamo.ErrTimedOut, err.Error()))
	r.Iterations = iterations
	r.Elapsed = time.Since(start)
	return r
}

func isFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// lagrangian is L(z) = f(z) + λᵀc(z) + μ/2‖c(z)‖² plus a PHR term
// (max(0, ν+μg)² - ν²)/(2μ) for every finite bound g(z) ≤ 0.
type lagrangian struct {
	p            *nlp.Problem
	lower, upper []float64
	lambda       []float64
	nuLower      []float64
	nuUpper      []float64
	mu           float64

	c, w, vjp []float64
}

func newLagrangian(p *nlp.Problem, lower, upper []float64, mu float64) *lagrangian {
	m, n := p.NumEqualities(), p.NumVars()
	return &lagrangian{
		p:       p,
		lower:   lower,
		upper:   upper,
		lambda:  make([]float64, m),
		nuLower: make([]float64, n),
		nuUpper: make([]float64, n),
		mu:      mu,
		c:       make([]float64, m),
		w:       make([]float64, m),
		vjp:     make([]float64, n),
	}
}

func (l *lagrangian) value(z []float64) float64 {
	f := l.p.Objective(z)
	l.p.Equalities(l.c, z)
	for i, ci := range l.c {
		f += l.lambda[i]*ci + 0.5*l.mu*ci*ci
	}
	for i, zi := range z {
		if !math.IsInf(l.lower[i], -1) {
			f += l.phr(l.nuLower[i], l.lower[i]-zi)
		}
		if !math.IsInf(l.upper[i], 1) {
			f += l.phr(l.nuUpper[i], zi-l.upper[i])
		}
	}
	return f
}

func (l *lagrangian) gradient(grad, z []float64) {
	l.p.Gradient(grad, z)
	l.p.Equalities(l.c, z)
	for i, ci := range l.c {
		l.w[i] = l.lambda[i] + l.mu*ci
	}
	l.p.EqualityVJP(l.vjp, z, l.w)
	floats.Add(grad, l.vjp)
	for i, zi := range z {
		if !math.IsInf(l.lower[i], -1) {
			grad[i] -= math.Max(0, l.nuLower[i]+l.mu*(l.lower[i]-zi))
		}
		if !math.IsInf(l.upper[i], 1) {
			grad[i] += math.Max(0, l.nuUpper[i]+l.mu*(zi-l.upper[i]))
		}
	}
}

func (l *lagrangian) phr(nu, g float64) float64 {
	s := math.Max(0, nu+l.mu*g)
	return (s*s - nu*nu) / (2 * l.mu)
}

func (l *lagrangian) updateMultipliers(z []float64) {
	l.p.Equalities(l.c, z)
	for i, ci := range l.c {
		l.lambda[i] += l.mu * ci
	}
	for i, zi := range z {
		if !math.IsInf(l.lower[i], -1) {
			l.nuLower[i] = math.Max(0, l.nuLower[i]+l.mu*(l.lower[i]-zi))
		}
		if !math.IsInf(l.upper[i], 1) {
			l.nuUpper[i] = math.Max(0, l.nuUpper[i]+l.mu*(zi-l.upper[i]))
		}
	}
}

package sim

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/san-kum/nmpc/internal/nlp"
	"github.com/san-kum/nmpc/internal/solver"
)

// WithLatency charges d of simulated time to every solve before handing it
// to backend. Advancing the mock fires any solve deadline that falls inside
// the window, so a latency above the budget produces timeouts.
func WithLatency(backend solver.Solver, mock *clock.Mock, d time.Duration) solver.Solver {
	return solver.SolverFunc(func(ctx context.Context, p *nlp.Problem, initial []float64) solver.Result {
		mock.Add(d)
		return backend.Solve(ctx, p, initial)
	})
}

package sim

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Factory builds an independent simulator and scenario for run i. Each run
// needs its own pipeline, buffer and clock.
type Factory func(i int) (*Simulator, Config, error)

// Ensemble runs several scenarios concurrently.
type Ensemble struct {
	factory Factory
	numRuns int
	workers int
}

// NewEnsemble runs numRuns scenarios with at most workers in flight; workers
// below one means unlimited.
func NewEnsemble(factory Factory, numRuns, workers int) *Ensemble {
	return &Ensemble{factory: factory, numRuns: numRuns, workers: workers}
}

// Run returns the results in run order. The first error cancels the runs
// still in flight.
func (e *Ensemble) Run(ctx context.Context) ([]*Result, error) {
	results := make([]*Result, e.numRuns)

	g, ctx := errgroup.WithContext(ctx)
	if e.workers > 0 {
		g.SetLimit(e.workers)
	}
	for i := 0; i < e.numRuns; i++ {
		i := i
		g.Go(func() error {
			s, cfg, err := e.factory(i)
			if err != nil {
				return err
			}
			results[i], err = s.Run(ctx, cfg)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

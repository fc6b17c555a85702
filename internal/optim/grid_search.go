// Package optim tunes controller weights by simulation.
package optim

import (
	"context"
	"math"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/nmpc/internal/experiment"
	"github.com/san-kum/nmpc/internal/sim"
)

// Objective scores a finished run; lower is better.
type Objective func(*sim.Result) float64

// MetricObjective scores a run by one of its metrics. Runs that never reach
// the goal score +Inf.
func MetricObjective(name string) Objective {
	return func(r *sim.Result) float64 {
		if !r.Reached {
			return math.Inf(1)
		}
		v, ok := r.Metrics[name]
		if !ok || math.IsNaN(v) {
			return math.Inf(1)
		}
		return v
	}
}

// TimeToGoal scores a run by the simulated time it took to reach the goal.
func TimeToGoal(r *sim.Result) float64 {
	if !r.Reached || len(r.Times) == 0 {
		return math.Inf(1)
	}
	return r.Times[len(r.Times)-1]
}

// Candidate is one evaluated point of the grid.
type Candidate struct {
	Params map[string]float64
	Score  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
}

func NewGridSearch(params []string, ranges [][]float64, workers int) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, errors.Errorf("%d parameter names for %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, errors.Errorf("parameter %s has no values", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges, workers: workers}, nil
}

// Size is the number of grid points.
func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search evaluates every grid point and returns the candidates sorted by
// score, best first. A point whose experiment cannot be built or run is
// kept with its error and a score of +Inf.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	objective Objective,
) ([]Candidate, error) {
	points := make([]map[string]float64, 0, g.Size())
	g.enumerate(0, make(map[string]float64), &points)

	candidates := make([]Candidate, len(points))

	eg, ctx := errgroup.WithContext(ctx)
	if g.workers > 0 {
		eg.SetLimit(g.workers)
	}
	for i, params := range points {
		i, params := i, params
		eg.Go(func() error {
			c := Candidate{Params: params, Score: math.Inf(1)}
			exp, err := buildExperiment(params)
			if err == nil {
				var res *sim.Result
				res, err = exp.Run(ctx)
				if err == nil {
					c.Score = objective(res)
				}
			}
			c.Err = err
			candidates[i] = c
			return ctx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score < candidates[j].Score })
	return candidates, nil
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.enumerate(depth+1, newParams, out)
	}
}

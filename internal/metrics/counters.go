package metrics

import (
	"go.uber.org/atomic"
)

// Counters are the controller's running totals. They are written by the
// control loop and may be read from any goroutine.
type Counters struct {
	Cycles      atomic.Uint64
	Optimal     atomic.Uint64
	Suboptimal  atomic.Uint64
	Infeasible  atomic.Uint64
	SolverError atomic.Uint64
	TimedOut    atomic.Uint64
	Stale       atomic.Uint64
	Fallbacks   atomic.Uint64
	ForcedStops atomic.Uint64
	GoalReached atomic.Uint64
	WarmStarts  atomic.Uint64
	Skipped     atomic.Uint64
	Published   atomic.Uint64
	PublishErrs atomic.Uint64
}

// CounterSnapshot is a plain copy of Counters.
type CounterSnapshot struct {
	Cycles      uint64 `json:"cycles"`
	Optimal     uint64 `json:"optimal"`
	Suboptimal  uint64 `json:"suboptimal_feasible"`
	Infeasible  uint64 `json:"infeasible"`
	SolverError uint64 `json:"solver_error"`
	TimedOut    uint64 `json:"timed_out"`
	Stale       uint64 `json:"input_stale"`
	Fallbacks   uint64 `json:"fallbacks"`
	ForcedStops uint64 `json:"forced_stops"`
	GoalReached uint64 `json:"goal_reached"`
	WarmStarts  uint64 `json:"warm_starts"`
	Skipped     uint64 `json:"skipped"`
	Published   uint64 `json:"published"`
	PublishErrs uint64 `json:"publish_errors"`
}

func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Cycles:      c.Cycles.Load(),
		Optimal:     c.Optimal.Load(),
		Suboptimal:  c.Suboptimal.Load(),
		Infeasible:  c.Infeasible.Load(),
		SolverError: c.SolverError.Load(),
		TimedOut:    c.TimedOut.Load(),
		Stale:       c.Stale.Load(),
		Fallbacks:   c.Fallbacks.Load(),
		ForcedStops: c.ForcedStops.Load(),
		GoalReached: c.GoalReached.Load(),
		WarmStarts:  c.WarmStarts.Load(),
		Skipped:     c.Skipped.Load(),
		Published:   c.Published.Load(),
		PublishErrs: c.PublishErrs.Load(),
	}
}

// Solves is the number of cycles that reached the solver.
func (s CounterSnapshot) Solves() uint64 {
	return s.Optimal + s.Suboptimal + s.Infeasible + s.SolverError + s.TimedOut
}

// Failures is the number of solves without a usable trajectory.
func (s CounterSnapshot) Failures() uint64 {
	return s.Infeasible + s.SolverError + s.TimedOut
}

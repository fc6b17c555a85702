package dynamo

import (
	"errors"
	"fmt"
)

// Failure classes recognised by the control loop.
var (
	// ErrConfigInvalid indicates a configuration rejected at startup.
	ErrConfigInvalid = errors.New("dynamo: invalid configuration")

	// ErrInputStale indicates no fresh state arrived within the staleness window.
	ErrInputStale = errors.New("dynamo: input stale")

	// ErrInfeasible indicates the optimal control problem has no feasible point.
	ErrInfeasible = errors.New("dynamo: problem infeasible")

	// ErrSolver indicates a numerical failure inside the solver.
	ErrSolver = errors.New("dynamo: solver error")

	// ErrTimedOut indicates the solve exceeded its wall-clock budget.
	ErrTimedOut = errors.New("dynamo: solve timed out")

	// ErrInvalidState indicates a state vector with NaN or Inf components.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrDimensionMismatch indicates mismatched state/control dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")
)

// CycleError wraps a failure with the control cycle it occurred in.
type CycleError struct {
	Cycle   uint64
	Time    float64
	Wrapped error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle %d (t=%.4f): %v", e.Cycle, e.Time, e.Wrapped)
}

func (e *CycleError) Unwrap() error {
	return e.Wrapped
}

package sim

import (
	"fmt"
	"time"

	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/metrics"
)

// Config is one closed-loop scenario.
type Config struct {
	Period   time.Duration // control period, simulated
	Duration float64       // simulated seconds
	PlantDt  float64       // plant integration step; zero means one step per period

	Start dynamo.State
	Goal  dynamo.Pose
	Path  dynamo.Path

	// StopAtGoal ends the run on the first cycle that reports the goal
	// reached.
	StopAtGoal bool
}

func (c Config) validate() error {
	if c.Period <= 0 {
		return fmt.Errorf("%w: period must be positive, got %v", dynamo.ErrConfigInvalid, c.Period)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %f", dynamo.ErrConfigInvalid, c.Duration)
	}
	if c.PlantDt < 0 {
		return fmt.Errorf("%w: plant dt must not be negative", dynamo.ErrConfigInvalid)
	}
	if len(c.Start) < 3 || !c.Start.IsValid() {
		return fmt.Errorf("%w: start %v", dynamo.ErrInvalidState, c.Start)
	}
	return nil
}

// Result is the recorded trajectory of a run. Entry i of Controls, Outcomes
// and Modes belongs to the cycle that started at Times[i] from States[i];
// States has one more entry than Controls.
type Result struct {
	Times    []float64
	States   []dynamo.State
	Controls []dynamo.Control
	Outcomes []string
	Modes    []string

	Metrics  map[string]float64
	Counters metrics.CounterSnapshot
	Reached  bool
	Errors   []error
}

// Final is the last recorded state.
func (r *Result) Final() dynamo.State {
	if len(r.States) == 0 {
		return nil
	}
	return r.States[len(r.States)-1]
}

package governor

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/nmpc/internal/dynamics"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/solver"
)

type Config struct {
	Policy      Policy
	MaxFailures int             // K, consecutive failures before Faulted
	Limits      dynamics.Bounds // hard actuation bounds
	PosTol      float64         // goal position tolerance
	HeadingTol  float64         // goal heading tolerance
}

func (c Config) Validate() error {
	if c.MaxFailures < 1 {
		return fmt.Errorf("%w: max failures must be at least 1, got %d", dynamo.ErrConfigInvalid, c.MaxFailures)
	}
	if c.PosTol <= 0 || c.HeadingTol <= 0 {
		return fmt.Errorf("%w: goal tolerances must be positive", dynamo.ErrConfigInvalid)
	}
	if c.Limits.Dim() == 0 {
		return fmt.Errorf("%w: actuation limits are required", dynamo.ErrConfigInvalid)
	}
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	if !c.Limits.AdmitsZero() {
		return fmt.Errorf("%w: actuation limits %v..%v exclude the stop command", dynamo.ErrConfigInvalid, c.Limits.Lower, c.Limits.Upper)
	}
	return nil
}

// Decision is the command for one cycle and why it was chosen.
type Decision struct {
	Command    dynamo.Control
	Mode       Mode
	Fallback   bool  // command came from the fault policy
	ForcedStop bool  // this cycle hit the K-th consecutive failure
	Reason     error // failure that triggered the fallback, if any
}

// Governor turns solve outcomes into safe commands. It is not safe for
// concurrent use; the control loop owns it.
type Governor struct {
	cfg    Config
	logger *zap.SugaredLogger

	mode     Mode
	failures int
	lastGood dynamo.Control
}

func New(cfg Config, logger *zap.SugaredLogger) (*Governor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Governor{cfg: cfg, logger: logger}, nil
}

func (g *Governor) Mode() Mode     { return g.mode }
func (g *Governor) Failures() int  { return g.failures }
func (g *Governor) Config() Config { return g.cfg }

// LastGood is the most recent command produced by a successful solve.
func (g *Governor) LastGood() dynamo.Control { return g.lastGood.Clone() }

func (g *Governor) stop() dynamo.Control {
	return make(dynamo.Control, g.cfg.Limits.Dim())
}

func (g *Governor) setMode(m Mode) {
	if m == g.mode {
		return
	}
	g.logger.Infow("mode change", "from", g.mode, "to", m)
	g.mode = m
}

// Idle is the decision while no goal is known.
func (g *Governor) Idle() Decision {
	g.setMode(Idle)
	g.failures = 0
	g.lastGood = nil
	return Decision{Command: g.stop(), Mode: Idle}
}

// NewInputs is called when the goal or path changes. It leaves
// GoalReached, Faulted and Idle for Tracking and clears the failure count.
func (g *Governor) NewInputs() {
	g.failures = 0
	g.setMode(Tracking)
}

// AtGoal reports whether x is within both goal tolerances.
func (g *Governor) AtGoal(x dynamo.State, goal dynamo.Pose) bool {
	p := x.Pose()
	if p.Distance(goal) >= g.cfg.PosTol {
		return false
	}
	return math.Abs(dynamo.WrapAngle(p.Theta-goal.Theta)) < g.cfg.HeadingTol
}

// GoalReached emits a stop and holds GoalReached until NewInputs.
func (g *Governor) GoalReached() Decision {
	if g.mode != GoalReached {
		g.logger.Infow("goal reached")
	}
	g.setMode(GoalReached)
	g.failures = 0
	g.lastGood = nil
	return Decision{Command: g.stop(), Mode: GoalReached}
}

// Accept extracts u_0 from a solve result. A successful result with a
// non-finite first control is handled as a failure.
func (g *Governor) Accept(r solver.Result) Decision {
	if !r.Outcome.OK() {
		reason := r.Err
		if reason == nil {
			reason = r.Outcome.Err()
		}
		return g.Fail(reason)
	}

	u := r.Trajectory.FirstControl()
	if len(u) != g.cfg.Limits.Dim() || !u.IsValid() {
		return g.Fail(errors.Wrapf(dynamo.ErrSolver, "unusable first control %v", u))
	}
	cmd := dynamo.Control(g.cfg.Limits.Clamp(u))

	g.failures = 0
	g.lastGood = cmd.Clone()
	g.setMode(Tracking)
	return Decision{Command: cmd, Mode: Tracking}
}

// Fail records one failure cycle and returns the fallback command.
func (g *Governor) Fail(reason error) Decision {
	if g.mode == GoalReached || g.mode == Idle {
		// Already commanding a stop.
		return Decision{Command: g.stop(), Mode: g.mode, Fallback: true, Reason: reason}
	}

	g.failures++
	k := g.cfg.MaxFailures
	if g.failures >= k {
		forced := g.failures == k
		if forced {
			g.logger.Errorw("consecutive failure limit reached, stopping", "failures", g.failures, "reason", reason)
		}
		g.setMode(Faulted)
		g.lastGood = nil
		return Decision{Command: g.stop(), Mode: Faulted, Fallback: true, ForcedStop: forced, Reason: reason}
	}

	cmd := g.cfg.Policy.fallback(g.lastGood, g.failures, k)
	if cmd == nil {
		cmd = g.stop()
	}
	g.logger.Warnw("solve failed, applying fallback", "policy", g.cfg.Policy, "failures", g.failures, "reason", reason)
	return Decision{Command: cmd, Mode: g.mode, Fallback: true, Reason: reason}
}

package governor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/nmpc/internal/dynamics"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/nlp"
	"github.com/san-kum/nmpc/internal/solver"
)

// Whatever the solver returns, the emitted command stays inside the hard
// actuation bounds.
func TestEmittedCommandAlwaysWithinBounds(t *testing.T) {
	limits := dynamics.Bounds{Lower: []float64{-1, -1.5}, Upper: []float64{1, 1.5}}
	rng := rand.New(rand.NewSource(7))

	for _, policy := range []Policy{PolicyStop, PolicyDecay, PolicyHold} {
		g, err := New(Config{Policy: policy, MaxFailures: 3, Limits: limits, PosTol: 0.1, HeadingTol: 0.05}, nil)
		if err != nil {
			t.Fatal(err)
		}
		g.NewInputs()

		for i := 0; i < 2000; i++ {
			var r solver.Result
			switch rng.Intn(4) {
			case 0:
				r = solver.Failed(solver.TimedOut, nil)
			case 1:
				u := dynamo.Control{math.NaN(), rng.NormFloat64()}
				r = solver.Result{Outcome: solver.Optimal, Trajectory: nlp.Trajectory{Controls: []dynamo.Control{u}}}
			default:
				u := dynamo.Control{rng.NormFloat64() * 5, rng.NormFloat64() * 5}
				r = solver.Result{Outcome: solver.SuboptimalFeasible, Trajectory: nlp.Trajectory{Controls: []dynamo.Control{u}}}
			}

			d := g.Accept(r)
			if !d.Command.IsValid() || !limits.Contains(d.Command, 0) {
				t.Fatalf("%s: command %v escaped the bounds", policy, d.Command)
			}
		}
	}
}

func TestPolicyText(t *testing.T) {
	for _, p := range []Policy{PolicyStop, PolicyDecay, PolicyHold} {
		b, err := p.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got Policy
		if err := got.UnmarshalText(b); err != nil {
			t.Fatal(err)
		}
		if got != p {
			t.Errorf("expected %s, got %s", p, got)
		}
	}
}

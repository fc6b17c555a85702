//go:build nlopt

package nloptsolver

import (
	"context"
	"math"
	"testing"

	"github.com/san-kum/nmpc/internal/dynamics"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/integrators"
	"github.com/san-kum/nmpc/internal/nlp"
	"github.com/san-kum/nmpc/internal/physics"
	"github.com/san-kum/nmpc/internal/reference"
	"github.com/san-kum/nmpc/internal/solver"
)

func TestSLSQPStraightLine(t *testing.T) {
	control := dynamics.Bounds{Lower: []float64{-1, -1.5}, Upper: []float64{1, 1.5}}
	m, err := dynamics.New("unicycle", physics.NewUnicycle(), integrators.NewEuler(), 0.1, control, nil)
	if err != nil {
		t.Fatal(err)
	}
	goal := dynamo.Pose{X: 5}
	x0 := dynamo.State{0, 0, 0}
	ref := reference.Generate(x0, dynamo.StraightPath(dynamo.Pose{}, goal, 20), goal, reference.Params{Horizon: 10, Dt: 0.1, Speed: 0.5})
	p, err := nlp.Build(m, x0, ref, nlp.Weights{
		Q:  []float64{1, 1, 0.5},
		Qf: []float64{5, 5, 1},
		R:  []float64{0.05, 0.05},
		S:  []float64{0.1, 0.1},
	})
	if err != nil {
		t.Fatal(err)
	}

	s, err := New(solver.DefaultSettings(), nil)
	if err != nil {
		t.Fatal(err)
	}
	r := s.Solve(context.Background(), p, p.StaticGuess())
	if !r.Outcome.OK() {
		t.Fatalf("expected a usable solution, got %s: %v", r.Outcome, r.Err)
	}
	u := r.Trajectory.FirstControl()
	if u[0] < 0.3 || u[0] > 0.55 || math.Abs(u[1]) > 1e-3 {
		t.Errorf("first control %v, expected forward motion near 0.5 m/s", u)
	}
}

package solver

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/san-kum/nmpc/internal/dynamics"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/integrators"
	"github.com/san-kum/nmpc/internal/nlp"
	"github.com/san-kum/nmpc/internal/physics"
	"github.com/san-kum/nmpc/internal/reference"
)

func testWeights() nlp.Weights {
	return nlp.Weights{
		Q:  []float64{1, 1, 0.5},
		Qf: []float64{5, 5, 1},
		R:  []float64{0.05, 0.05},
		S:  []float64{0.1, 0.1},
	}
}

func testModel(t *testing.T, state *dynamics.Bounds) *dynamics.Model {
	t.Helper()
	control := dynamics.Bounds{Lower: []float64{-1, -1.5}, Upper: []float64{1, 1.5}}
	m, err := dynamics.New("unicycle", physics.NewUnicycle(), integrators.NewEuler(), 0.1, control, state)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// straightProblem is the robot at the origin facing +x with a 20-waypoint
// line to (5, 0).
func straightProblem(t *testing.T, n int) *nlp.Problem {
	t.Helper()
	goal := dynamo.Pose{X: 5}
	x0 := dynamo.State{0, 0, 0}
	ref := reference.Generate(x0, dynamo.StraightPath(dynamo.Pose{}, goal, 20), goal, reference.Params{Horizon: n, Dt: 0.1, Speed: 0.5})
	p, err := nlp.Build(testModel(t, nil), x0, ref, testWeights())
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestAugLagStraightLine(t *testing.T) {
	p := straightProblem(t, 10)
	s := NewAugLag(DefaultSettings(), zaptest.NewLogger(t).Sugar())

	r := s.Solve(context.Background(), p, p.StaticGuess())
	if !r.Outcome.OK() {
		t.Fatalf("expected a usable solution, got %s: %v", r.Outcome, r.Err)
	}
	if r.Violation > DefaultSettings().Tolerance {
		t.Errorf("violation %.3g above tolerance", r.Violation)
	}
	if len(r.Trajectory.States) != 11 || len(r.Trajectory.Controls) != 10 {
		t.Fatalf("trajectory shape %d/%d", len(r.Trajectory.States), len(r.Trajectory.Controls))
	}

	u := r.Trajectory.FirstControl()
	if u[0] < 0.3 || u[0] > 0.55 {
		t.Errorf("first linear velocity %.4f, expected close to 0.5", u[0])
	}
	if math.Abs(u[1]) > 1e-3 {
		t.Errorf("first angular velocity %.4f, expected ~0", u[1])
	}
	for i, x := range r.Trajectory.States[0] {
		if math.Abs(x) > 1e-3 {
			t.Errorf("x_0[%d] = %.5f, expected to match the current state", i, x)
		}
	}
}

func TestAugLagRespectsControlBounds(t *testing.T) {
	// A goal behind and to the side pushes the controls onto their limits.
	goal := dynamo.Pose{X: -3, Y: 3}
	x0 := dynamo.State{0, 0, 0}
	ref := reference.Generate(x0, nil, goal, reference.Params{Horizon: 8, Dt: 0.1, Speed: 0.5})
	p, err := nlp.Build(testModel(t, nil), x0, ref, testWeights())
	if err != nil {
		t.Fatal(err)
	}

	r := NewAugLag(DefaultSettings(), nil).Solve(context.Background(), p, p.StaticGuess())
	if !r.Outcome.OK() {
		t.Fatalf("expected a usable solution, got %s: %v", r.Outcome, r.Err)
	}
	for k, u := range r.Trajectory.Controls {
		if u[0] < -1-1e-3 || u[0] > 1+1e-3 || u[1] < -1.5-1e-3 || u[1] > 1.5+1e-3 {
			t.Errorf("u_%d = %v outside the actuation box", k, u)
		}
	}
}

func TestAugLagInfeasibleInitialState(t *testing.T) {
	state := &dynamics.Bounds{Lower: []float64{0, 0, -math.Pi}, Upper: []float64{10, 10, math.Pi}}
	x0 := dynamo.State{-1, 5, 0}
	ref := reference.Generate(x0, nil, dynamo.Pose{X: 5, Y: 5}, reference.Params{Horizon: 5, Dt: 0.1, Speed: 0.5})
	p, err := nlp.Build(testModel(t, state), x0, ref, testWeights())
	if err != nil {
		t.Fatal(err)
	}

	r := NewAugLag(DefaultSettings(), nil).Solve(context.Background(), p, p.StaticGuess())
	if r.Outcome != Infeasible {
		t.Fatalf("expected infeasible, got %s", r.Outcome)
	}
	if !errors.Is(r.Err, dynamo.ErrInfeasible) {
		t.Errorf("expected ErrInfeasible, got %v", r.Err)
	}
	if r.Z != nil {
		t.Error("a failed solve must not carry a trajectory")
	}
}

func TestAugLagRejectsWrongGuess(t *testing.T) {
	p := straightProblem(t, 5)
	r := NewAugLag(DefaultSettings(), nil).Solve(context.Background(), p, make([]float64, 3))
	if r.Outcome != SolverError {
		t.Fatalf("expected solver error, got %s", r.Outcome)
	}
	if !errors.Is(r.Err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", r.Err)
	}
}

func TestAugLagHonoursCancelledContext(t *testing.T) {
	p := straightProblem(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewAugLag(DefaultSettings(), nil).Solve(ctx, p, p.StaticGuess())
	if r.Outcome != TimedOut {
		t.Fatalf("expected timed out, got %s", r.Outcome)
	}
	if !errors.Is(r.Err, dynamo.ErrTimedOut) {
		t.Errorf("expected ErrTimedOut, got %v", r.Err)
	}
}

func TestClassify(t *testing.T) {
	p := straightProblem(t, 4)
	feasible := p.StaticGuess()
	broken := p.StaticGuess()
	broken[p.NumVars()-1] = 0.5 // a control that the static states do not follow

	nan := p.StaticGuess()
	nan[0] = math.NaN()

	tests := []struct {
		name      string
		z         []float64
		converged bool
		want      Outcome
	}{
		{"converged feasible", feasible, true, Optimal},
		{"stopped feasible", feasible, false, SuboptimalFeasible},
		{"infeasible", broken, true, Infeasible},
		{"nan", nan, true, SolverError},
	}
	for _, tt := range tests {
		got, _ := Classify(p, tt.z, tt.converged, 1e-6)
		if got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}
}

func TestOutcomeErr(t *testing.T) {
	tests := []struct {
		o    Outcome
		ok   bool
		want error
	}{
		{Optimal, true, nil},
		{SuboptimalFeasible, true, nil},
		{Infeasible, false, dynamo.ErrInfeasible},
		{SolverError, false, dynamo.ErrSolver},
		{TimedOut, false, dynamo.ErrTimedOut},
	}
	for _, tt := range tests {
		if tt.o.OK() != tt.ok {
			t.Errorf("%s: OK() = %v", tt.o, tt.o.OK())
		}
		if !errors.Is(tt.o.Err(), tt.want) {
			t.Errorf("%s: Err() = %v, want %v", tt.o, tt.o.Err(), tt.want)
		}
	}
}

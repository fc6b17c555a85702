package dynamo

import (
	"errors"
	"math"
	"testing"
)

func TestWrapAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{0.1 - 4*math.Pi, 0.1},
	}

	for _, tt := range tests {
		got := WrapAngle(tt.in)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("WrapAngle(%.4f) = %.6f, want %.6f", tt.in, got, tt.want)
		}
	}
}

func TestUnwrapNear(t *testing.T) {
	got := UnwrapNear(-3.0, 3.0)
	if math.Abs(got-(2*math.Pi-3.0)) > 1e-12 {
		t.Errorf("expected %.6f, got %.6f", 2*math.Pi-3.0, got)
	}
	if d := math.Abs(got - 3.0); d > math.Pi {
		t.Errorf("unwrapped angle %.4f is %.4f away from reference", got, d)
	}
}

func TestStraightPath(t *testing.T) {
	path := StraightPath(Pose{}, Pose{X: 5}, 20)
	if len(path) != 20 {
		t.Fatalf("expected 20 waypoints, got %d", len(path))
	}
	if path[19].X != 5 || path[0].X != 0 {
		t.Errorf("unexpected endpoints %v, %v", path[0], path[19])
	}
	if math.Abs(path.Length()-5) > 1e-12 {
		t.Errorf("expected length 5, got %f", path.Length())
	}
	if len(StraightPath(Pose{}, Pose{X: 1}, 0)) != 0 {
		t.Error("expected empty path for n=0")
	}
}

func TestStateValidity(t *testing.T) {
	if !(State{1, 2, 3}).IsValid() {
		t.Error("finite state reported invalid")
	}
	if (State{1, math.NaN(), 3}).IsValid() {
		t.Error("NaN state reported valid")
	}
	if (Control{math.Inf(1), 0}).IsValid() {
		t.Error("Inf control reported valid")
	}
}

func TestCycleErrorUnwrap(t *testing.T) {
	err := &CycleError{Cycle: 3, Time: 0.3, Wrapped: ErrInfeasible}
	if !errors.Is(err, ErrInfeasible) {
		t.Error("expected CycleError to unwrap to ErrInfeasible")
	}
}

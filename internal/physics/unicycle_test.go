package physics

import (
	"math"
	"testing"

	"github.com/san-kum/nmpc/internal/dynamo"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

func TestUnicycleDerive(t *testing.T) {
	m := NewUnicycle()

	tests := []struct {
		name string
		x    dynamo.State
		u    dynamo.Control
		want dynamo.State
	}{
		{"forward", dynamo.State{0, 0, 0}, dynamo.Control{1, 0}, dynamo.State{1, 0, 0}},
		{"facing up", dynamo.State{0, 0, math.Pi / 2}, dynamo.Control{2, 0}, dynamo.State{0, 2, 0}},
		{"spin in place", dynamo.State{1, 1, 0.3}, dynamo.Control{0, -0.5}, dynamo.State{0, 0, -0.5}},
	}

	for _, tt := range tests {
		got := m.Derive(tt.x, tt.u, 0)
		for i := range tt.want {
			if math.Abs(got[i]-tt.want[i]) > 1e-12 {
				t.Errorf("%s: component %d got %.6f, want %.6f", tt.name, i, got[i], tt.want[i])
			}
		}
	}
}

func TestJacobianMatchesFiniteDifferences(t *testing.T) {
	tests := []struct {
		name string
		sys  interface {
			dynamo.System
			dynamo.Linearizable
		}
		x dynamo.State
		u dynamo.Control
	}{
		{"unicycle", NewUnicycle(), dynamo.State{0.5, -1, 0.7}, dynamo.Control{0.8, 0.3}},
		{"unicycle scaled", &Unicycle{SpeedScale: 0.8}, dynamo.State{0, 0, -2.1}, dynamo.Control{-0.4, 1}},
		{"omni", NewOmni(), dynamo.State{1, 2, 3}, dynamo.Control{0.1, -0.2, 0.3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nx, nu := tt.sys.StateDim(), tt.sys.ControlDim()
			a, b := tt.sys.Jacobian(tt.x, tt.u)

			w := append(append([]float64{}, tt.x...), tt.u...)
			num := mat.NewDense(nx, nx+nu, nil)
			fd.Jacobian(num, func(y, w []float64) {
				copy(y, tt.sys.Derive(dynamo.State(w[:nx]), dynamo.Control(w[nx:]), 0))
			}, w, &fd.JacobianSettings{Formula: fd.Central})

			if !mat.EqualApprox(a, num.Slice(0, nx, 0, nx), 1e-6) {
				t.Errorf("A mismatch:\n%v\nvs\n%v", mat.Formatted(a), mat.Formatted(num.Slice(0, nx, 0, nx)))
			}
			if !mat.EqualApprox(b, num.Slice(0, nx, nx, nx+nu), 1e-6) {
				t.Errorf("B mismatch:\n%v\nvs\n%v", mat.Formatted(b), mat.Formatted(num.Slice(0, nx, nx, nx+nu)))
			}
		})
	}
}

func TestUnicycleParams(t *testing.T) {
	m := NewUnicycle()
	if err := m.SetParam("speed_scale", 0.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.GetParams()["speed_scale"] != 0.5 {
		t.Error("speed_scale not applied")
	}
	if err := m.SetParam("mass", 1); err == nil {
		t.Error("expected error for unknown param")
	}
}

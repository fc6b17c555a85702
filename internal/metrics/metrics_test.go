package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/nmpc/internal/dynamo"
)

func TestControlEffort(t *testing.T) {
	m := NewControlEffort()
	m.Observe(nil, dynamo.Control{0.5, -0.5}, 0)
	m.Observe(nil, dynamo.Control{0, 1}, 0.1)
	if got := m.Value(); math.Abs(got-1) > 1e-12 {
		t.Errorf("expected mean effort 1, got %f", got)
	}
	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero effort after reset")
	}
}

func TestControlRate(t *testing.T) {
	m := NewControlRate()
	m.Observe(nil, dynamo.Control{0, 0}, 0)
	if m.Value() != 0 {
		t.Error("a single sample has no rate")
	}
	m.Observe(nil, dynamo.Control{0.2, -0.1}, 0.1)
	m.Observe(nil, dynamo.Control{0.2, 0.1}, 0.2)
	if got := m.Value(); math.Abs(got-0.25) > 1e-12 {
		t.Errorf("expected mean rate 0.25, got %f", got)
	}
}

func TestDistanceToPath(t *testing.T) {
	path := dynamo.Path{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}}
	tests := []struct {
		x, y, want float64
	}{
		{1, 0, 0},
		{1, 0.5, 0.5},
		{3, 1, 1},
		{-1, 0, 1},
		{3, 3, math.Sqrt2},
	}
	for _, tt := range tests {
		if got := DistanceToPath(path, tt.x, tt.y); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("(%g, %g): expected %f, got %f", tt.x, tt.y, tt.want, got)
		}
	}
	if got := DistanceToPath(dynamo.Path{{X: 1, Y: 1}}, 4, 5); got != 5 {
		t.Errorf("single waypoint: expected 5, got %f", got)
	}
}

func TestTrackingError(t *testing.T) {
	m := NewTrackingError(dynamo.StraightPath(dynamo.Pose{}, dynamo.Pose{X: 10}, 11))
	m.Observe(dynamo.State{1, 0.3, 0}, nil, 0)
	m.Observe(dynamo.State{2, -0.4, 0}, nil, 0.1)
	if got := m.Value(); math.Abs(got-math.Sqrt(0.125)) > 1e-12 {
		t.Errorf("expected rms %f, got %f", math.Sqrt(0.125), got)
	}
	if m.Max() != 0.4 {
		t.Errorf("expected max 0.4, got %f", m.Max())
	}
}

func TestGoalDistance(t *testing.T) {
	m := NewGoalDistance(dynamo.Pose{X: 3, Y: 4})
	if !math.IsNaN(m.Value()) {
		t.Error("expected NaN before any sample")
	}
	m.Observe(dynamo.State{0, 0, 0}, nil, 0)
	m.Observe(dynamo.State{3, 0, 0}, nil, 0)
	if m.Value() != 4 {
		t.Errorf("expected latest distance 4, got %f", m.Value())
	}
}

func TestCounterSnapshot(t *testing.T) {
	var c Counters
	c.Optimal.Add(3)
	c.Suboptimal.Inc()
	c.TimedOut.Add(2)
	c.Infeasible.Inc()

	s := c.Snapshot()
	if s.Solves() != 7 || s.Failures() != 3 {
		t.Errorf("expected 7 solves and 3 failures, got %d and %d", s.Solves(), s.Failures())
	}
}

func TestCompliance(t *testing.T) {
	c := NewCompliance(nil, []float64{5, 5}, []float64{-1, -1}, []float64{1, 1})
	if c.Value() != 1 {
		t.Error("no samples should read as fully compliant")
	}
	c.Observe(dynamo.State{0, 0, 0}, dynamo.Control{1, -1}, 0)
	c.Observe(dynamo.State{6, 0, 0}, dynamo.Control{0, 0}, 0.1)
	c.Observe(dynamo.State{0, 0, 0}, dynamo.Control{0, 1.5}, 0.2)
	c.Observe(dynamo.State{-100, 4, 0}, dynamo.Control{0, 0}, 0.3)

	if c.Violations() != 2 {
		t.Errorf("expected 2 violations, got %d", c.Violations())
	}
	if got := c.Value(); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("expected compliance 0.5, got %f", got)
	}
	c.Reset()
	if c.Value() != 1 || c.Violations() != 0 {
		t.Error("reset did not clear the counts")
	}
}

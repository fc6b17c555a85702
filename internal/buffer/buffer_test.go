package buffer

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/san-kum/nmpc/internal/dynamo"
)

func TestSnapshotIsACopy(t *testing.T) {
	b := New(clock.NewMock())
	x := dynamo.State{1, 2, 3}
	if err := b.SetState(x); err != nil {
		t.Fatal(err)
	}
	x[0] = 99

	s := b.Snapshot()
	if s.State[0] != 1 {
		t.Errorf("buffer aliased the caller's state: %v", s.State)
	}
	s.State[1] = 42
	if b.Snapshot().State[1] != 2 {
		t.Error("snapshot aliased the buffer's state")
	}
}

func TestVersionTracksGoalAndPath(t *testing.T) {
	b := New(clock.NewMock())
	if v := b.Snapshot().Version; v != 0 {
		t.Fatalf("initial version %d", v)
	}
	b.SetState(dynamo.State{0, 0, 0})
	if v := b.Snapshot().Version; v != 0 {
		t.Errorf("state updates must not bump the version, got %d", v)
	}
	b.SetGoal(dynamo.Pose{X: 1})
	b.SetPath(dynamo.Path{{X: 0}, {X: 1}})
	s := b.Snapshot()
	if s.Version != 2 || !s.HasGoal || len(s.Path) != 2 {
		t.Errorf("unexpected snapshot %+v", s)
	}
}

func TestRejectsNonFiniteInputs(t *testing.T) {
	b := New(clock.NewMock())
	tests := []struct {
		name string
		err  error
	}{
		{"state", b.SetState(dynamo.State{math.NaN(), 0, 0})},
		{"short state", b.SetState(dynamo.State{0, 0})},
		{"goal", b.SetGoal(dynamo.Pose{X: math.Inf(1)})},
		{"path", b.SetPath(dynamo.Path{{X: 0}, {X: math.NaN()}})},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, dynamo.ErrInvalidState) {
			t.Errorf("%s: expected ErrInvalidState, got %v", tt.name, tt.err)
		}
	}
	if s := b.Snapshot(); s.HasState || s.HasGoal || s.Version != 0 {
		t.Errorf("rejected inputs changed the buffer: %+v", s)
	}
}

func TestFreshness(t *testing.T) {
	mock := clock.NewMock()
	b := New(mock)
	if b.Snapshot().Fresh(mock.Now(), time.Second) {
		t.Fatal("empty buffer cannot be fresh")
	}

	b.SetState(dynamo.State{0, 0, 0})
	mock.Add(400 * time.Millisecond)
	s := b.Snapshot()
	if !s.Fresh(mock.Now(), 500*time.Millisecond) {
		t.Errorf("state aged %v should still be fresh", s.Age(mock.Now()))
	}
	mock.Add(200 * time.Millisecond)
	if s.Fresh(mock.Now(), 500*time.Millisecond) {
		t.Errorf("state aged %v should be stale", s.Age(mock.Now()))
	}
}

func TestConcurrentWritersAndReaders(t *testing.T) {
	b := New(clock.New())
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				v := float64(w*1000 + i)
				b.SetState(dynamo.State{v, v, v})
				if i%50 == 0 {
					b.SetPath(dynamo.StraightPath(dynamo.Pose{}, dynamo.Pose{X: v}, 5))
				}
			}
		}(w)
	}
	for i := 0; i < 500; i++ {
		s := b.Snapshot()
		if s.HasState && (s.State[0] != s.State[1] || s.State[1] != s.State[2]) {
			t.Fatalf("torn state %v", s.State)
		}
	}
	wg.Wait()
}

package integrators

import (
	"testing"

	"github.com/san-kum/nmpc/internal/dynamo"
)

func BenchmarkEuler(b *testing.B) {
	integrator := NewEuler()
	dyn := &turning{}
	x := dynamo.State{0, 0, 0}
	u := dynamo.Control{0.5, 0.1}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(dyn, x, u, 0, 0.1)
	}
}

func BenchmarkRK4(b *testing.B) {
	integrator := NewRK4()
	dyn := &turning{}
	x := dynamo.State{0, 0, 0}
	u := dynamo.Control{0.5, 0.1}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(dyn, x, u, 0, 0.1)
	}
}

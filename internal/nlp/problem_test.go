package nlp

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/nmpc/internal/dynamics"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/integrators"
	"github.com/san-kum/nmpc/internal/physics"
	"github.com/san-kum/nmpc/internal/reference"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

func testModel(t *testing.T, integ dynamo.Integrator, state *dynamics.Bounds) *dynamics.Model {
	t.Helper()
	control := dynamics.Bounds{Lower: []float64{-1, -1.5}, Upper: []float64{1, 1.5}}
	m, err := dynamics.New("unicycle", physics.NewUnicycle(), integ, 0.1, control, state)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func testWeights() Weights {
	return Weights{
		Q:  []float64{1, 1, 0.5},
		Qf: []float64{5, 5, 1},
		R:  []float64{0.05, 0.05},
		S:  []float64{0.1, 0.1},
	}
}

func testProblem(t *testing.T, integ dynamo.Integrator) *Problem {
	t.Helper()
	goal := dynamo.Pose{X: 2, Y: 1}
	x0 := dynamo.State{0.1, -0.2, 0.3}
	ref := reference.Generate(x0, dynamo.StraightPath(dynamo.Pose{}, goal, 10), goal, reference.Params{Horizon: 6, Dt: 0.1, Speed: 0.5})
	p, err := Build(testModel(t, integ, nil), x0, ref, testWeights())
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// samplePoint is an arbitrary, non-trivial decision vector.
func samplePoint(p *Problem) []float64 {
	z := make([]float64, p.NumVars())
	for i := range z {
		z[i] = 0.3*math.Sin(float64(i)*1.7) + 0.05*float64(i%5)
	}
	return z
}

func TestDimensions(t *testing.T) {
	p := testProblem(t, integrators.NewEuler())
	if p.Horizon() != 6 {
		t.Errorf("expected horizon 6, got %d", p.Horizon())
	}
	if p.NumVars() != 7*3+6*2 {
		t.Errorf("expected %d vars, got %d", 7*3+6*2, p.NumVars())
	}
	if p.NumEqualities() != 7*3 {
		t.Errorf("expected %d equalities, got %d", 21, p.NumEqualities())
	}
	traj := p.Unpack(samplePoint(p))
	if len(traj.States) != p.Horizon()+1 || len(traj.Controls) != p.Horizon() {
		t.Errorf("trajectory has %d states and %d controls", len(traj.States), len(traj.Controls))
	}
}

func TestBuildRejectsBadInputs(t *testing.T) {
	m := testModel(t, integrators.NewEuler(), nil)
	ref := reference.Horizon{{0, 0, 0}}

	if _, err := Build(m, dynamo.State{0, 0}, ref, testWeights()); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch for short state, got %v", err)
	}
	if _, err := Build(m, dynamo.State{0, 0, 0}, nil, testWeights()); !errors.Is(err, dynamo.ErrConfigInvalid) {
		t.Errorf("expected invalid config for empty reference, got %v", err)
	}
	w := testWeights()
	w.R = []float64{-1, 0}
	if _, err := Build(m, dynamo.State{0, 0, 0}, ref, w); !errors.Is(err, dynamo.ErrConfigInvalid) {
		t.Errorf("expected invalid config for negative weight, got %v", err)
	}
	if _, err := Build(m, dynamo.State{math.NaN(), 0, 0}, ref, testWeights()); !errors.Is(err, dynamo.ErrInvalidState) {
		t.Errorf("expected invalid state, got %v", err)
	}
}

func TestGradientMatchesFiniteDifferences(t *testing.T) {
	p := testProblem(t, integrators.NewEuler())
	z := samplePoint(p)

	grad := make([]float64, len(z))
	p.Gradient(grad, z)
	num := fd.Gradient(nil, p.Objective, z, &fd.Settings{Formula: fd.Central})

	for i := range grad {
		if math.Abs(grad[i]-num[i]) > 1e-6 {
			t.Errorf("grad[%d] = %.8f, numeric %.8f", i, grad[i], num[i])
		}
	}
}

func TestEqualityJacobianMatchesFiniteDifferences(t *testing.T) {
	for _, integ := range []dynamo.Integrator{integrators.NewEuler(), integrators.NewRK4()} {
		p := testProblem(t, integ)
		z := samplePoint(p)

		jac := p.EqualityJacobian(z)
		num := mat.NewDense(p.NumEqualities(), p.NumVars(), nil)
		fd.Jacobian(num, p.Equalities, z, &fd.JacobianSettings{Formula: fd.Central})

		if !mat.EqualApprox(jac, num, 1e-6) {
			t.Errorf("%T: analytic and numeric constraint Jacobians differ", integ)
		}
	}
}

func TestEqualityVJPMatchesJacobianTranspose(t *testing.T) {
	p := testProblem(t, integrators.NewEuler())
	z := samplePoint(p)

	lambda := make([]float64, p.NumEqualities())
	for i := range lambda {
		lambda[i] = math.Cos(float64(i))
	}

	got := make([]float64, p.NumVars())
	p.EqualityVJP(got, z, lambda)

	want := mat.NewVecDense(p.NumVars(), nil)
	want.MulVec(p.EqualityJacobian(z).T(), mat.NewVecDense(len(lambda), lambda))

	for i := range got {
		if math.Abs(got[i]-want.AtVec(i)) > 1e-12 {
			t.Errorf("vjp[%d] = %.10f, want %.10f", i, got[i], want.AtVec(i))
		}
	}
}

func TestStaticGuessSatisfiesDynamics(t *testing.T) {
	p := testProblem(t, integrators.NewEuler())
	z := p.StaticGuess()
	if v := p.EqualityViolation(z); v > 1e-12 {
		t.Errorf("expected zero-control rollout to be consistent, violation %g", v)
	}
	traj := p.Unpack(z)
	for k, x := range traj.States {
		for i := range x {
			if x[i] != p.Initial()[i] {
				t.Fatalf("state %d differs from initial state", k)
			}
		}
	}
	if !traj.FirstControl().IsZero() {
		t.Error("expected zero first control")
	}
}

func TestShiftDuplicatesLastStep(t *testing.T) {
	p := testProblem(t, integrators.NewEuler())
	z := samplePoint(p)
	before := p.Unpack(z)
	after := p.Unpack(p.Shift(z))

	n := p.Horizon()
	for k := 0; k < n; k++ {
		if !equal(after.States[k], before.States[k+1]) {
			t.Errorf("state %d not shifted", k)
		}
	}
	if !equal(after.States[n], before.States[n]) {
		t.Error("last state not duplicated")
	}
	for k := 0; k < n-1; k++ {
		if !equal(after.Controls[k], before.Controls[k+1]) {
			t.Errorf("control %d not shifted", k)
		}
	}
	if !equal(after.Controls[n-1], before.Controls[n-1]) {
		t.Error("last control not duplicated")
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	p := testProblem(t, integrators.NewEuler())
	z := samplePoint(p)
	if !equal(p.Pack(p.Unpack(z)), z) {
		t.Error("pack(unpack(z)) != z")
	}
}

func TestInitialFeasible(t *testing.T) {
	box := &dynamics.Bounds{Lower: []float64{0, 0, -math.Pi}, Upper: []float64{10, 10, math.Pi}}
	m := testModel(t, integrators.NewEuler(), box)
	ref := reference.Horizon{{1, 1, 0}}

	inside, err := Build(m, dynamo.State{1, 1, 0}, ref, testWeights())
	if err != nil {
		t.Fatal(err)
	}
	if !inside.InitialFeasible() {
		t.Error("expected state inside box to be feasible")
	}

	outside, err := Build(m, dynamo.State{-1, 1, 0}, ref, testWeights())
	if err != nil {
		t.Fatal(err)
	}
	if outside.InitialFeasible() {
		t.Error("expected state outside box to be infeasible")
	}
	lo, hi := outside.Bounds()
	if lo[0] != 0 || hi[outside.NumVars()-1] != 1.5 {
		t.Errorf("unexpected variable box %v %v", lo, hi)
	}
}

func equal[T ~[]float64](a, b T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

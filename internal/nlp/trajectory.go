package nlp

import "github.com/san-kum/nmpc/internal/dynamo"

// Trajectory is the decoded decision vector: N+1 states and N controls.
type Trajectory struct {
	States   []dynamo.State
	Controls []dynamo.Control
}

// FirstControl is u_0, the only command a receding-horizon controller
// applies.
func (t Trajectory) FirstControl() dynamo.Control {
	if len(t.Controls) == 0 {
		return nil
	}
	return t.Controls[0].Clone()
}

// Unpack copies z into a Trajectory.
func (p *Problem) Unpack(z []float64) Trajectory {
	t := Trajectory{
		States:   make([]dynamo.State, p.n+1),
		Controls: make([]dynamo.Control, p.n),
	}
	for k := 0; k <= p.n; k++ {
		t.States[k] = p.state(z, k).Clone()
	}
	for k := 0; k < p.n; k++ {
		t.Controls[k] = p.control(z, k).Clone()
	}
	return t
}

// Pack is the inverse of Unpack.
func (p *Problem) Pack(t Trajectory) []float64 {
	z := make([]float64, p.NumVars())
	for k := 0; k <= p.n && k < len(t.States); k++ {
		copy(z[p.xIndex(k):p.xIndex(k)+p.nx], t.States[k])
	}
	for k := 0; k < p.n && k < len(t.Controls); k++ {
		copy(z[p.uIndex(k):p.uIndex(k)+p.nu], t.Controls[k])
	}
	return z
}

// StaticGuess is the cold-start point: every state equals x̂ and every
// control is zero.
func (p *Problem) StaticGuess() []float64 {
	z := make([]float64, p.NumVars())
	for k := 0; k <= p.n; k++ {
		copy(z[p.xIndex(k):], p.x0)
	}
	return z
}

// Shift advances a solution one step for use as the next warm start:
// x_k ← x_{k+1} and u_k ← u_{k+1}, with the last state and control
// duplicated into the vacated slot.
func (p *Problem) Shift(z []float64) []float64 {
	out := make([]float64, len(z))
	for k := 0; k < p.n; k++ {
		copy(out[p.xIndex(k):p.xIndex(k)+p.nx], z[p.xIndex(k+1):p.xIndex(k+1)+p.nx])
	}
	copy(out[p.xIndex(p.n):p.xIndex(p.n)+p.nx], z[p.xIndex(p.n):p.xIndex(p.n)+p.nx])
	for k := 0; k < p.n-1; k++ {
		copy(out[p.uIndex(k):p.uIndex(k)+p.nu], z[p.uIndex(k+1):p.uIndex(k+1)+p.nu])
	}
	last := p.uIndex(p.n - 1)
	copy(out[last:last+p.nu], z[last:last+p.nu])
	return out
}

// Seed prepares a guess for this problem from a stored warm start by
// pinning its first state to x̂.
func (p *Problem) Seed(warm []float64) []float64 {
	z := append([]float64(nil), warm...)
	copy(z[:p.nx], p.x0)
	return z
}

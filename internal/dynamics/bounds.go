package dynamics

import (
	"fmt"
	"math"
)

// Bounds is a per-component box [Lower_i, Upper_i]. Infinite entries are
// allowed and mean "unbounded" on that side.
type Bounds struct {
	Lower []float64
	Upper []float64
}

// Unbounded returns an n-dimensional box with every side at infinity.
func Unbounded(n int) Bounds {
	b := Bounds{Lower: make([]float64, n), Upper: make([]float64, n)}
	for i := 0; i < n; i++ {
		b.Lower[i] = math.Inf(-1)
		b.Upper[i] = math.Inf(1)
	}
	return b
}

func NewBounds(lower, upper []float64) (Bounds, error) {
	b := Bounds{Lower: append([]float64(nil), lower...), Upper: append([]float64(nil), upper...)}
	return b, b.Validate()
}

func (b Bounds) Dim() int {
	return len(b.Lower)
}

func (b Bounds) Validate() error {
	if len(b.Lower) != len(b.Upper) {
		return fmt.Errorf("bounds: lower has %d entries, upper has %d", len(b.Lower), len(b.Upper))
	}
	for i := range b.Lower {
		if math.IsNaN(b.Lower[i]) || math.IsNaN(b.Upper[i]) {
			return fmt.Errorf("bounds: component %d is NaN", i)
		}
		if b.Lower[i] > b.Upper[i] {
			return fmt.Errorf("bounds: component %d inverted (%g > %g)", i, b.Lower[i], b.Upper[i])
		}
	}
	return nil
}

// IsUnbounded reports whether no component has a finite side.
func (b Bounds) IsUnbounded() bool {
	for i := range b.Lower {
		if !math.IsInf(b.Lower[i], -1) || !math.IsInf(b.Upper[i], 1) {
			return false
		}
	}
	return true
}

// AdmitsZero reports whether the zero vector lies inside the box.
func (b Bounds) AdmitsZero() bool {
	for i := range b.Lower {
		if b.Lower[i] > 0 || b.Upper[i] < 0 {
			return false
		}
	}
	return true
}

// Contains reports whether v lies inside the box, allowing slack tol.
func (b Bounds) Contains(v []float64, tol float64) bool {
	if len(v) != len(b.Lower) {
		return false
	}
	for i, x := range v {
		if x < b.Lower[i]-tol || x > b.Upper[i]+tol {
			return false
		}
	}
	return true
}

// Clamp returns a copy of v with every component pushed into the box.
// NaN components are left as NaN so callers can detect them.
func (b Bounds) Clamp(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		if i < len(b.Lower) {
			x = math.Max(b.Lower[i], math.Min(b.Upper[i], x))
		}
		out[i] = x
	}
	return out
}

// Violation is the largest distance of a component outside the box.
func (b Bounds) Violation(v []float64) float64 {
	worst := 0.0
	for i, x := range v {
		if i >= len(b.Lower) {
			break
		}
		if d := b.Lower[i] - x; d > worst {
			worst = d
		}
		if d := x - b.Upper[i]; d > worst {
			worst = d
		}
	}
	return worst
}

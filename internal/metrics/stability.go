package metrics

import (
	"github.com/san-kum/nmpc/internal/dynamo"
)

// Compliance is the fraction of samples whose state and command stay
// inside their boxes. A nil side is unconstrained.
type Compliance struct {
	stateLower, stateUpper     []float64
	controlLower, controlUpper []float64
	violations                 int
	samples                    int
}

const complianceSlack = 1e-6

func NewCompliance(stateLower, stateUpper, controlLower, controlUpper []float64) *Compliance {
	return &Compliance{
		stateLower:   stateLower,
		stateUpper:   stateUpper,
		controlLower: controlLower,
		controlUpper: controlUpper,
	}
}

func (c *Compliance) Name() string { return "bound_compliance" }

func (c *Compliance) Observe(x dynamo.State, u dynamo.Control, t float64) {
	c.samples++
	if !inside(x, c.stateLower, c.stateUpper) || !inside(u, c.controlLower, c.controlUpper) {
		c.violations++
	}
}

func inside(v, lower, upper []float64) bool {
	for i, vi := range v {
		if i < len(lower) && vi < lower[i]-complianceSlack {
			return false
		}
		if i < len(upper) && vi > upper[i]+complianceSlack {
			return false
		}
	}
	return true
}

func (c *Compliance) Value() float64 {
	if c.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(c.violations)/float64(c.samples)
}

// Violations is the number of samples outside a box.
func (c *Compliance) Violations() int { return c.violations }

func (c *Compliance) Reset() {
	c.violations = 0
	c.samples = 0
}

package metrics

import (
	"math"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// ControlEffort is the mean L1 norm of the applied commands.
type ControlEffort struct {
	name    string
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(x dynamo.State, u dynamo.Control, t float64) {
	for _, val := range u {
		c.sum += math.Abs(val)
	}
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// ControlRate is the mean L1 norm of the change between consecutive
// commands, a measure of chatter.
type ControlRate struct {
	prev    dynamo.Control
	sum     float64
	samples int
}

func NewControlRate() *ControlRate { return &ControlRate{} }

func (c *ControlRate) Name() string { return "control_rate" }

func (c *ControlRate) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if c.prev != nil && len(c.prev) == len(u) {
		for i := range u {
			c.sum += math.Abs(u[i] - c.prev[i])
		}
		c.samples++
	}
	c.prev = u.Clone()
}

func (c *ControlRate) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlRate) Reset() {
	c.prev = nil
	c.sum = 0
	c.samples = 0
}

package governor_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/san-kum/nmpc/internal/dynamics"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/governor"
	"github.com/san-kum/nmpc/internal/nlp"
	"github.com/san-kum/nmpc/internal/solver"
)

func limits() dynamics.Bounds {
	return dynamics.Bounds{Lower: []float64{-1, -1.5}, Upper: []float64{1, 1.5}}
}

func newGovernor(policy governor.Policy, k int) *governor.Governor {
	g, err := governor.New(governor.Config{
		Policy:      policy,
		MaxFailures: k,
		Limits:      limits(),
		PosTol:      0.1,
		HeadingTol:  0.05,
	}, nil)
	Expect(err).NotTo(HaveOccurred())
	return g
}

func success(u ...float64) solver.Result {
	return solver.Result{
		Outcome:    solver.Optimal,
		Trajectory: nlp.Trajectory{Controls: []dynamo.Control{u}},
	}
}

func failure(o solver.Outcome) solver.Result {
	return solver.Failed(o, nil)
}

var _ = Describe("Governor", func() {
	Describe("configuration", func() {
		It("rejects K below one", func() {
			_, err := governor.New(governor.Config{MaxFailures: 0, Limits: limits(), PosTol: 0.1, HeadingTol: 0.1}, nil)
			Expect(errors.Is(err, dynamo.ErrConfigInvalid)).To(BeTrue())
		})

		It("rejects actuation limits that exclude the stop command", func() {
			forward := dynamics.Bounds{Lower: []float64{0.1, -1.5}, Upper: []float64{1, 1.5}}
			_, err := governor.New(governor.Config{Policy: governor.PolicyStop, MaxFailures: 3, Limits: forward, PosTol: 0.1, HeadingTol: 0.1}, nil)
			Expect(errors.Is(err, dynamo.ErrConfigInvalid)).To(BeTrue())
		})

		It("parses policy names", func() {
			for name, want := range map[string]governor.Policy{"stop": governor.PolicyStop, "Decay": governor.PolicyDecay, " hold ": governor.PolicyHold} {
				p, err := governor.ParsePolicy(name)
				Expect(err).NotTo(HaveOccurred())
				Expect(p).To(Equal(want))
			}
			_, err := governor.ParsePolicy("coast")
			Expect(errors.Is(err, dynamo.ErrConfigInvalid)).To(BeTrue())
		})
	})

	Describe("successful solves", func() {
		It("clamps the first control into the actuation box", func() {
			g := newGovernor(governor.PolicyStop, 3)
			g.NewInputs()
			d := g.Accept(success(2.5, -4))
			Expect(d.Command).To(Equal(dynamo.Control{1, -1.5}))
			Expect(d.Mode).To(Equal(governor.Tracking))
			Expect(d.Fallback).To(BeFalse())
		})

		It("treats a NaN control as a failure", func() {
			g := newGovernor(governor.PolicyStop, 3)
			g.NewInputs()
			d := g.Accept(success(math.NaN(), 0))
			Expect(d.Fallback).To(BeTrue())
			Expect(errors.Is(d.Reason, dynamo.ErrSolver)).To(BeTrue())
			Expect(d.Command).To(Equal(dynamo.Control{0, 0}))
			Expect(g.Failures()).To(Equal(1))
		})
	})

	Describe("hold policy with K=3", func() {
		var g *governor.Governor

		BeforeEach(func() {
			g = newGovernor(governor.PolicyHold, 3)
			g.NewInputs()
			g.Accept(success(0.4, 0.1))
		})

		It("holds for K-1 cycles and forces a stop on the K-th", func() {
			d := g.Accept(failure(solver.TimedOut))
			Expect(d.Command).To(Equal(dynamo.Control{0.4, 0.1}))
			Expect(d.Mode).To(Equal(governor.Tracking))
			Expect(errors.Is(d.Reason, dynamo.ErrTimedOut)).To(BeTrue())

			d = g.Accept(failure(solver.Infeasible))
			Expect(d.Command).To(Equal(dynamo.Control{0.4, 0.1}))
			Expect(d.ForcedStop).To(BeFalse())

			d = g.Accept(failure(solver.SolverError))
			Expect(d.Command).To(Equal(dynamo.Control{0, 0}))
			Expect(d.ForcedStop).To(BeTrue())
			Expect(d.Mode).To(Equal(governor.Faulted))
		})

		It("stays faulted and stopped until a solve succeeds", func() {
			for i := 0; i < 3; i++ {
				g.Accept(failure(solver.TimedOut))
			}
			d := g.Accept(failure(solver.TimedOut))
			Expect(d.Mode).To(Equal(governor.Faulted))
			Expect(d.Command).To(Equal(dynamo.Control{0, 0}))
			Expect(d.ForcedStop).To(BeFalse())

			d = g.Accept(success(0.2, 0))
			Expect(d.Mode).To(Equal(governor.Tracking))
			Expect(d.Command).To(Equal(dynamo.Control{0.2, 0}))
			Expect(g.Failures()).To(BeZero())
		})

		It("does not hold a command from before the fault", func() {
			for i := 0; i < 3; i++ {
				g.Accept(failure(solver.TimedOut))
			}
			g.NewInputs()
			Expect(g.Mode()).To(Equal(governor.Tracking))
			d := g.Accept(failure(solver.TimedOut))
			Expect(d.Command).To(Equal(dynamo.Control{0, 0}))
		})

		It("counts stale inputs as failures", func() {
			g.Fail(dynamo.ErrInputStale)
			g.Fail(dynamo.ErrInputStale)
			d := g.Fail(dynamo.ErrInputStale)
			Expect(d.Mode).To(Equal(governor.Faulted))
			Expect(errors.Is(d.Reason, dynamo.ErrInputStale)).To(BeTrue())
		})
	})

	Describe("decay policy", func() {
		It("scales the last good command linearly to zero over K failures", func() {
			g := newGovernor(governor.PolicyDecay, 4)
			g.NewInputs()
			g.Accept(success(0.8, 0.4))

			want := [][]float64{{0.6, 0.3}, {0.4, 0.2}, {0.2, 0.1}, {0, 0}}
			for i, w := range want {
				d := g.Accept(failure(solver.Infeasible))
				Expect(d.Command[0]).To(BeNumerically("~", w[0], 1e-12), "failure %d", i+1)
				Expect(d.Command[1]).To(BeNumerically("~", w[1], 1e-12), "failure %d", i+1)
			}
			Expect(g.Mode()).To(Equal(governor.Faulted))
		})
	})

	Describe("stop policy", func() {
		It("stops on the first failure", func() {
			g := newGovernor(governor.PolicyStop, 3)
			g.NewInputs()
			g.Accept(success(0.5, 0.5))
			d := g.Accept(failure(solver.Infeasible))
			Expect(d.Command).To(Equal(dynamo.Control{0, 0}))
			Expect(d.Mode).To(Equal(governor.Tracking))
		})
	})

	Describe("goal handling", func() {
		It("detects the goal with both tolerances", func() {
			g := newGovernor(governor.PolicyStop, 3)
			goal := dynamo.Pose{X: 1, Y: 1, Theta: math.Pi}
			Expect(g.AtGoal(dynamo.State{1.05, 1, -math.Pi + 0.01}, goal)).To(BeTrue())
			Expect(g.AtGoal(dynamo.State{1.2, 1, math.Pi}, goal)).To(BeFalse())
			Expect(g.AtGoal(dynamo.State{1, 1, math.Pi - 0.1}, goal)).To(BeFalse())
		})

		It("stays in GoalReached emitting stop until a new goal arrives", func() {
			g := newGovernor(governor.PolicyHold, 3)
			g.NewInputs()
			g.Accept(success(0.3, 0))

			d := g.GoalReached()
			Expect(d.Mode).To(Equal(governor.GoalReached))
			Expect(d.Command).To(Equal(dynamo.Control{0, 0}))

			d = g.Fail(dynamo.ErrInputStale)
			Expect(d.Mode).To(Equal(governor.GoalReached))
			Expect(d.Command).To(Equal(dynamo.Control{0, 0}))

			g.NewInputs()
			Expect(g.Mode()).To(Equal(governor.Tracking))
			Expect(g.LastGood()).To(BeNil())
		})

		It("is idle without a goal", func() {
			g := newGovernor(governor.PolicyStop, 3)
			d := g.Idle()
			Expect(d.Mode).To(Equal(governor.Idle))
			Expect(d.Command).To(Equal(dynamo.Control{0, 0}))
			Expect(governor.Idle.String()).To(Equal("IDLE"))
		})
	})
})

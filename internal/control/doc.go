// Package control wires one receding-horizon cycle together:
//
//	buffer snapshot -> reference horizon -> NLP -> solver driver -> governor -> actuator
//
// A [Pipeline] owns the governor and the driver's warm start, and is driven
// by the scheduler through [Pipeline.Tick]. Every cycle publishes exactly
// one command, a stop if nothing better is available.
//
// # Usage
//
//	p, err := control.New(model, weights, control.Params{Horizon: 10, Speed: 0.5, Staleness: 500 * time.Millisecond},
//		buf, driver, gov, actuator)
//	sched, err := scheduler.New(100*time.Millisecond, p.Tick)
//	sched.Run(ctx)
package control

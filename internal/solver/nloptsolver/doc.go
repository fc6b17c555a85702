// Package nloptsolver provides an SLSQP backend on top of NLopt. It needs
// the NLopt C library and is only compiled with the nlopt build tag; other
// builds get a stub whose New returns an error.
package nloptsolver

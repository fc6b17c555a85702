// Package nlp formulates the receding-horizon optimal control problem.
//
// [Build] turns a discrete model, the current state and an N-entry
// reference horizon into a [Problem] in multiple-shooting form. The problem
// exposes everything a gradient-based backend needs: objective and
// gradient, equality residuals with their Jacobian or vector-Jacobian
// product, and the variable box. It carries no solver state; building the
// same inputs twice yields the same [Problem.Fingerprint].
package nlp

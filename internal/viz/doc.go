// Package viz renders the controller in the terminal.
//
// [Dashboard] is a Bubble Tea program that follows a simulation cycle by
// cycle: the robot on a Braille [Canvas] together with its path, goal and
// predicted trajectory, the governor mode, and plots of the commands and
// solve times. [Trajectory] and [Commands] render recorded runs without
// an interactive session.
//
// # Key Bindings
//
//	Space - Pause/Resume the simulation
//	P     - Toggle the predicted trajectory
//	T     - Cycle color themes
//	?     - Show help overlay
//	Q     - Quit
package viz

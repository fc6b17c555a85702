// Package governor is the last stage of a control cycle. It extracts and
// clamps the first control of a successful solve, applies the fault policy
// on failures, short-circuits at the goal and tracks the controller mode:
//
//	Idle -> Tracking -> GoalReached -> Tracking (new goal)
//	Tracking -> Faulted -> Tracking (successful solve or new goal/path)
//
// Every call returns a Decision, so the loop always has a command to send.
package governor

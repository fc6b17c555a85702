package dynamo

import "math"

// WrapAngle maps a to the interval (-π, π].
func WrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// UnwrapNear returns the angle equivalent to a that lies within π of ref.
func UnwrapNear(a, ref float64) float64 {
	return ref + WrapAngle(a-ref)
}

// HeadingTo is the direction of the segment from (x0, y0) to (x1, y1).
func HeadingTo(x0, y0, x1, y1 float64) float64 {
	return math.Atan2(y1-y0, x1-x0)
}

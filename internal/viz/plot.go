package viz

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// ControlNames labels the command components of a model with dim controls.
func ControlNames(dim int) []string {
	switch dim {
	case 2:
		return []string{"v [m/s]", "ω [rad/s]"}
	case 3:
		return []string{"vx [m/s]", "vy [m/s]", "ω [rad/s]"}
	}
	names := make([]string, dim)
	for i := range names {
		names[i] = fmt.Sprintf("u%d", i)
	}
	return names
}

// Trajectory draws the driven states over the path on a w by h cell
// canvas, with the start and goal poses marked.
func Trajectory(states []dynamo.State, path dynamo.Path, goal dynamo.Pose, w, h int) string {
	c := NewCanvas(w, h)
	xs := []float64{goal.X}
	ys := []float64{goal.Y}
	for _, wp := range path {
		xs, ys = append(xs, wp.X), append(ys, wp.Y)
	}
	for _, x := range states {
		xs, ys = append(xs, x[0]), append(ys, x[1])
	}
	v := Fit(c, xs, ys)

	v.Path(path)
	for i := 1; i < len(states); i++ {
		v.Line(states[i-1][0], states[i-1][1], states[i][0], states[i][1])
	}
	size := 0.05 * v.span()
	if len(states) > 0 {
		v.Pose(states[0].Pose(), size)
	}
	v.Pose(goal, size)
	return c.String()
}

// span is the world width the viewport shows.
func (v Viewport) span() float64 {
	return float64(v.dotsW-1) / v.scale
}

// Commands plots every command component over the cycles of a run.
func Commands(controls []dynamo.Control, width, height int) string {
	if len(controls) < 2 {
		return ""
	}
	names := ControlNames(len(controls[0]))
	var b strings.Builder
	for i, name := range names {
		series := make([]float64, len(controls))
		for k, u := range controls {
			series[k] = u[i]
		}
		b.WriteString(asciigraph.Plot(series,
			asciigraph.Height(height),
			asciigraph.Width(width),
			asciigraph.Caption(name),
		))
		b.WriteString("\n\n")
	}
	return b.String()
}

// Series plots one named series, or returns "" when there is too little
// data to draw.
func Series(values []float64, caption string, width, height int) string {
	if len(values) < 2 {
		return ""
	}
	return asciigraph.Plot(values,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}

// Package export renders stored runs for use outside the terminal.
package export

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// Style sets the colors of a trajectory plot.
type Style struct {
	Background string
	Path       string
	Trajectory string
	Goal       string
	Start      string
}

var DefaultStyle = Style{
	Background: "#0a0a0a",
	Path:       "#555555",
	Trajectory: "#00ff88",
	Goal:       "#ff00ff",
	Start:      "#00ffff",
}

// frame maps world metres onto SVG pixels, y up, equal scale.
type frame struct {
	minX, maxY float64
	scale      float64
}

func newFrame(xs, ys []float64, width, height int) frame {
	minX, maxX := xs[0], xs[0]
	minY, maxY := ys[0], ys[0]
	for i := range xs {
		minX, maxX = math.Min(minX, xs[i]), math.Max(maxX, xs[i])
		minY, maxY = math.Min(minY, ys[i]), math.Max(maxY, ys[i])
	}
	pad := 0.1 * math.Max(math.Max(maxX-minX, maxY-minY), 1)
	minX, maxX = minX-pad, maxX+pad
	minY, maxY = minY-pad, maxY+pad

	scale := math.Min(float64(width)/(maxX-minX), float64(height)/(maxY-minY))
	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	return frame{
		minX:  cx - float64(width)/scale/2,
		maxY:  cy + float64(height)/scale/2,
		scale: scale,
	}
}

func (f frame) px(x, y float64) (float64, float64) {
	return (x - f.minX) * f.scale, (f.maxY - y) * f.scale
}

func (f frame) polyline(sb *strings.Builder, xs, ys []float64, stroke string, dashed bool) {
	if len(xs) < 2 {
		return
	}
	fmt.Fprintf(sb, `<polyline fill="none" stroke="%s" stroke-width="1.5"`, stroke)
	if dashed {
		sb.WriteString(` stroke-dasharray="6 4"`)
	}
	sb.WriteString(` points="`)
	for i := range xs {
		x, y := f.px(xs[i], ys[i])
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(sb, "%.1f,%.1f", x, y)
	}
	sb.WriteString("\"/>\n")
}

func (f frame) pose(sb *strings.Builder, p dynamo.Pose, color string) {
	x, y := f.px(p.X, p.Y)
	hx, hy := f.px(p.X+0.3*math.Cos(p.Theta), p.Y+0.3*math.Sin(p.Theta))
	fmt.Fprintf(sb, `<circle cx="%.1f" cy="%.1f" r="4" fill="%s"/>`+"\n", x, y, color)
	fmt.Fprintf(sb, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="2"/>`+"\n", x, y, hx, hy, color)
}

// TrajectorySVG draws the reference path, the driven trajectory and the
// start and goal poses.
func TrajectorySVG(states []dynamo.State, path dynamo.Path, goal dynamo.Pose, width, height int, style Style) string {
	xs := []float64{goal.X}
	ys := []float64{goal.Y}
	var pathX, pathY, trajX, trajY []float64
	for _, wp := range path {
		pathX, pathY = append(pathX, wp.X), append(pathY, wp.Y)
	}
	for _, s := range states {
		if len(s) < 2 {
			continue
		}
		trajX, trajY = append(trajX, s[0]), append(trajY, s[1])
	}
	xs = append(append(xs, pathX...), trajX...)
	ys = append(append(ys, pathY...), trajY...)
	f := newFrame(xs, ys, width, height)

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
`, width, height, width, height, style.Background)

	f.polyline(&sb, pathX, pathY, style.Path, true)
	f.polyline(&sb, trajX, trajY, style.Trajectory, false)
	if len(states) > 0 && len(states[0]) >= 3 {
		f.pose(&sb, states[0].Pose(), style.Start)
	}
	f.pose(&sb, goal, style.Goal)

	sb.WriteString("</svg>\n")
	return sb.String()
}

func WriteTrajectorySVG(w io.Writer, states []dynamo.State, path dynamo.Path, goal dynamo.Pose, width, height int) error {
	_, err := io.WriteString(w, TrajectorySVG(states, path, goal, width, height, DefaultStyle))
	return err
}

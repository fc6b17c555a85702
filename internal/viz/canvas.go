package viz

import (
	"math"
	"strings"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blank = 0x2800

type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Set turns on the dot at (x, y) in sub-pixel coordinates. The canvas is
// Width*2 by Height*4 dots.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

// On reports whether the dot at (x, y) is set.
func (c *Canvas) On(x, y int) bool {
	if x < 0 || y < 0 || x/2 >= c.Width || y/4 >= c.Height {
		return false
	}
	return c.Grid[y/4][x/2]&rune(pixelMap[y%4][x%2]) != 0
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Viewport maps world metres onto canvas dots with y pointing up and equal
// scale on both axes.
type Viewport struct {
	canvas       *Canvas
	minX, minY   float64
	scale        float64
	dotsW, dotsH int
}

// Fit builds a viewport that shows every point with a margin.
func Fit(c *Canvas, xs, ys []float64) Viewport {
	minX, maxX := bounds(xs)
	minY, maxY := bounds(ys)

	pad := 0.1 * math.Max(math.Max(maxX-minX, maxY-minY), 1)
	minX, maxX = minX-pad, maxX+pad
	minY, maxY = minY-pad, maxY+pad

	v := Viewport{canvas: c, dotsW: c.Width * 2, dotsH: c.Height * 4}
	v.scale = math.Min(float64(v.dotsW-1)/(maxX-minX), float64(v.dotsH-1)/(maxY-minY))
	// Centre the shorter axis.
	v.minX = (minX+maxX)/2 - float64(v.dotsW-1)/v.scale/2
	v.minY = (minY+maxY)/2 - float64(v.dotsH-1)/v.scale/2
	return v
}

func bounds(vs []float64) (lo, hi float64) {
	if len(vs) == 0 {
		return 0, 0
	}
	lo, hi = vs[0], vs[0]
	for _, v := range vs[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// Dot returns the dot coordinates of world point (x, y).
func (v Viewport) Dot(x, y float64) (int, int) {
	px := int(math.Round((x - v.minX) * v.scale))
	py := v.dotsH - 1 - int(math.Round((y-v.minY)*v.scale))
	return px, py
}

func (v Viewport) Point(x, y float64) {
	px, py := v.Dot(x, y)
	v.canvas.Set(px, py)
}

func (v Viewport) Line(x0, y0, x1, y1 float64) {
	ax, ay := v.Dot(x0, y0)
	bx, by := v.Dot(x1, y1)
	v.canvas.DrawLine(ax, ay, bx, by)
}

func (v Viewport) Path(p dynamo.Path) {
	for i := 1; i < len(p); i++ {
		v.Line(p[i-1].X, p[i-1].Y, p[i].X, p[i].Y)
	}
}

// Pose draws a small cross at the position and a heading tick of length
// size metres.
func (v Viewport) Pose(p dynamo.Pose, size float64) {
	px, py := v.Dot(p.X, p.Y)
	for d := -1; d <= 1; d++ {
		v.canvas.Set(px+d, py)
		v.canvas.Set(px, py+d)
	}
	v.Line(p.X, p.Y, p.X+size*math.Cos(p.Theta), p.Y+size*math.Sin(p.Theta))
}

package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/san-kum/nmpc/internal/dynamo"
)

func TestTrajectorySVG(t *testing.T) {
	goal := dynamo.Pose{X: 2, Y: 1}
	states := []dynamo.State{{0, 0, 0}, {1, 0.5, 0.4}, {2, 1, 0.4}}
	path := dynamo.StraightPath(dynamo.Pose{}, goal, 5)

	var buf bytes.Buffer
	if err := WriteTrajectorySVG(&buf, states, path, goal, 400, 300); err != nil {
		t.Fatal(err)
	}
	svg := buf.String()
	if !strings.HasPrefix(svg, "<?xml") || !strings.HasSuffix(svg, "</svg>\n") {
		t.Fatal("not a complete svg document")
	}
	if n := strings.Count(svg, "<polyline"); n != 2 {
		t.Errorf("expected path and trajectory polylines, got %d", n)
	}
	if n := strings.Count(svg, "<circle"); n != 2 {
		t.Errorf("expected start and goal markers, got %d", n)
	}
	if !strings.Contains(svg, DefaultStyle.Trajectory) {
		t.Error("trajectory color missing")
	}
}

func TestFrameKeepsYUp(t *testing.T) {
	f := newFrame([]float64{0, 4}, []float64{0, 2}, 400, 200)
	x0, y0 := f.px(0, 0)
	x1, y1 := f.px(4, 2)
	if x1 <= x0 || y1 >= y0 {
		t.Errorf("(0,0)->(%.1f,%.1f), (4,2)->(%.1f,%.1f)", x0, y0, x1, y1)
	}
	for _, v := range []float64{x0, x1} {
		if v < 0 || v > 400 {
			t.Errorf("x %.1f outside the image", v)
		}
	}
	for _, v := range []float64{y0, y1} {
		if v < 0 || v > 200 {
			t.Errorf("y %.1f outside the image", v)
		}
	}
}

func TestTrajectorySVGWithoutPath(t *testing.T) {
	svg := TrajectorySVG(nil, nil, dynamo.Pose{X: 1}, 100, 100, DefaultStyle)
	if strings.Contains(svg, "<polyline") {
		t.Error("nothing to draw as a line")
	}
	if strings.Count(svg, "<circle") != 1 {
		t.Error("goal marker missing")
	}
}

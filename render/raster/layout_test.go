package raster

import (
	"math"
	"testing"

	"postforge/render"
)

func near(a, b float64) bool { return math.Abs(a-b) < 0.01 }

func mustLayout(t *testing.T, root *render.Node, w, h float64) *box {
	t.Helper()
	b, err := newLayouter().layout(root, w, h)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	return b
}

func TestColumnLayout(t *testing.T) {
	root := render.Container(render.Style{Padding: 10, Gap: 5},
		render.Container(render.Style{Height: 20}),
		render.Container(render.Style{Height: 30}),
	)
	b := mustLayout(t, root, 200, 100)
	a, c := b.children[0], b.children[1]
	if !near(a.x, 10) || !near(a.y, 10) || !near(a.w, 180) || !near(a.h, 20) {
		t.Errorf("first = %+v", *a)
	}
	if !near(c.y, 35) || !near(c.h, 30) {
		t.Errorf("second = %+v", *c)
	}
}

func TestColumnJustifyAndGrow(t *testing.T) {
	centered := mustLayout(t, render.Container(render.Style{Justify: render.JustifyCenter},
		render.Container(render.Style{Height: 20}),
	), 100, 100)
	if !near(centered.children[0].y, 40) {
		t.Errorf("centered y = %v", centered.children[0].y)
	}

	end := mustLayout(t, render.Container(render.Style{Justify: render.JustifyEnd},
		render.Container(render.Style{Height: 20}),
	), 100, 100)
	if !near(end.children[0].y, 80) {
		t.Errorf("end y = %v", end.children[0].y)
	}

	grown := mustLayout(t, render.Container(render.Style{},
		render.Container(render.Style{Height: 20}),
		render.Container(render.Style{Grow: 1}),
	), 100, 100)
	if !near(grown.children[1].h, 80) {
		t.Errorf("grown h = %v", grown.children[1].h)
	}
}

func TestRowLayout(t *testing.T) {
	root := render.Container(render.Style{Direction: render.Row, Gap: 10, Height: 50},
		render.Container(render.Style{Width: 30}),
		render.Container(render.Style{Grow: 1}),
		render.Container(render.Style{Grow: 3}),
	)
	b := mustLayout(t, root, 250, 50)
	widths := []float64{30, 50, 150}
	xs := []float64{0, 40, 100}
	for i, c := range b.children {
		if !near(c.w, widths[i]) || !near(c.x, xs[i]) {
			t.Errorf("child %d: x=%v w=%v, want x=%v w=%v", i, c.x, c.w, xs[i], widths[i])
		}
		if !near(c.h, 50) {
			t.Errorf("child %d: stretched height = %v", i, c.h)
		}
	}
}

func TestAbsoluteLayout(t *testing.T) {
	root := render.Container(render.Style{},
		render.Container(render.Style{Width: 20, Height: 10, Absolute: &render.Inset{Right: render.Px(5), Bottom: render.Px(5)}}),
		render.Image(render.Style{Absolute: render.Fill()}, "data:,x"),
	)
	b := mustLayout(t, root, 100, 80)
	badge, bg := b.children[0], b.children[1]
	if !near(badge.x, 75) || !near(badge.y, 65) {
		t.Errorf("badge at %v,%v", badge.x, badge.y)
	}
	if !near(bg.w, 100) || !near(bg.h, 80) || !near(bg.x, 0) {
		t.Errorf("fill = %+v", *bg)
	}
}

func TestTextWrapping(t *testing.T) {
	fc, err := newFace(render.WeightRegular, 20)
	if err != nil {
		t.Fatalf("newFace: %v", err)
	}
	text := "the quick brown fox jumps over the lazy dog"
	width := fc.measure("the quick brown")

	lines := fc.wrap(text, width, 0)
	if len(lines) < 3 {
		t.Fatalf("lines = %q", lines)
	}
	for _, line := range lines {
		if fc.measure(line) > width+0.01 {
			t.Errorf("line %q is wider than %v", line, width)
		}
	}

	truncated := fc.wrap(text, width, 2)
	if len(truncated) != 2 || truncated[1][len(truncated[1])-3:] != "..." {
		t.Errorf("truncated = %q", truncated)
	}

	if got := fc.wrap("a\nb", 1000, 0); len(got) != 2 {
		t.Errorf("explicit newline lines = %q", got)
	}
	if got := fc.wrap("supercalifragilistic", fc.measure("super"), 0); len(got) < 2 {
		t.Errorf("long word not split: %q", got)
	}
}

func TestTextBoxHeight(t *testing.T) {
	root := render.Container(render.Style{},
		render.Text(render.Style{FontSize: 20, LineHeight: 1.5, Padding: 4}, "one\ntwo"),
	)
	b := mustLayout(t, root, 300, 300)
	txt := b.children[0]
	if !near(txt.h, 2*30+8) {
		t.Errorf("text height = %v", txt.h)
	}
	if len(txt.lines) != 2 || txt.lines[1].baseline <= txt.lines[0].baseline {
		t.Errorf("lines = %+v", txt.lines)
	}
}

package raster

import (
	"math"

	"postforge/render"
)

// box is a laid-out node. Coordinates are absolute CSS pixels once place
// has run.
type box struct {
	node     *render.Node
	x, y     float64
	w, h     float64
	lines    []textLine
	children []*box
}

type textLine struct {
	text     string
	x        float64
	baseline float64
}

type layouter struct {
	faces map[faceKey]*face
}

type faceKey struct {
	weight render.FontWeight
	size   float64
}

func newLayouter() *layouter {
	return &layouter{faces: make(map[faceKey]*face)}
}

func (l *layouter) face(s render.Style) (*face, error) {
	key := faceKey{weight: s.FontWeight, size: s.EffectiveFontSize()}
	if fc, ok := l.faces[key]; ok {
		return fc, nil
	}
	fc, err := newFace(key.weight, key.size)
	if err != nil {
		return nil, err
	}
	l.faces[key] = fc
	return fc, nil
}

// layout sizes the tree inside a width x height viewport and resolves
// absolute positions.
func (l *layouter) layout(root *render.Node, width, height float64) (*box, error) {
	b, err := l.measure(root, width, height)
	if err != nil {
		return nil, err
	}
	place(b, 0, 0)
	return b, nil
}

// measure sizes n. availW is the width offered by the parent; forcedH, when
// positive, overrides the node's own height.
func (l *layouter) measure(n *render.Node, availW, forcedH float64) (*box, error) {
	s := n.Style
	b := &box{node: n, w: availW}
	if s.Width > 0 {
		b.w = s.Width
	}

	switch n.Kind {
	case render.KindText:
		if err := l.measureText(b); err != nil {
			return nil, err
		}
	case render.KindImage:
		b.h = b.w
	case render.KindContainer:
		if err := l.measureContainer(b, forcedH); err != nil {
			return nil, err
		}
	}

	if s.Height > 0 {
		b.h = s.Height
	}
	if forcedH > 0 {
		b.h = forcedH
	}
	return b, nil
}

func (l *layouter) measureText(b *box) error {
	s := b.node.Style
	fc, err := l.face(s)
	if err != nil {
		return err
	}
	inner := math.Max(b.w-2*s.Padding, 0)
	texts := fc.wrap(b.node.Text, inner, s.MaxLines)
	lh := s.EffectiveLineHeight()
	lead := (lh - (fc.ascent + fc.descent)) / 2

	b.lines = make([]textLine, len(texts))
	for i, t := range texts {
		x := s.Padding
		switch s.TextAlign {
		case render.TextCenter:
			x += (inner - fc.measure(t)) / 2
		case render.TextRight:
			x += inner - fc.measure(t)
		}
		b.lines[i] = textLine{text: t, x: x, baseline: s.Padding + float64(i)*lh + lead + fc.ascent}
	}
	b.h = float64(len(texts))*lh + 2*s.Padding
	return nil
}

// naturalWidth is the unwrapped width of a text node including padding.
func (l *layouter) naturalWidth(n *render.Node) (float64, error) {
	fc, err := l.face(n.Style)
	if err != nil {
		return 0, err
	}
	widest := 0.0
	for _, line := range fc.wrap(n.Text, 0, 0) {
		widest = math.Max(widest, fc.measure(line))
	}
	return math.Ceil(widest) + 2*n.Style.Padding, nil
}

func (l *layouter) measureContainer(b *box, forcedH float64) error {
	s := b.node.Style
	var flow, abs []*render.Node
	for _, c := range b.node.Children {
		if c.Style.Absolute != nil {
			abs = append(abs, c)
		} else {
			flow = append(flow, c)
		}
	}

	height := s.Height
	if forcedH > 0 {
		height = forcedH
	}

	var err error
	if s.Direction == render.Row {
		err = l.layoutRow(b, flow, height)
	} else {
		err = l.layoutColumn(b, flow, height)
	}
	if err != nil {
		return err
	}

	for _, c := range abs {
		cb, err := l.measureAbsolute(c, b.w, b.h)
		if err != nil {
			return err
		}
		b.children = append(b.children, cb)
	}
	// Restore tree order so paint order follows the document.
	orderChildren(b)
	return nil
}

func (l *layouter) layoutColumn(b *box, flow []*render.Node, height float64) error {
	s := b.node.Style
	inner := math.Max(b.w-2*s.Padding, 0)
	gaps := s.Gap * float64(max(len(flow)-1, 0))

	boxes := make([]*box, len(flow))
	total := gaps
	grow := 0.0
	for i, c := range flow {
		w := inner
		if s.Align != "" && s.Align != render.AlignStretch && c.Kind == render.KindText && c.Style.Width == 0 {
			nw, err := l.naturalWidth(c)
			if err != nil {
				return err
			}
			w = math.Min(nw, inner)
		}
		cb, err := l.measure(c, w, 0)
		if err != nil {
			return err
		}
		boxes[i] = cb
		total += cb.h
		grow += c.Style.Grow
	}

	if height > 0 {
		b.h = height
	} else {
		b.h = total + 2*s.Padding
	}
	extra := b.h - 2*s.Padding - total

	if extra > 0 && grow > 0 {
		for i, c := range flow {
			if c.Style.Grow == 0 {
				continue
			}
			cb, err := l.measure(c, boxes[i].w, boxes[i].h+extra*c.Style.Grow/grow)
			if err != nil {
				return err
			}
			boxes[i] = cb
		}
		extra = 0
	}

	y, spacing := justify(s.Justify, extra, len(flow))
	y += s.Padding
	for _, cb := range boxes {
		cb.x = s.Padding + crossOffset(s.Align, inner, cb.w)
		cb.y = y
		y += cb.h + s.Gap + spacing
		b.children = append(b.children, cb)
	}
	return nil
}

func (l *layouter) layoutRow(b *box, flow []*render.Node, height float64) error {
	s := b.node.Style
	inner := math.Max(b.w-2*s.Padding, 0)
	gaps := s.Gap * float64(max(len(flow)-1, 0))

	widths := make([]float64, len(flow))
	flexible := make([]float64, len(flow))
	used := gaps
	grow := 0.0
	for i, c := range flow {
		switch {
		case c.Style.Width > 0:
			widths[i] = c.Style.Width
		case c.Style.Grow > 0:
			flexible[i] = c.Style.Grow
		case c.Kind == render.KindText:
			nw, err := l.naturalWidth(c)
			if err != nil {
				return err
			}
			widths[i] = nw
		default:
			flexible[i] = 1
		}
		used += widths[i]
		grow += flexible[i]
	}
	remaining := math.Max(inner-used, 0)
	if grow > 0 {
		for i := range flow {
			if flexible[i] > 0 {
				widths[i] = remaining * flexible[i] / grow
			}
		}
		remaining = 0
	}

	boxes := make([]*box, len(flow))
	rowH := 0.0
	for i, c := range flow {
		cb, err := l.measure(c, widths[i], 0)
		if err != nil {
			return err
		}
		boxes[i] = cb
		rowH = math.Max(rowH, cb.h)
	}

	if height > 0 {
		b.h = height
	} else {
		b.h = rowH + 2*s.Padding
	}
	innerH := math.Max(b.h-2*s.Padding, 0)

	if s.Align == "" || s.Align == render.AlignStretch {
		for i, c := range flow {
			if c.Kind == render.KindText || c.Style.Height > 0 || boxes[i].h == innerH {
				continue
			}
			cb, err := l.measure(c, widths[i], innerH)
			if err != nil {
				return err
			}
			boxes[i] = cb
		}
	}

	x, spacing := justify(s.Justify, remaining, len(flow))
	x += s.Padding
	for _, cb := range boxes {
		cb.x = x
		cb.y = s.Padding + crossOffset(s.Align, innerH, cb.h)
		x += cb.w + s.Gap + spacing
		b.children = append(b.children, cb)
	}
	return nil
}

func (l *layouter) measureAbsolute(n *render.Node, parentW, parentH float64) (*box, error) {
	in := n.Style.Absolute
	w := parentW
	switch {
	case n.Style.Width > 0:
		w = n.Style.Width
	case in.Left != nil && in.Right != nil:
		w = math.Max(parentW-*in.Left-*in.Right, 0)
	case n.Kind == render.KindText:
		nw, err := l.naturalWidth(n)
		if err != nil {
			return nil, err
		}
		w = math.Min(nw, parentW)
	}

	forced := 0.0
	if n.Style.Height == 0 && in.Top != nil && in.Bottom != nil {
		forced = math.Max(parentH-*in.Top-*in.Bottom, 0)
	}
	b, err := l.measure(n, w, forced)
	if err != nil {
		return nil, err
	}

	switch {
	case in.Left != nil:
		b.x = *in.Left
	case in.Right != nil:
		b.x = parentW - *in.Right - b.w
	}
	switch {
	case in.Top != nil:
		b.y = *in.Top
	case in.Bottom != nil:
		b.y = parentH - *in.Bottom - b.h
	}
	return b, nil
}

func orderChildren(b *box) {
	index := make(map[*render.Node]int, len(b.node.Children))
	for i, c := range b.node.Children {
		index[c] = i
	}
	ordered := make([]*box, len(b.children))
	copy(ordered, b.children)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && index[ordered[j].node] < index[ordered[j-1].node]; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	b.children = ordered
}

// justify returns the leading offset and the extra spacing between items.
func justify(j render.Justify, extra float64, n int) (float64, float64) {
	if extra <= 0 {
		return 0, 0
	}
	switch j {
	case render.JustifyCenter:
		return extra / 2, 0
	case render.JustifyEnd:
		return extra, 0
	case render.JustifySpaceBetween:
		if n > 1 {
			return 0, extra / float64(n-1)
		}
	}
	return 0, 0
}

func crossOffset(a render.Align, space, size float64) float64 {
	switch a {
	case render.AlignCenter:
		return (space - size) / 2
	case render.AlignEnd:
		return space - size
	default:
		return 0
	}
}

// place converts parent-relative child positions to absolute ones.
func place(b *box, x, y float64) {
	b.x += x
	b.y += y
	for _, c := range b.children {
		place(c, b.x, b.y)
	}
}

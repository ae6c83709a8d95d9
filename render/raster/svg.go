package raster

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/font/sfnt"

	"postforge/render"
)

// debugStroke outlines every box when Options.Debug is set.
const debugStroke = "#ef4444"

// document is a rendered tree split into paint layers. Vector layers are
// standalone SVG documents; image layers are composited as pixels between
// them so paint order is preserved.
type document struct {
	width, height float64
	layers        []layer
}

type layer struct {
	svg   string
	image *imageLayer
}

type imageLayer struct {
	src     string
	x, y    float64
	w, h    float64
	fit     render.Fit
	opacity float64
}

type docBuilder struct {
	l       *layouter
	doc     *document
	debug   bool
	current strings.Builder
	open    bool
}

func buildDocument(root *box, l *layouter, width, height float64, debug bool) (*document, error) {
	db := &docBuilder{l: l, doc: &document{width: width, height: height}, debug: debug}
	if err := db.paint(root); err != nil {
		return nil, err
	}
	db.flush()
	return db.doc, nil
}

func (db *docBuilder) paint(b *box) error {
	s := b.node.Style
	opacity := s.EffectiveOpacity()

	switch b.node.Kind {
	case render.KindImage:
		db.flush()
		db.doc.layers = append(db.doc.layers, layer{image: &imageLayer{
			src: b.node.Src, x: b.x, y: b.y, w: b.w, h: b.h, fit: s.Fit, opacity: opacity,
		}})
	default:
		if err := db.rect(b, s.Background, opacity); err != nil {
			return err
		}
		if b.node.Kind == render.KindText {
			if err := db.text(b, opacity); err != nil {
				return err
			}
		}
	}

	if db.debug {
		db.write(fmt.Sprintf(`<rect x="%s" y="%s" width="%s" height="%s" fill="none" stroke="%s" stroke-width="1"/>`,
			num(b.x), num(b.y), num(b.w), num(b.h), debugStroke))
	}

	for _, c := range b.children {
		if err := db.paint(c); err != nil {
			return err
		}
	}
	return nil
}

func (db *docBuilder) rect(b *box, background string, opacity float64) error {
	c, err := render.ParseColor(background)
	if err != nil {
		return err
	}
	if c.A == 0 || b.w <= 0 || b.h <= 0 {
		return nil
	}
	radius := ""
	if r := b.node.Style.BorderRadius; r > 0 {
		radius = fmt.Sprintf(` rx="%s" ry="%s"`, num(r), num(r))
	}
	db.write(fmt.Sprintf(`<rect x="%s" y="%s" width="%s" height="%s"%s fill="%s" fill-opacity="%s"/>`,
		num(b.x), num(b.y), num(b.w), num(b.h), radius, hexRGB(c.R, c.G, c.B), num(float64(c.A)/255*opacity)))
	return nil
}

func (db *docBuilder) text(b *box, opacity float64) error {
	s := b.node.Style
	colorValue := s.Color
	if colorValue == "" {
		colorValue = render.DefaultColor
	}
	c, err := render.ParseColor(colorValue)
	if err != nil {
		return err
	}
	if c.A == 0 {
		return nil
	}
	fc, err := db.l.face(s)
	if err != nil {
		return err
	}
	for _, line := range b.lines {
		var d strings.Builder
		fc.outline(&d, line.text, b.x+line.x, b.y+line.baseline)
		if d.Len() == 0 {
			continue
		}
		db.write(fmt.Sprintf(`<path d="%s" fill="%s" fill-opacity="%s" fill-rule="nonzero"/>`,
			d.String(), hexRGB(c.R, c.G, c.B), num(float64(c.A)/255*opacity)))
	}
	return nil
}

func (db *docBuilder) write(s string) {
	db.open = true
	db.current.WriteString(s)
}

func (db *docBuilder) flush() {
	if !db.open {
		return
	}
	db.doc.layers = append(db.doc.layers, layer{svg: svgDocument(db.doc.width, db.doc.height, db.current.String())})
	db.current.Reset()
	db.open = false
}

func svgDocument(width, height float64, body string) string {
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">%s</svg>`,
		num(width), num(height), num(width), num(height), body)
}

// markup renders the whole document as one SVG, with image layers as
// <image> elements.
func (d *document) markup() string {
	var body strings.Builder
	for _, ly := range d.layers {
		if ly.image == nil {
			inner := ly.svg[strings.Index(ly.svg, ">")+1 : strings.LastIndex(ly.svg, "</svg>")]
			body.WriteString(inner)
			continue
		}
		im := ly.image
		aspect := "xMidYMid slice"
		if im.fit == render.FitContain {
			aspect = "xMidYMid meet"
		}
		fmt.Fprintf(&body, `<image x="%s" y="%s" width="%s" height="%s" opacity="%s" preserveAspectRatio="%s" href="%s"/>`,
			num(im.x), num(im.y), num(im.w), num(im.h), num(im.opacity), aspect, escapeAttr(im.src))
	}
	return svgDocument(d.width, d.height, body.String())
}

// outline appends the glyph outlines of text as SVG path data, with the
// pen starting at (x, baseline).
func (fc *face) outline(d *strings.Builder, text string, x, baseline float64) {
	var prev sfnt.GlyphIndex
	pen := x
	for _, r := range text {
		idx := fc.glyph(r)
		if idx == 0 {
			pen += fc.spaceAdvance()
			prev = 0
			continue
		}
		pen += fc.kern(prev, idx)
		segments, err := fc.font.LoadGlyph(&fc.buf, idx, fc.ppem, nil)
		if err == nil {
			started := false
			for _, seg := range segments {
				a := seg.Args
				switch seg.Op {
				case sfnt.SegmentOpMoveTo:
					if started {
						d.WriteString("Z")
					}
					started = true
					fmt.Fprintf(d, "M%s %s", pt(pen, a[0].X), pt(baseline, a[0].Y))
				case sfnt.SegmentOpLineTo:
					fmt.Fprintf(d, "L%s %s", pt(pen, a[0].X), pt(baseline, a[0].Y))
				case sfnt.SegmentOpQuadTo:
					fmt.Fprintf(d, "Q%s %s %s %s", pt(pen, a[0].X), pt(baseline, a[0].Y), pt(pen, a[1].X), pt(baseline, a[1].Y))
				case sfnt.SegmentOpCubeTo:
					fmt.Fprintf(d, "C%s %s %s %s %s %s", pt(pen, a[0].X), pt(baseline, a[0].Y),
						pt(pen, a[1].X), pt(baseline, a[1].Y), pt(pen, a[2].X), pt(baseline, a[2].Y))
				}
			}
			if started {
				d.WriteString("Z")
			}
		}
		pen += fc.advance(idx)
		prev = idx
	}
}

func pt[T ~int32](origin float64, v T) string {
	return num(origin + float64(v)/64)
}

// num formats v with at most two decimals so output is stable.
func num(v float64) string {
	v = math.Round(v*100) / 100
	if v == 0 {
		v = 0 // drop negative zero
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func hexRGB(r, g, b uint8) string {
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func escapeAttr(s string) string {
	return strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;").Replace(s)
}

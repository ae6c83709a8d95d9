package browser

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"postforge/render"
)

const baseCSS = `*{box-sizing:border-box;margin:0;padding:0}` +
	`html,body{overflow:hidden;background:transparent;font-family:"Go","Helvetica Neue",Helvetica,Arial,sans-serif;-webkit-font-smoothing:antialiased}` +
	`.t{white-space:pre-wrap;overflow-wrap:anywhere}` +
	`.debug *{outline:1px solid #ef4444;outline-offset:-1px}`

// Document converts a layout tree into a standalone HTML page sized to the
// viewport in opts. Containers become flexbox divs.
func Document(root *render.Node, opts render.Options) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><style>`)
	b.WriteString(baseCSS)
	fmt.Fprintf(&b, `html,body{width:%dpx;height:%dpx}`, opts.Width, opts.Height)
	b.WriteString(`</style></head><body`)
	if opts.Debug {
		b.WriteString(` class="debug"`)
	}
	b.WriteString(`>`)

	rootStyle := root.Style
	if rootStyle.Width == 0 {
		rootStyle.Width = float64(opts.Width)
	}
	if rootStyle.Height == 0 {
		rootStyle.Height = float64(opts.Height)
	}
	writeNode(&b, root, rootStyle, render.Column)
	b.WriteString(`</body></html>`)
	return b.String()
}

func writeNode(b *strings.Builder, n *render.Node, s render.Style, parentDir render.Direction) {
	css := nodeCSS(n, s, parentDir)
	switch n.Kind {
	case render.KindImage:
		fmt.Fprintf(b, `<img src="%s" style="%s" alt="">`, html.EscapeString(n.Src), css)
	case render.KindText:
		fmt.Fprintf(b, `<div class="t" style="%s">%s</div>`, css, html.EscapeString(n.Text))
	default:
		fmt.Fprintf(b, `<div style="%s">`, css)
		dir := s.Direction
		if dir == "" {
			dir = render.Column
		}
		for _, c := range n.Children {
			writeNode(b, c, c.Style, dir)
		}
		b.WriteString(`</div>`)
	}
}

func nodeCSS(n *render.Node, s render.Style, parentDir render.Direction) string {
	var d []string
	add := func(prop, value string) { d = append(d, prop+":"+value) }

	if n.Kind == render.KindContainer {
		add("display", "flex")
		dir := s.Direction
		if dir == "" {
			dir = render.Column
		}
		add("flex-direction", string(dir))
		add("align-items", flexValue(string(s.Align), "stretch"))
		add("justify-content", flexValue(string(s.Justify), "flex-start"))
		if s.Gap > 0 {
			add("gap", px(s.Gap))
		}
	}

	if in := s.Absolute; in != nil {
		add("position", "absolute")
		for _, side := range []struct {
			name string
			v    *float64
		}{{"top", in.Top}, {"right", in.Right}, {"bottom", in.Bottom}, {"left", in.Left}} {
			if side.v != nil {
				add(side.name, px(*side.v))
			}
		}
	} else {
		add("position", "relative")
		if s.Grow > 0 {
			add("flex", fmt.Sprintf("%s 1 0", num(s.Grow)))
		} else {
			add("flex-shrink", "0")
		}
	}

	if s.Width > 0 {
		add("width", px(s.Width))
	} else if n.Kind == render.KindImage && (s.Absolute != nil || parentDir == render.Column) {
		add("width", "100%")
	}
	if s.Height > 0 {
		add("height", px(s.Height))
	} else if n.Kind == render.KindImage && s.Absolute != nil {
		add("height", "100%")
	}
	if s.Padding > 0 {
		add("padding", px(s.Padding))
	}
	if s.Background != "" {
		add("background", s.Background)
	}
	if s.Opacity > 0 && s.Opacity < 1 {
		add("opacity", num(s.Opacity))
	}
	if s.BorderRadius > 0 {
		add("border-radius", px(s.BorderRadius))
		add("overflow", "hidden")
	}

	switch n.Kind {
	case render.KindText:
		color := s.Color
		if color == "" {
			color = render.DefaultColor
		}
		add("color", color)
		add("font-size", px(s.EffectiveFontSize()))
		add("line-height", px(s.EffectiveLineHeight()))
		if s.FontWeight == render.WeightBold {
			add("font-weight", "700")
		}
		if s.TextAlign != "" {
			add("text-align", string(s.TextAlign))
		}
		if s.MaxLines > 0 {
			add("display", "-webkit-box")
			add("-webkit-box-orient", "vertical")
			add("-webkit-line-clamp", strconv.Itoa(s.MaxLines))
			add("overflow", "hidden")
		}
	case render.KindImage:
		fit := s.Fit
		if fit == "" {
			fit = render.FitCover
		}
		add("object-fit", string(fit))
		add("display", "block")
	}
	return html.EscapeString(strings.Join(d, ";"))
}

func flexValue(v, def string) string {
	switch v {
	case "":
		return def
	case "start":
		return "flex-start"
	case "end":
		return "flex-end"
	default:
		return v
	}
}

func px(v float64) string { return num(v) + "px" }

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Direction is the main axis of a container.
type Direction string

const (
	Column Direction = "column"
	Row    Direction = "row"
)

// Align positions children on the cross axis, Justify on the main axis.
type Align string

const (
	AlignStart   Align = "start"
	AlignCenter  Align = "center"
	AlignEnd     Align = "end"
	AlignStretch Align = "stretch"
)

type Justify string

const (
	JustifyStart        Justify = "start"
	JustifyCenter       Justify = "center"
	JustifyEnd          Justify = "end"
	JustifySpaceBetween Justify = "space-between"
)

type TextAlign string

const (
	TextLeft   TextAlign = "left"
	TextCenter TextAlign = "center"
	TextRight  TextAlign = "right"
)

type FontWeight string

const (
	WeightRegular FontWeight = "regular"
	WeightBold    FontWeight = "bold"
)

// Fit scales an image into its box.
type Fit string

const (
	FitCover   Fit = "cover"
	FitContain Fit = "contain"
)

// Inset places an absolutely positioned node relative to its parent's box.
// Nil sides are unconstrained.
type Inset struct {
	Top    *float64 `json:"top,omitempty" yaml:"top,omitempty"`
	Right  *float64 `json:"right,omitempty" yaml:"right,omitempty"`
	Bottom *float64 `json:"bottom,omitempty" yaml:"bottom,omitempty"`
	Left   *float64 `json:"left,omitempty" yaml:"left,omitempty"`
}

// Px returns a pointer to v, for Inset literals.
func Px(v float64) *float64 { return &v }

// Fill is the inset that stretches a node over its whole parent.
func Fill() *Inset {
	return &Inset{Top: Px(0), Right: Px(0), Bottom: Px(0), Left: Px(0)}
}

// Style is the typed style of a node. Zero values mean "auto" or the
// documented default. Lengths are CSS pixels.
type Style struct {
	Width  float64 `json:"width,omitempty" yaml:"width,omitempty"`
	Height float64 `json:"height,omitempty" yaml:"height,omitempty"`

	Padding float64 `json:"padding,omitempty" yaml:"padding,omitempty"`
	Gap     float64 `json:"gap,omitempty" yaml:"gap,omitempty"`

	// Direction defaults to Column.
	Direction Direction `json:"direction,omitempty" yaml:"direction,omitempty"`
	// Align defaults to AlignStretch, Justify to JustifyStart.
	Align     Align     `json:"align,omitempty" yaml:"align,omitempty"`
	Justify   Justify   `json:"justify,omitempty" yaml:"justify,omitempty"`
	Grow      float64   `json:"grow,omitempty" yaml:"grow,omitempty"`

	// Absolute takes the node out of the flow.
	Absolute *Inset `json:"absolute,omitempty" yaml:"absolute,omitempty"`

	Background   string  `json:"background,omitempty" yaml:"background,omitempty"`
	Opacity      float64 `json:"opacity,omitempty" yaml:"opacity,omitempty"`
	BorderRadius float64 `json:"borderRadius,omitempty" yaml:"borderRadius,omitempty"`

	Color      string     `json:"color,omitempty" yaml:"color,omitempty"`
	FontSize   float64    `json:"fontSize,omitempty" yaml:"fontSize,omitempty"`
	FontWeight FontWeight `json:"fontWeight,omitempty" yaml:"fontWeight,omitempty"`
	LineHeight float64    `json:"lineHeight,omitempty" yaml:"lineHeight,omitempty"`
	TextAlign  TextAlign  `json:"textAlign,omitempty" yaml:"textAlign,omitempty"`
	MaxLines   int        `json:"maxLines,omitempty" yaml:"maxLines,omitempty"`

	Fit Fit `json:"fit,omitempty" yaml:"fit,omitempty"`
}

// Style defaults.
const (
	DefaultFontSize   = 16.0
	DefaultLineHeight = 1.3
	DefaultColor      = "#111827"
)

// EffectiveFontSize returns FontSize or DefaultFontSize.
func (s Style) EffectiveFontSize() float64 {
	if s.FontSize > 0 {
		return s.FontSize
	}
	return DefaultFontSize
}

// EffectiveLineHeight returns the line box height in pixels.
func (s Style) EffectiveLineHeight() float64 {
	lh := s.LineHeight
	if lh <= 0 {
		lh = DefaultLineHeight
	}
	return lh * s.EffectiveFontSize()
}

// EffectiveOpacity returns Opacity, treating zero as fully opaque.
func (s Style) EffectiveOpacity() float64 {
	if s.Opacity <= 0 || s.Opacity > 1 {
		return 1
	}
	return s.Opacity
}

// ParseColor reads "#rgb", "#rrggbb" or "#rrggbbaa". The empty string and
// "transparent" yield a fully transparent color.
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "transparent" {
		return color.NRGBA{}, nil
	}
	if !strings.HasPrefix(s, "#") {
		return color.NRGBA{}, fmt.Errorf("render: color %q must start with #", s)
	}
	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("render: color %q has invalid length", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("render: color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// Validate checks the enumerations and colors of every node in the tree.
func Validate(root *Node) error {
	if root == nil {
		return fmt.Errorf("render: tree is empty")
	}
	var err error
	Walk(root, func(n *Node) bool {
		if err != nil {
			return false
		}
		err = validateNode(n)
		return err == nil
	})
	return err
}

func validateNode(n *Node) error {
	switch n.Kind {
	case KindContainer, KindText, KindImage:
	default:
		return fmt.Errorf("render: unknown node kind %q", n.Kind)
	}
	if n.Kind != KindContainer && len(n.Children) > 0 {
		return fmt.Errorf("render: %s node cannot have children", n.Kind)
	}
	s := n.Style
	if s.Width < 0 || s.Height < 0 || s.Padding < 0 || s.Gap < 0 || s.FontSize < 0 || s.Grow < 0 {
		return fmt.Errorf("render: negative length in %s node", n.Kind)
	}
	switch s.Direction {
	case "", Column, Row:
	default:
		return fmt.Errorf("render: unknown direction %q", s.Direction)
	}
	switch s.Align {
	case "", AlignStart, AlignCenter, AlignEnd, AlignStretch:
	default:
		return fmt.Errorf("render: unknown align %q", s.Align)
	}
	switch s.Justify {
	case "", JustifyStart, JustifyCenter, JustifyEnd, JustifySpaceBetween:
	default:
		return fmt.Errorf("render: unknown justify %q", s.Justify)
	}
	switch s.TextAlign {
	case "", TextLeft, TextCenter, TextRight:
	default:
		return fmt.Errorf("render: unknown text align %q", s.TextAlign)
	}
	switch s.FontWeight {
	case "", WeightRegular, WeightBold:
	default:
		return fmt.Errorf("render: unknown font weight %q", s.FontWeight)
	}
	switch s.Fit {
	case "", FitCover, FitContain:
	default:
		return fmt.Errorf("render: unknown fit %q", s.Fit)
	}
	for _, c := range []string{s.Background, s.Color} {
		if _, err := ParseColor(c); err != nil {
			return err
		}
	}
	return nil
}

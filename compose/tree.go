package compose

import (
	"math"
	"strings"

	"postforge/core"
	"postforge/render"
)

// Default colors of the generic post layout.
const (
	DefaultBrandColor   = "#1f2937"
	DefaultTextColor    = "#ffffff"
	overlayBackground   = "#000000a6"
	hashtagDisplayLimit = 12
)

// PostTree builds the layout of a generic post: the background image (or
// the brand color when imageURL is empty), an optional caption overlay along
// the bottom edge, and the logo at its anchor.
func PostTree(content core.GeneratedContent, imageURL string, settings core.CompositionSettings, width, height int) *render.Node {
	w, h := float64(width), float64(height)
	unit := math.Min(w, h)

	brand := settings.BrandColor
	if brand == "" {
		brand = DefaultBrandColor
	}
	textColor := settings.TextColor
	if textColor == "" {
		textColor = DefaultTextColor
	}

	root := render.Container(render.Style{Width: w, Height: h, Background: brand})

	if imageURL != "" {
		root.Children = append(root.Children,
			render.Image(render.Style{Absolute: render.Fill(), Fit: render.FitCover}, imageURL))
	}

	if settings.TextOverlay {
		pad := round1(unit * 0.05)
		overlay := render.Container(render.Style{
			Absolute:   &render.Inset{Left: render.Px(0), Right: render.Px(0), Bottom: render.Px(0)},
			Background: overlayBackground,
			Padding:    pad,
			Gap:        round1(unit * 0.02),
		},
			render.Text(render.Style{
				Color:      textColor,
				FontSize:   round1(unit * 0.042),
				LineHeight: 1.35,
				MaxLines:   6,
			}, content.Caption),
		)
		if tags := hashtagLine(content.Hashtags); tags != "" {
			overlay.Children = append(overlay.Children, render.Text(render.Style{
				Color:      textColor,
				FontSize:   round1(unit * 0.03),
				FontWeight: render.WeightBold,
				Opacity:    0.85,
				MaxLines:   2,
			}, tags))
		}
		root.Children = append(root.Children, overlay)
	}

	if settings.LogoURL != "" {
		root.Children = append(root.Children, logoNode(settings.LogoURL, settings.LogoPosition, w, h))
	}
	return root
}

// logoNode sizes the logo to 12% of the short edge with a 4% margin.
func logoNode(src string, pos core.LogoPosition, w, h float64) *render.Node {
	unit := math.Min(w, h)
	size := round1(unit * 0.12)
	margin := round1(unit * 0.04)

	in := &render.Inset{}
	switch pos {
	case core.LogoTopLeft:
		in.Top, in.Left = render.Px(margin), render.Px(margin)
	case core.LogoTopRight:
		in.Top, in.Right = render.Px(margin), render.Px(margin)
	case core.LogoBottomLeft:
		in.Bottom, in.Left = render.Px(margin), render.Px(margin)
	case core.LogoCenter:
		in.Top, in.Left = render.Px(round1((h-size)/2)), render.Px(round1((w-size)/2))
	default:
		in.Bottom, in.Right = render.Px(margin), render.Px(margin)
	}
	return render.Image(render.Style{Absolute: in, Width: size, Height: size, Fit: render.FitContain}, src)
}

// hashtagLine renders tags for display with their marker restored.
func hashtagLine(tags []string) string {
	if len(tags) > hashtagDisplayLimit {
		tags = tags[:hashtagDisplayLimit]
	}
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, "#"+t)
		}
	}
	return strings.Join(parts, " ")
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

package compose

import (
	"math"

	"postforge/render"
)

type treeBuilder func(data TemplateData, palette Palette, w, h float64) *render.Node

var builders = map[string]treeBuilder{
	"quote-card":     quoteCard,
	"stats-showcase": statsShowcase,
	"announcement":   announcement,
}

func background(data TemplateData, palette Palette) string {
	if bg := data.String("background"); bg != "" {
		return bg
	}
	return palette.Background
}

func quoteCard(data TemplateData, palette Palette, w, h float64) *render.Node {
	unit := math.Min(w, h)
	body := render.Container(render.Style{Gap: round1(unit * 0.04), Align: render.AlignCenter},
		render.Text(render.Style{
			Color:     palette.Accent,
			FontSize:  round1(unit * 0.12),
			TextAlign: render.TextCenter,
		}, "“"),
		render.Text(render.Style{
			Color:      palette.Text,
			FontSize:   round1(unit * 0.055),
			LineHeight: 1.4,
			TextAlign:  render.TextCenter,
			MaxLines:   8,
			Width:      round1(w * 0.8),
		}, data.String("quote")),
	)
	if author := data.String("author"); author != "" {
		body.Children = append(body.Children, render.Text(render.Style{
			Color:      palette.Accent,
			FontSize:   round1(unit * 0.035),
			FontWeight: render.WeightBold,
			TextAlign:  render.TextCenter,
		}, author))
	}
	return render.Container(render.Style{
		Width:      w,
		Height:     h,
		Padding:    round1(unit * 0.08),
		Background: background(data, palette),
		Align:      render.AlignCenter,
		Justify:    render.JustifyCenter,
	}, body)
}

func statsShowcase(data TemplateData, palette Palette, w, h float64) *render.Node {
	unit := math.Min(w, h)
	header := render.Container(render.Style{Gap: round1(unit * 0.015)},
		render.Text(render.Style{
			Color:      palette.Text,
			FontSize:   round1(unit * 0.065),
			FontWeight: render.WeightBold,
			MaxLines:   2,
		}, data.String("title")),
	)
	if sub := data.String("subtitle"); sub != "" {
		header.Children = append(header.Children, render.Text(render.Style{
			Color:    palette.Text,
			FontSize: round1(unit * 0.035),
			Opacity:  0.75,
			MaxLines: 2,
		}, sub))
	}

	stats := data.Stats("stats")
	perRow := 3
	if len(stats) == 4 {
		perRow = 2
	}
	grid := render.Container(render.Style{Gap: round1(unit * 0.03), Grow: 1, Justify: render.JustifyCenter})
	for start := 0; start < len(stats); start += perRow {
		end := start + perRow
		if end > len(stats) {
			end = len(stats)
		}
		row := render.Container(render.Style{Direction: render.Row, Gap: round1(unit * 0.03)})
		for _, s := range stats[start:end] {
			row.Children = append(row.Children, statCard(s, palette, unit))
		}
		grid.Children = append(grid.Children, row)
	}

	return render.Container(render.Style{
		Width:      w,
		Height:     h,
		Padding:    round1(unit * 0.07),
		Gap:        round1(unit * 0.05),
		Background: palette.Background,
	}, header, grid)
}

func statCard(s Stat, palette Palette, unit float64) *render.Node {
	return render.Container(render.Style{
		Grow:         1,
		Padding:      round1(unit * 0.03),
		Gap:          round1(unit * 0.01),
		Background:   "#ffffff14",
		BorderRadius: round1(unit * 0.02),
	},
		render.Text(render.Style{
			Color:      palette.Accent,
			FontSize:   round1(unit * 0.07),
			FontWeight: render.WeightBold,
			MaxLines:   1,
		}, s.Value),
		render.Text(render.Style{
			Color:    palette.Text,
			FontSize: round1(unit * 0.03),
			MaxLines: 2,
		}, s.Label),
	)
}

func announcement(data TemplateData, palette Palette, w, h float64) *render.Node {
	unit := math.Min(w, h)
	content := render.Container(render.Style{Gap: round1(unit * 0.04)},
		render.Container(render.Style{
			Width:      round1(unit * 0.12),
			Height:     round1(unit * 0.012),
			Background: palette.Accent,
		}),
		render.Text(render.Style{
			Color:      palette.Text,
			FontSize:   round1(unit * 0.085),
			FontWeight: render.WeightBold,
			LineHeight: 1.15,
			MaxLines:   3,
		}, data.String("headline")),
	)
	if body := data.String("body"); body != "" {
		content.Children = append(content.Children, render.Text(render.Style{
			Color:      palette.Text,
			FontSize:   round1(unit * 0.038),
			LineHeight: 1.45,
			Opacity:    0.85,
			MaxLines:   6,
		}, body))
	}
	if cta := data.String("cta"); cta != "" {
		content.Children = append(content.Children,
			render.Container(render.Style{Direction: render.Row},
				render.Container(render.Style{
					Padding:      round1(unit * 0.022),
					Background:   palette.Accent,
					BorderRadius: round1(unit * 0.04),
				}, render.Text(render.Style{
					Color:      palette.Background,
					FontSize:   round1(unit * 0.034),
					FontWeight: render.WeightBold,
				}, cta)),
			))
	}
	return render.Container(render.Style{
		Width:      w,
		Height:     h,
		Padding:    round1(unit * 0.09),
		Background: background(data, palette),
		Justify:    render.JustifyCenter,
	}, content)
}

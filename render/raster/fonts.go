package raster

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"postforge/render"
)

var (
	fontsOnce   sync.Once
	regularFont *sfnt.Font
	boldFont    *sfnt.Font
	fontsErr    error
)

func loadFonts() error {
	fontsOnce.Do(func() {
		regularFont, fontsErr = sfnt.Parse(goregular.TTF)
		if fontsErr != nil {
			return
		}
		boldFont, fontsErr = sfnt.Parse(gobold.TTF)
	})
	if fontsErr != nil {
		return fmt.Errorf("raster: failed to parse embedded fonts: %w", fontsErr)
	}
	return nil
}

// face measures and outlines text at one size. A face owns its sfnt.Buffer
// and must not be shared between goroutines.
type face struct {
	font    *sfnt.Font
	size    float64
	ppem    fixed.Int26_6
	buf     sfnt.Buffer
	ascent  float64
	descent float64
}

func newFace(weight render.FontWeight, size float64) (*face, error) {
	if err := loadFonts(); err != nil {
		return nil, err
	}
	f := regularFont
	if weight == render.WeightBold {
		f = boldFont
	}
	fc := &face{font: f, size: size, ppem: fixed.Int26_6(size * 64)}
	m, err := f.Metrics(&fc.buf, fc.ppem, font.HintingNone)
	if err != nil {
		return nil, fmt.Errorf("raster: font metrics: %w", err)
	}
	fc.ascent = float64(m.Ascent) / 64
	fc.descent = float64(m.Descent) / 64
	return fc, nil
}

// glyph returns the glyph index for r, or 0 when the font lacks it.
func (fc *face) glyph(r rune) sfnt.GlyphIndex {
	idx, err := fc.font.GlyphIndex(&fc.buf, r)
	if err != nil {
		return 0
	}
	return idx
}

func (fc *face) advance(idx sfnt.GlyphIndex) float64 {
	adv, err := fc.font.GlyphAdvance(&fc.buf, idx, fc.ppem, font.HintingNone)
	if err != nil {
		return 0
	}
	return float64(adv) / 64
}

func (fc *face) kern(prev, idx sfnt.GlyphIndex) float64 {
	if prev == 0 || idx == 0 {
		return 0
	}
	k, err := fc.font.Kern(&fc.buf, prev, idx, fc.ppem, font.HintingNone)
	if err != nil {
		return 0
	}
	return float64(k) / 64
}

// spaceAdvance stands in for glyphs the font does not have.
func (fc *face) spaceAdvance() float64 {
	return fc.advance(fc.glyph(' '))
}

// measure returns the advance width of s.
func (fc *face) measure(s string) float64 {
	var (
		width float64
		prev  sfnt.GlyphIndex
	)
	for _, r := range s {
		idx := fc.glyph(r)
		if idx == 0 {
			width += fc.spaceAdvance()
			prev = 0
			continue
		}
		width += fc.kern(prev, idx) + fc.advance(idx)
		prev = idx
	}
	return width
}

const ellipsis = "..."

// wrap breaks text into lines no wider than width. Explicit newlines start a
// new line, words longer than width are split by character. maxLines > 0
// truncates with an ellipsis.
func (fc *face) wrap(text string, width float64, maxLines int) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.FieldsFunc(para, unicode.IsSpace)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := ""
		for _, word := range words {
			candidate := word
			if current != "" {
				candidate = current + " " + word
			}
			if fc.measure(candidate) <= width || width <= 0 {
				current = candidate
				continue
			}
			if current != "" {
				lines = append(lines, current)
			}
			current = ""
			for fc.measure(word) > width {
				head, tail := fc.splitAt(word, width)
				lines = append(lines, head)
				word = tail
			}
			current = word
		}
		if current != "" {
			lines = append(lines, current)
		}
	}
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
		lines[maxLines-1] = fc.withEllipsis(lines[maxLines-1], width)
	}
	return lines
}

// splitAt returns the longest prefix of word that fits in width (at least
// one rune) and the remainder.
func (fc *face) splitAt(word string, width float64) (string, string) {
	runes := []rune(word)
	n := 1
	for n < len(runes) && fc.measure(string(runes[:n+1])) <= width {
		n++
	}
	return string(runes[:n]), string(runes[n:])
}

func (fc *face) withEllipsis(line string, width float64) string {
	runes := []rune(strings.TrimRight(line, " "))
	for len(runes) > 0 && fc.measure(string(runes)+ellipsis) > width {
		runes = runes[:len(runes)-1]
	}
	return strings.TrimRight(string(runes), " ") + ellipsis
}

package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"postforge/core"
	"postforge/render"
)

func solidPNG(t *testing.T, c color.Color, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func dataURL(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	return img
}

func rgba(img image.Image, x, y int) color.RGBA {
	r, g, b, a := img.At(x, y).RGBA()
	return color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}

func postTree(bg string) *render.Node {
	return render.Container(render.Style{Background: "#1f2937", Padding: 40, Justify: render.JustifyEnd},
		render.Image(render.Style{Absolute: render.Fill(), Fit: render.FitCover}, bg),
		render.Container(render.Style{Background: "#000000b3", Padding: 24, Gap: 12, BorderRadius: 16},
			render.Text(render.Style{FontSize: 36, FontWeight: render.WeightBold, Color: "#ffffff"}, "Chocolate cake, the easy way"),
			render.Text(render.Style{FontSize: 22, Color: "#d1d5db"}, "#baking #chocolate #dessert"),
		),
	)
}

func TestRenderIsDeterministic(t *testing.T) {
	b := New()
	bg := dataURL(solidPNG(t, color.RGBA{200, 120, 40, 255}, 8, 8))
	opts := render.Options{Width: 320, Height: 320, Format: core.FormatPNG}

	first, err := b.Render(context.Background(), postTree(bg), opts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	second, err := b.Render(context.Background(), postTree(bg), opts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("identical input produced different bytes")
	}

	img := decode(t, first)
	if img.Bounds().Dx() != 320 || img.Bounds().Dy() != 320 {
		t.Errorf("size = %v", img.Bounds())
	}
}

func TestRenderBackgroundAndImageLayers(t *testing.T) {
	green := dataURL(solidPNG(t, color.RGBA{0, 255, 0, 255}, 4, 4))
	root := render.Container(render.Style{Background: "#ff0000"},
		render.Image(render.Style{Absolute: &render.Inset{Top: render.Px(50), Left: render.Px(50)}, Width: 50, Height: 50}, green),
	)

	out, err := New().Render(context.Background(), root, render.Options{Width: 100, Height: 100, Format: core.FormatPNG})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img := decode(t, out)
	if got := rgba(img, 10, 10); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("background pixel = %v", got)
	}
	if got := rgba(img, 75, 75); got != (color.RGBA{0, 255, 0, 255}) {
		t.Errorf("image pixel = %v", got)
	}
}

func TestRenderDeviceScaleFactor(t *testing.T) {
	out, err := New().Render(context.Background(), render.Container(render.Style{Background: "#ffffff"}),
		render.Options{Width: 100, Height: 50, Format: core.FormatPNG, DeviceScaleFactor: 2})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if b := decode(t, out).Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Errorf("size = %v, want 200x100", b)
	}
}

func TestRenderRejects(t *testing.T) {
	b := New(WithMaxSize(500, 500))
	tests := []struct {
		name string
		root *render.Node
		opts render.Options
	}{
		{"jpeg", render.Container(render.Style{}), render.Options{Width: 10, Height: 10, Format: core.FormatJPEG}},
		{"too large", render.Container(render.Style{}), render.Options{Width: 501, Height: 10, Format: core.FormatPNG}},
		{"too large after scaling", render.Container(render.Style{}), render.Options{Width: 300, Height: 10, Format: core.FormatPNG, DeviceScaleFactor: 2}},
		{"zero size", render.Container(render.Style{}), render.Options{Format: core.FormatPNG}},
		{"bad color", render.Container(render.Style{Background: "red"}), render.Options{Width: 10, Height: 10, Format: core.FormatPNG}},
		{"text with children", &render.Node{Kind: render.KindText, Children: []*render.Node{render.Text(render.Style{}, "x")}}, render.Options{Width: 10, Height: 10, Format: core.FormatPNG}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := b.Render(context.Background(), tt.root, tt.opts); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

type failingFetcher struct{}

func (failingFetcher) Fetch(context.Context, string) ([]byte, error) {
	return nil, errors.New("unreachable")
}

func TestRenderImageFetchFailure(t *testing.T) {
	b := New(WithFetcher(failingFetcher{}))
	root := render.Container(render.Style{}, render.Image(render.Style{Absolute: render.Fill()}, "https://example.com/x.png"))
	if _, err := b.Render(context.Background(), root, render.Options{Width: 10, Height: 10, Format: core.FormatPNG}); err == nil {
		t.Fatal("expected fetch error")
	}
}

func TestSVGMarkup(t *testing.T) {
	b := New()
	svg, err := b.SVG(postTree("https://cdn.example.com/bg.png?a=1&b=2"), render.Options{Width: 400, Height: 400, Format: core.FormatPNG, Debug: true})
	if err != nil {
		t.Fatalf("SVG: %v", err)
	}
	for _, want := range []string{`<svg xmlns="http://www.w3.org/2000/svg"`, `<path d="M`, `<image `, `a=1&amp;b=2`, `stroke="#ef4444"`, `rx="16"`} {
		if !strings.Contains(svg, want) {
			t.Errorf("markup missing %q", want)
		}
	}
}

func TestCapabilities(t *testing.T) {
	caps := New().Capabilities()
	if caps.Engine != core.EngineTreeToRaster || !caps.SupportsFormat(core.FormatPNG) || caps.SupportsFormat(core.FormatJPEG) {
		t.Errorf("caps = %+v", caps)
	}
	if !caps.HasFeature(render.FeatureDeterministic) {
		t.Error("expected deterministic feature")
	}
}

func TestDecodeDataURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"data:text/plain;base64,aGk=", "hi", false},
		{"data:,hello%20world", "hello world", false},
		{"data:image/png;base64,!!", "", true},
		{"data:nocomma", "", true},
		{"https://x", "", true},
	}
	for _, tt := range tests {
		got, err := DecodeDataURL(tt.in)
		if (err != nil) != tt.wantErr || string(got) != tt.want {
			t.Errorf("DecodeDataURL(%q) = %q, %v", tt.in, got, err)
		}
	}
}

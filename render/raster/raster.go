// Package raster is the tree-to-raster composition backend.
//
// The layout tree is sized with a small flexbox subset, typeset with the
// embedded Go fonts, converted to SVG markup with glyphs as outline paths,
// and rasterized with oksvg. Image nodes are decoded and composited in
// paint order. No fonts or pages are loaded from the network, so the same
// input always produces the same PNG bytes.
package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"postforge/core"
	"postforge/logging"
	"postforge/render"
)

// Maximum output size in device pixels.
const (
	DefaultMaxWidth  = 4096
	DefaultMaxHeight = 4096
)

// Backend renders layout trees to PNG without a browser.
//
// Thread Safety: Backend is safe for concurrent use. Each Render builds its
// own layouter and font faces.
type Backend struct {
	fetcher   Fetcher
	maxWidth  int
	maxHeight int
	logger    *logging.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithFetcher replaces the image fetcher.
func WithFetcher(f Fetcher) Option {
	return func(b *Backend) { b.fetcher = f }
}

// WithMaxSize changes the maximum output size.
func WithMaxSize(width, height int) Option {
	return func(b *Backend) { b.maxWidth, b.maxHeight = width, height }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// New creates the backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		fetcher:   HTTPFetcher{},
		maxWidth:  DefaultMaxWidth,
		maxHeight: DefaultMaxHeight,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.Named("raster")
	return b
}

// Kind implements render.Backend.
func (b *Backend) Kind() core.Engine { return core.EngineTreeToRaster }

// Capabilities implements render.Backend.
func (b *Backend) Capabilities() render.Capabilities {
	return render.Capabilities{
		Engine:    core.EngineTreeToRaster,
		Formats:   []core.ImageFormat{core.FormatPNG},
		MaxWidth:  b.maxWidth,
		MaxHeight: b.maxHeight,
		Features: []string{
			render.FeatureTextOverlay,
			render.FeatureLogo,
			render.FeatureTemplates,
			render.FeatureDeviceScale,
			render.FeatureDeterministic,
			render.FeatureDebugOutline,
		},
	}
}

// Render implements render.Backend.
func (b *Backend) Render(ctx context.Context, root *render.Node, opts render.Options) ([]byte, error) {
	if opts.Format != core.FormatPNG {
		return nil, fmt.Errorf("raster: format %q is not supported", opts.Format)
	}
	doc, err := b.document(root, opts)
	if err != nil {
		return nil, err
	}

	images, err := b.fetchImages(ctx, doc)
	if err != nil {
		return nil, err
	}

	pw, ph := opts.PixelSize()
	scale := float64(pw) / doc.width
	canvas := image.NewRGBA(image.Rect(0, 0, pw, ph))

	for _, ly := range doc.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ly.image != nil {
			compositeImage(canvas, images[ly.image.src], ly.image, scale)
			continue
		}
		if err := rasterizeSVG(canvas, ly.svg, pw, ph); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("raster: png encode: %w", err)
	}
	b.logger.Debug("rendered",
		zap.Int("width", pw),
		zap.Int("height", ph),
		zap.Int("layers", len(doc.layers)),
		zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

// SVG returns the intermediate vector markup for root, with image nodes as
// <image> elements.
func (b *Backend) SVG(root *render.Node, opts render.Options) (string, error) {
	doc, err := b.document(root, opts)
	if err != nil {
		return "", err
	}
	return doc.markup(), nil
}

func (b *Backend) document(root *render.Node, opts render.Options) (*document, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("raster: invalid size %dx%d", opts.Width, opts.Height)
	}
	if !opts.FitsWithin(b.maxWidth, b.maxHeight) {
		pw, ph := opts.PixelSize()
		return nil, fmt.Errorf("raster: pixel size %dx%d exceeds %dx%d", pw, ph, b.maxWidth, b.maxHeight)
	}
	if err := render.Validate(root); err != nil {
		return nil, err
	}

	l := newLayouter()
	w, h := float64(opts.Width), float64(opts.Height)
	tree, err := l.layout(root, w, h)
	if err != nil {
		return nil, err
	}
	return buildDocument(tree, l, w, h, opts.Debug)
}

func (b *Backend) fetchImages(ctx context.Context, doc *document) (map[string]image.Image, error) {
	images := make(map[string]image.Image)
	for _, ly := range doc.layers {
		if ly.image == nil {
			continue
		}
		src := ly.image.src
		if _, ok := images[src]; ok {
			continue
		}
		data, err := b.fetcher.Fetch(ctx, src)
		if err != nil {
			return nil, err
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("raster: failed to decode image %q: %w", truncate(src, 64), err)
		}
		images[src] = img
	}
	return images, nil
}

func rasterizeSVG(canvas *image.RGBA, markup string, pw, ph int) error {
	icon, err := oksvg.ReadIconStream(strings.NewReader(markup), oksvg.WarnErrorMode)
	if err != nil {
		return fmt.Errorf("raster: svg parse: %w", err)
	}
	icon.SetTarget(0, 0, float64(pw), float64(ph))
	scanner := rasterx.NewScannerGV(pw, ph, canvas, canvas.Bounds())
	dasher := rasterx.NewDasher(pw, ph, scanner)
	icon.Draw(dasher, 1.0)
	return nil
}

// compositeImage scales src into the layer box. Cover crops the source to
// the box aspect ratio, contain letterboxes it.
func compositeImage(canvas *image.RGBA, src image.Image, im *imageLayer, scale float64) {
	if src == nil {
		return
	}
	box := image.Rect(
		int(math.Round(im.x*scale)), int(math.Round(im.y*scale)),
		int(math.Round((im.x+im.w)*scale)), int(math.Round((im.y+im.h)*scale)),
	)
	if box.Empty() {
		return
	}

	sb := src.Bounds()
	srcRect, dstRect := sb, box
	if im.fit == render.FitContain {
		dstRect = fitRect(box, sb.Dx(), sb.Dy())
	} else {
		srcRect = fitRect(sb, box.Dx(), box.Dy())
	}

	if im.opacity >= 1 {
		draw.CatmullRom.Scale(canvas, dstRect, src, srcRect, draw.Over, nil)
		return
	}
	tmp := image.NewRGBA(dstRect)
	draw.CatmullRom.Scale(tmp, dstRect, src, srcRect, draw.Src, nil)
	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(im.opacity * 255))})
	draw.DrawMask(canvas, dstRect, tmp, dstRect.Min, mask, image.Point{}, draw.Over)
}

// fitRect returns the largest rect with the aspect ratio w:h centered in r.
func fitRect(r image.Rectangle, w, h int) image.Rectangle {
	if w <= 0 || h <= 0 {
		return r
	}
	rw, rh := float64(r.Dx()), float64(r.Dy())
	target := float64(w) / float64(h)
	cw, ch := rw, rh
	if rw/rh > target {
		cw = rh * target
	} else {
		ch = rw / target
	}
	x0 := r.Min.X + int(math.Round((rw-cw)/2))
	y0 := r.Min.Y + int(math.Round((rh-ch)/2))
	return image.Rect(x0, y0, x0+int(math.Round(cw)), y0+int(math.Round(ch)))
}

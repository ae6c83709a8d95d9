package render

import (
	"context"
	"math"

	"postforge/core"
)

// Options are the output parameters of one render.
type Options struct {
	Width             int
	Height            int
	Format            core.ImageFormat
	Quality           int
	DeviceScaleFactor float64
	Debug             bool
}

// OptionsFrom converts validated composition options.
func OptionsFrom(o core.RenderOptions) Options {
	return Options{
		Width:             o.Width,
		Height:            o.Height,
		Format:            o.Format,
		Quality:           o.Quality,
		DeviceScaleFactor: o.DeviceScaleFactor,
		Debug:             o.Debug,
	}
}

// Scale returns DeviceScaleFactor, treating zero as 1.
func (o Options) Scale() float64 {
	if o.DeviceScaleFactor <= 0 {
		return 1
	}
	return o.DeviceScaleFactor
}

// PixelSize is the output size in device pixels.
func (o Options) PixelSize() (int, int) {
	s := o.Scale()
	return int(math.Round(float64(o.Width) * s)), int(math.Round(float64(o.Height) * s))
}

// FitsWithin reports whether the device-pixel output fits maxWidth by
// maxHeight. A non-positive limit is unbounded.
func (o Options) FitsWithin(maxWidth, maxHeight int) bool {
	pw, ph := o.PixelSize()
	return (maxWidth <= 0 || pw <= maxWidth) && (maxHeight <= 0 || ph <= maxHeight)
}

// Feature names reported in Capabilities.
const (
	FeatureTextOverlay   = "text-overlay"
	FeatureLogo          = "logo"
	FeatureTemplates     = "templates"
	FeatureDeviceScale   = "device-scale-factor"
	FeatureWebFonts      = "web-fonts"
	FeatureDeterministic = "deterministic"
	FeatureDebugOutline  = "debug-outline"
)

// Capabilities describes what a backend can produce. MaxWidth and
// MaxHeight bound the output in device pixels.
type Capabilities struct {
	Engine    core.Engine        `json:"engine"`
	Formats   []core.ImageFormat `json:"formats"`
	MaxWidth  int                `json:"maxWidth"`
	MaxHeight int                `json:"maxHeight"`
	Features  []string           `json:"features"`
}

// SupportsFormat reports whether f is in the format set.
func (c Capabilities) SupportsFormat(f core.ImageFormat) bool {
	for _, have := range c.Formats {
		if have == f {
			return true
		}
	}
	return false
}

// HasFeature reports whether the backend lists feature.
func (c Capabilities) HasFeature(feature string) bool {
	for _, have := range c.Features {
		if have == feature {
			return true
		}
	}
	return false
}

// Backend renders a layout tree into an encoded image. Callers check
// Capabilities before calling Render.
type Backend interface {
	Kind() core.Engine
	Capabilities() Capabilities
	Render(ctx context.Context, root *Node, opts Options) ([]byte, error)
}

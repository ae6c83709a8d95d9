// Package compose validates composition requests and dispatches them to a
// render backend.
//
// Validation happens before any backend is touched: a malformed request
// returns *core.ValidationError and no rendering is attempted. Backend
// failures return *core.RenderError. Nothing here retries.
package compose

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"postforge/core"
	"postforge/logging"
	"postforge/render"
)

// Observer receives one call per backend render. The metrics package
// implements it.
type Observer interface {
	ObserveRender(engine core.Engine, outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveRender(core.Engine, string, time.Duration) {}

// Render outcomes passed to Observer.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Engine is the composition entry point. Safe for concurrent use.
type Engine struct {
	backends  map[core.Engine]render.Backend
	templates *Registry
	validate  *validator.Validate
	observer  Observer
	fetcher   Fetcher
	logger    *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver records render timings.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRegistry replaces the embedded template schemas.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) { e.templates = r }
}

// New creates an Engine over backends. Each engine kind may appear once.
func New(backends []render.Backend, opts ...Option) (*Engine, error) {
	e := &Engine{
		backends: make(map[core.Engine]render.Backend, len(backends)),
		validate: core.NewValidator(),
		observer: nopObserver{},
		logger:   logging.NewNop(),
	}
	for _, b := range backends {
		if b == nil {
			continue
		}
		if _, dup := e.backends[b.Kind()]; dup {
			return nil, fmt.Errorf("compose: duplicate backend %q", b.Kind())
		}
		e.backends[b.Kind()] = b
	}
	if len(e.backends) == 0 {
		return nil, errors.New("compose: at least one backend is required")
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.templates == nil {
		registry, err := LoadRegistry()
		if err != nil {
			return nil, err
		}
		e.templates = registry
	}
	e.logger = e.logger.Named("compose")
	return e, nil
}

// Capabilities lists every registered backend, sorted by engine name.
func (e *Engine) Capabilities() []render.Capabilities {
	caps := make([]render.Capabilities, 0, len(e.backends))
	for _, b := range e.backends {
		caps = append(caps, b.Capabilities())
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].Engine < caps[j].Engine })
	return caps
}

// Templates lists the template schemas.
func (e *Engine) Templates() []Template {
	return e.templates.List()
}

// Compose renders a generic post. An empty imageURL renders without a
// background image.
//
// Example:
//
//	res, err := engine.Compose(ctx, content, img.URL, core.CompositionSettings{
//	    LogoPosition: core.LogoBottomRight,
//	    TextOverlay:  true,
//	}, core.RenderOptions{Engine: core.EngineTreeToRaster, Width: 1080, Height: 1080, Format: core.FormatPNG})
func (e *Engine) Compose(ctx context.Context, content core.GeneratedContent, imageURL string, settings core.CompositionSettings, opts core.RenderOptions) (*core.CompositionResult, error) {
	if strings.TrimSpace(content.Caption) == "" {
		return nil, core.NewValidationError("caption", "must not be empty")
	}
	for i, tag := range content.Hashtags {
		if strings.HasPrefix(tag, "#") {
			return nil, core.NewValidationError(fmt.Sprintf("hashtags[%d]", i), "must not start with #")
		}
	}
	imageURL = strings.TrimSpace(imageURL)
	if err := e.validate.Var(imageURL, "omitempty,url|datauri"); err != nil {
		return nil, core.NewValidationError("imageUrl", "must be a valid URL")
	}
	if err := e.checkStruct(settings); err != nil {
		return nil, err
	}
	backend, err := e.selectBackend(opts)
	if err != nil {
		return nil, err
	}

	tree := PostTree(content, imageURL, settings, opts.Width, opts.Height)
	return e.render(ctx, backend, tree, opts, "compose", "")
}

// ComposeTemplate validates data against the templateID schema and renders
// the template tree.
func (e *Engine) ComposeTemplate(ctx context.Context, templateID string, data map[string]interface{}, opts core.RenderOptions) (*core.CompositionResult, error) {
	tmpl, ok := e.templates.Get(templateID)
	if !ok {
		return nil, core.NewValidationError("templateId", "unknown template %q", templateID)
	}
	values, err := tmpl.Validate(data)
	if err != nil {
		return nil, err
	}
	backend, err := e.selectBackend(opts)
	if err != nil {
		return nil, err
	}

	tree := builders[tmpl.ID](values, tmpl.Palette, float64(opts.Width), float64(opts.Height))
	return e.render(ctx, backend, tree, opts, "template", tmpl.ID)
}

// selectBackend validates opts against struct rules and the chosen
// backend's capabilities.
func (e *Engine) selectBackend(opts core.RenderOptions) (render.Backend, error) {
	if err := e.checkStruct(opts); err != nil {
		return nil, err
	}
	backend, ok := e.backends[opts.Engine]
	if !ok {
		return nil, core.NewValidationError("engine", "backend %q is not available", opts.Engine)
	}
	caps := backend.Capabilities()
	if !caps.SupportsFormat(opts.Format) {
		return nil, core.NewValidationError("format", "%q is not supported by the %s backend", opts.Format, opts.Engine)
	}
	if opts.DeviceScaleFactor > 0 && opts.DeviceScaleFactor != 1 && !caps.HasFeature(render.FeatureDeviceScale) {
		return nil, core.NewValidationError("deviceScaleFactor", "is not supported by the %s backend", opts.Engine)
	}
	ropts := render.OptionsFrom(opts)
	if !ropts.FitsWithin(caps.MaxWidth, caps.MaxHeight) {
		pw, ph := ropts.PixelSize()
		return nil, core.NewValidationError("size", "%dx%d device pixels exceeds %dx%d for the %s backend",
			pw, ph, caps.MaxWidth, caps.MaxHeight, opts.Engine)
	}
	return backend, nil
}

func (e *Engine) checkStruct(v interface{}) error {
	return core.ValidateStruct(e.validate, v)
}

func (e *Engine) render(ctx context.Context, backend render.Backend, tree *render.Node, opts core.RenderOptions, op, templateID string) (*core.CompositionResult, error) {
	ropts := render.OptionsFrom(opts)
	if err := e.inlineImages(ctx, tree); err != nil {
		e.logger.Warn("image fetch failed",
			zap.String("engine", string(backend.Kind())),
			zap.String("op", op),
			zap.Error(err))
		return nil, &core.RenderError{Engine: backend.Kind(), Op: op, Err: err}
	}
	start := time.Now()
	buf, err := backend.Render(ctx, tree, ropts)
	elapsed := time.Since(start)
	if err != nil {
		e.observer.ObserveRender(backend.Kind(), OutcomeError, elapsed)
		e.logger.Error("render failed",
			zap.String("engine", string(backend.Kind())),
			zap.String("op", op),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, &core.RenderError{Engine: backend.Kind(), Op: op, Err: err}
	}
	e.observer.ObserveRender(backend.Kind(), OutcomeSuccess, elapsed)

	pw, ph := ropts.PixelSize()
	e.logger.Info("rendered",
		zap.String("engine", string(backend.Kind())),
		zap.String("op", op),
		zap.String("template", templateID),
		zap.Int("bytes", len(buf)),
		zap.Duration("elapsed", elapsed))

	return &core.CompositionResult{
		Buffer: buf,
		Metadata: core.RenderMetadata{
			Width:        pw,
			Height:       ph,
			Format:       opts.Format,
			ByteSize:     len(buf),
			Engine:       backend.Kind(),
			RenderTimeMs: elapsed.Milliseconds(),
			Template:     templateID,
		},
	}, nil
}

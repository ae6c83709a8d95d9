// Package browser is the headless Chrome composition backend.
//
// A Browser owns at most one Chrome process, launched on first use. Every
// render opens its own tab, loads the tree as an HTML document, waits for
// images and takes a screenshot at the requested viewport.
//
// Usage:
//
//	b := browser.New(browser.NewChromeLauncher(browser.ChromeConfig{NoSandbox: true}))
//	defer b.Close()
//
//	png, err := b.Render(ctx, tree, render.Options{Width: 1080, Height: 1080, Format: core.FormatPNG})
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"postforge/core"
	"postforge/logging"
	"postforge/render"
)

// Maximum viewport in CSS pixels.
const (
	DefaultMaxWidth  = 8192
	DefaultMaxHeight = 8192
)

// ErrClosed is returned by Render after Close.
var ErrClosed = errors.New("browser: closed")

// Launcher starts a browser process.
type Launcher interface {
	Launch(ctx context.Context) (Instance, error)
}

// Instance is a running browser.
type Instance interface {
	NewTab(ctx context.Context) (Tab, error)
	Close() error
}

// Tab is an isolated page. Close must be called exactly once.
type Tab interface {
	Capture(ctx context.Context, html string, opts render.Options) ([]byte, error)
	Close() error
}

// Browser is the render.Backend backed by a lazily launched browser.
//
// Thread Safety: Browser is safe for concurrent use. Concurrent first
// callers share a single launch; a failed launch is retried by the next
// caller.
type Browser struct {
	launcher  Launcher
	maxWidth  int
	maxHeight int
	logger    *logging.Logger

	mu       sync.Mutex
	instance Instance
	launches int
	closed   bool
}

// Option configures a Browser.
type Option func(*Browser)

// WithMaxSize changes the maximum viewport.
func WithMaxSize(width, height int) Option {
	return func(b *Browser) { b.maxWidth, b.maxHeight = width, height }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Browser) { b.logger = l }
}

// New creates a Browser. Nothing is launched until the first Render.
func New(launcher Launcher, opts ...Option) *Browser {
	b := &Browser{
		launcher:  launcher,
		maxWidth:  DefaultMaxWidth,
		maxHeight: DefaultMaxHeight,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.Named("browser")
	return b
}

// Kind implements render.Backend.
func (b *Browser) Kind() core.Engine { return core.EngineBrowser }

// Capabilities implements render.Backend.
func (b *Browser) Capabilities() render.Capabilities {
	return render.Capabilities{
		Engine:    core.EngineBrowser,
		Formats:   []core.ImageFormat{core.FormatPNG, core.FormatJPEG, core.FormatWEBP},
		MaxWidth:  b.maxWidth,
		MaxHeight: b.maxHeight,
		Features: []string{
			render.FeatureTextOverlay,
			render.FeatureLogo,
			render.FeatureTemplates,
			render.FeatureDeviceScale,
			render.FeatureWebFonts,
			render.FeatureDebugOutline,
		},
	}
}

// Render implements render.Backend. The tab is closed on every path.
func (b *Browser) Render(ctx context.Context, root *render.Node, opts render.Options) ([]byte, error) {
	if !b.Capabilities().SupportsFormat(opts.Format) {
		return nil, fmt.Errorf("browser: format %q is not supported", opts.Format)
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("browser: invalid size %dx%d", opts.Width, opts.Height)
	}
	if !opts.FitsWithin(b.maxWidth, b.maxHeight) {
		pw, ph := opts.PixelSize()
		return nil, fmt.Errorf("browser: pixel size %dx%d exceeds %dx%d", pw, ph, b.maxWidth, b.maxHeight)
	}
	if err := render.Validate(root); err != nil {
		return nil, err
	}
	page := Document(root, opts)

	inst, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}

	tab, err := inst.NewTab(ctx)
	if err != nil {
		b.discard(inst)
		return nil, fmt.Errorf("browser: open tab: %w", err)
	}
	defer func() {
		if cerr := tab.Close(); cerr != nil {
			b.logger.Warn("failed to close tab", zap.Error(cerr))
		}
	}()

	buf, err := tab.Capture(ctx, page, opts)
	if err != nil {
		return nil, fmt.Errorf("browser: capture: %w", err)
	}
	if len(buf) == 0 {
		return nil, errors.New("browser: empty screenshot")
	}
	return buf, nil
}

// acquire returns the running instance, launching it under the lock when
// none exists.
func (b *Browser) acquire(ctx context.Context) (Instance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if b.instance != nil {
		return b.instance, nil
	}

	inst, err := b.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}
	b.instance = inst
	b.launches++
	b.logger.Info("browser launched", zap.Int("launches", b.launches))
	return inst, nil
}

// discard drops inst after a tab failure so the next render relaunches.
func (b *Browser) discard(inst Instance) {
	b.mu.Lock()
	if b.instance != inst {
		b.mu.Unlock()
		return
	}
	b.instance = nil
	b.mu.Unlock()

	if err := inst.Close(); err != nil {
		b.logger.Warn("failed to close browser", zap.Error(err))
	}
}

// Launches reports how many times a browser process was started.
func (b *Browser) Launches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.launches
}

// Close shuts the browser down. Later renders fail with ErrClosed.
func (b *Browser) Close() error {
	b.mu.Lock()
	inst := b.instance
	b.instance = nil
	b.closed = true
	b.mu.Unlock()

	if inst == nil {
		return nil
	}
	return inst.Close()
}

var _ render.Backend = (*Browser)(nil)

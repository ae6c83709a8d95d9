package compose

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"postforge/core"
	"postforge/render"
	"postforge/render/raster"
)

type fakeBackend struct {
	kind    core.Engine
	formats []core.ImageFormat
	maxSize int
	err     error
	calls   int
	tree    *render.Node
	opts    render.Options
}

func (f *fakeBackend) Kind() core.Engine { return f.kind }

func (f *fakeBackend) Capabilities() render.Capabilities {
	return render.Capabilities{
		Engine:    f.kind,
		Formats:   f.formats,
		MaxWidth:  f.maxSize,
		MaxHeight: f.maxSize,
		Features:  []string{render.FeatureDeviceScale},
	}
}

func (f *fakeBackend) Render(ctx context.Context, root *render.Node, opts render.Options) ([]byte, error) {
	f.calls++
	f.tree, f.opts = root, opts
	if f.err != nil {
		return nil, f.err
	}
	return []byte("rendered-" + string(opts.Format)), nil
}

func newFakes() (*fakeBackend, *fakeBackend) {
	return &fakeBackend{kind: core.EngineBrowser, formats: []core.ImageFormat{core.FormatPNG, core.FormatJPEG, core.FormatWEBP}, maxSize: 8192},
		&fakeBackend{kind: core.EngineTreeToRaster, formats: []core.ImageFormat{core.FormatPNG}, maxSize: 4096}
}

type recordingObserver struct {
	outcomes []string
}

func (r *recordingObserver) ObserveRender(engine core.Engine, outcome string, elapsed time.Duration) {
	r.outcomes = append(r.outcomes, string(engine)+":"+outcome)
}

func sampleContent() core.GeneratedContent {
	return core.GeneratedContent{Caption: "Rich chocolate cake in 30 minutes", Hashtags: []string{"baking", "chocolate"}}
}

func TestCompose_MetadataMatchesBuffer(t *testing.T) {
	browser, tree := newFakes()
	obs := &recordingObserver{}
	e, err := New([]render.Backend{browser, tree}, WithObserver(obs))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name    string
		opts    core.RenderOptions
		backend *fakeBackend
	}{
		{"browser jpeg", core.RenderOptions{Engine: core.EngineBrowser, Width: 1080, Height: 1080, Quality: 90, Format: core.FormatJPEG}, browser},
		{"browser webp", core.RenderOptions{Engine: core.EngineBrowser, Width: 1200, Height: 630, Format: core.FormatWEBP}, browser},
		{"raster png", core.RenderOptions{Engine: core.EngineTreeToRaster, Width: 1080, Height: 1080, Format: core.FormatPNG}, tree},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.backend.calls
			res, err := e.Compose(context.Background(), sampleContent(), "https://cdn.example.com/cake.png", core.CompositionSettings{TextOverlay: true}, tt.opts)
			if err != nil {
				t.Fatalf("Compose() error = %v", err)
			}
			if tt.backend.calls != before+1 {
				t.Errorf("backend calls = %d, want exactly one more", tt.backend.calls-before)
			}
			if res.Metadata.ByteSize != len(res.Buffer) {
				t.Errorf("ByteSize = %d, len(Buffer) = %d", res.Metadata.ByteSize, len(res.Buffer))
			}
			if res.Metadata.Format != tt.opts.Format {
				t.Errorf("Format = %q, want %q", res.Metadata.Format, tt.opts.Format)
			}
			if res.Metadata.Engine != tt.opts.Engine {
				t.Errorf("Engine = %q, want %q", res.Metadata.Engine, tt.opts.Engine)
			}
			if res.Metadata.Width != tt.opts.Width || res.Metadata.Height != tt.opts.Height {
				t.Errorf("size = %dx%d, want %dx%d", res.Metadata.Width, res.Metadata.Height, tt.opts.Width, tt.opts.Height)
			}
		})
	}
	if len(obs.outcomes) != 3 {
		t.Errorf("observed %d renders, want 3", len(obs.outcomes))
	}
}

func TestCompose_ValidationBeforeBackend(t *testing.T) {
	valid := core.RenderOptions{Engine: core.EngineTreeToRaster, Width: 1080, Height: 1080, Format: core.FormatPNG}
	tests := []struct {
		name     string
		content  core.GeneratedContent
		imageURL string
		settings core.CompositionSettings
		opts     core.RenderOptions
		field    string
	}{
		{"tree-to-raster jpeg", sampleContent(), "", core.CompositionSettings{}, core.RenderOptions{Engine: core.EngineTreeToRaster, Width: 1080, Height: 1080, Format: core.FormatJPEG}, "format"},
		{"empty caption", core.GeneratedContent{Caption: "  "}, "", core.CompositionSettings{}, valid, "caption"},
		{"hashtag marker", core.GeneratedContent{Caption: "x", Hashtags: []string{"#cake"}}, "", core.CompositionSettings{}, valid, "hashtags[0]"},
		{"bad url", sampleContent(), "not a url", core.CompositionSettings{}, valid, "imageUrl"},
		{"unknown engine", sampleContent(), "", core.CompositionSettings{}, core.RenderOptions{Engine: "canvas", Width: 10, Height: 10, Format: core.FormatPNG}, "engine"},
		{"zero width", sampleContent(), "", core.CompositionSettings{}, core.RenderOptions{Engine: core.EngineTreeToRaster, Width: 0, Height: 10, Format: core.FormatPNG}, "width"},
		{"negative height", sampleContent(), "", core.CompositionSettings{}, core.RenderOptions{Engine: core.EngineTreeToRaster, Width: 10, Height: -1, Format: core.FormatPNG}, "height"},
		{"quality above range", sampleContent(), "", core.CompositionSettings{}, core.RenderOptions{Engine: core.EngineBrowser, Width: 10, Height: 10, Quality: 101, Format: core.FormatJPEG}, "quality"},
		{"too wide for raster", sampleContent(), "", core.CompositionSettings{}, core.RenderOptions{Engine: core.EngineTreeToRaster, Width: 5000, Height: 10, Format: core.FormatPNG}, "size"},
		{"raster scaled past cap", sampleContent(), "", core.CompositionSettings{}, core.RenderOptions{Engine: core.EngineTreeToRaster, Width: 1080, Height: 1080, Format: core.FormatPNG, DeviceScaleFactor: 4}, "size"},
		{"browser scaled past cap", sampleContent(), "", core.CompositionSettings{}, core.RenderOptions{Engine: core.EngineBrowser, Width: 4096, Height: 4096, Format: core.FormatPNG, DeviceScaleFactor: 4}, "size"},
		{"scale factor", sampleContent(), "", core.CompositionSettings{}, core.RenderOptions{Engine: core.EngineTreeToRaster, Width: 10, Height: 10, Format: core.FormatPNG, DeviceScaleFactor: 5}, "deviceScaleFactor"},
		{"logo anchor", sampleContent(), "", core.CompositionSettings{LogoPosition: "middle"}, valid, "logoPosition"},
		{"brand color", sampleContent(), "", core.CompositionSettings{BrandColor: "blue"}, valid, "brandColor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			browser, tree := newFakes()
			e, err := New([]render.Backend{browser, tree})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			_, err = e.Compose(context.Background(), tt.content, tt.imageURL, tt.settings, tt.opts)
			var vErr *core.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Compose() error = %v, want ValidationError", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", vErr.Field, tt.field)
			}
			if browser.calls+tree.calls != 0 {
				t.Errorf("backend called %d times, want 0", browser.calls+tree.calls)
			}
		})
	}
}

func TestCompose_MissingBackendIsValidationError(t *testing.T) {
	_, tree := newFakes()
	e, err := New([]render.Backend{tree})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = e.Compose(context.Background(), sampleContent(), "", core.CompositionSettings{},
		core.RenderOptions{Engine: core.EngineBrowser, Width: 10, Height: 10, Format: core.FormatPNG})
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "engine" {
		t.Fatalf("Compose() error = %v, want engine ValidationError", err)
	}
}

func TestCompose_BackendFailureIsRenderError(t *testing.T) {
	browser, tree := newFakes()
	browser.err = errors.New("tab crashed")
	e, err := New([]render.Backend{browser, tree})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = e.Compose(context.Background(), sampleContent(), "", core.CompositionSettings{},
		core.RenderOptions{Engine: core.EngineBrowser, Width: 100, Height: 100, Format: core.FormatPNG})

	var rErr *core.RenderError
	if !errors.As(err, &rErr) {
		t.Fatalf("Compose() error = %v, want RenderError", err)
	}
	if rErr.Engine != core.EngineBrowser || !errors.Is(err, browser.err) {
		t.Errorf("RenderError = %+v, want browser engine wrapping backend error", rErr)
	}
	if got := core.ToPayload(err); got.Code != core.CodeRender || got.Retryable {
		t.Errorf("payload = %+v", got)
	}
	if browser.calls != 1 {
		t.Errorf("backend calls = %d, want 1 (no retry)", browser.calls)
	}
}

func TestCompose_DataURLAndDeviceScale(t *testing.T) {
	browser, tree := newFakes()
	e, err := New([]render.Backend{browser, tree})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := e.Compose(context.Background(), sampleContent(), "data:image/png;base64,iVBORw0KGgo=", core.CompositionSettings{},
		core.RenderOptions{Engine: core.EngineBrowser, Width: 540, Height: 540, Format: core.FormatPNG, DeviceScaleFactor: 2})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if res.Metadata.Width != 1080 || res.Metadata.Height != 1080 {
		t.Errorf("size = %dx%d, want 1080x1080 device pixels", res.Metadata.Width, res.Metadata.Height)
	}
	if browser.opts.DeviceScaleFactor != 2 {
		t.Errorf("backend DeviceScaleFactor = %v, want 2", browser.opts.DeviceScaleFactor)
	}
}

func TestCompose_ScaledSizeAtCapIsAccepted(t *testing.T) {
	browser, tree := newFakes()
	e, err := New([]render.Backend{browser, tree})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := e.Compose(context.Background(), sampleContent(), "", core.CompositionSettings{},
		core.RenderOptions{Engine: core.EngineBrowser, Width: 2048, Height: 2048, Format: core.FormatPNG, DeviceScaleFactor: 4})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if res.Metadata.Width != 8192 || res.Metadata.Height != 8192 {
		t.Errorf("size = %dx%d, want 8192x8192", res.Metadata.Width, res.Metadata.Height)
	}
}

func TestCompose_RasterIsDeterministic(t *testing.T) {
	e, err := New([]render.Backend{raster.New()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	opts := core.RenderOptions{Engine: core.EngineTreeToRaster, Width: 320, Height: 320, Format: core.FormatPNG}
	settings := core.CompositionSettings{TextOverlay: true, BrandColor: "#7c2d12"}

	first, err := e.Compose(context.Background(), sampleContent(), "", settings, opts)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	second, err := e.Compose(context.Background(), sampleContent(), "", settings, opts)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !bytes.Equal(first.Buffer, second.Buffer) {
		t.Error("tree-to-raster output differs between identical requests")
	}
	if !bytes.HasPrefix(first.Buffer, []byte("\x89PNG")) {
		t.Error("output is not a PNG")
	}
}

func TestNew(t *testing.T) {
	browser, _ := newFakes()
	if _, err := New(nil); err == nil {
		t.Error("New(nil) error = nil")
	}
	if _, err := New([]render.Backend{browser, browser}); err == nil {
		t.Error("New() with duplicate backends error = nil")
	}
}

func TestCapabilities_Sorted(t *testing.T) {
	browser, tree := newFakes()
	e, err := New([]render.Backend{tree, browser})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	caps := e.Capabilities()
	if len(caps) != 2 || caps[0].Engine != core.EngineBrowser || caps[1].Engine != core.EngineTreeToRaster {
		t.Errorf("Capabilities() = %+v", caps)
	}
}

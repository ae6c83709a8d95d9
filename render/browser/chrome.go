package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"postforge/core"
	"postforge/render"
)

// DefaultLoadTimeout bounds document load, image wait and screenshot.
const DefaultLoadTimeout = 30 * time.Second

const imagesReadyJS = `document.readyState === "complete" && Array.from(document.images).every(function (i) { return i.complete; })`

// ChromeConfig configures the chromedp launcher.
type ChromeConfig struct {
	// ExecPath overrides Chrome discovery.
	ExecPath    string
	// NoSandbox is needed when running as root in containers.
	NoSandbox   bool
	LoadTimeout time.Duration
}

// ChromeLauncher starts headless Chrome through chromedp.
type ChromeLauncher struct {
	cfg ChromeConfig
}

// NewChromeLauncher creates a launcher for cfg.
func NewChromeLauncher(cfg ChromeConfig) *ChromeLauncher {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	return &ChromeLauncher{cfg: cfg}
}

// Launch implements Launcher. The process is detached from ctx so it
// outlives the request that started it.
func (l *ChromeLauncher) Launch(ctx context.Context) (Instance, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if l.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, err
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, ctx.Err()
	}

	return &chromeInstance{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		loadTimeout: l.cfg.LoadTimeout,
	}, nil
}

type chromeInstance struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	loadTimeout time.Duration
}

func (i *chromeInstance) NewTab(ctx context.Context) (Tab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, cancel := chromedp.NewContext(i.ctx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, err
	}
	return &chromeTab{ctx: tabCtx, cancel: cancel, loadTimeout: i.loadTimeout}, nil
}

func (i *chromeInstance) Close() error {
	err := chromedp.Cancel(i.ctx)
	i.cancel()
	i.allocCancel()
	return err
}

type chromeTab struct {
	ctx         context.Context
	cancel      context.CancelFunc
	loadTimeout time.Duration
}

func (t *chromeTab) Capture(ctx context.Context, html string, opts render.Options) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(t.ctx, t.loadTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	format, err := screenshotFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	var (
		buf   []byte
		ready bool
	)
	err = chromedp.Run(runCtx,
		emulation.SetDeviceMetricsOverride(int64(opts.Width), int64(opts.Height), opts.Scale(), false),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("frame tree: %w", err)
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.Poll(imagesReadyJS, &ready, chromedp.WithPollingInterval(50*time.Millisecond)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			params := page.CaptureScreenshot().
				WithFormat(format).
				WithFromSurface(true).
				WithClip(&page.Viewport{
					Width:  float64(opts.Width),
					Height: float64(opts.Height),
					Scale:  1,
				})
			if format != page.CaptureScreenshotFormatPng {
				params = params.WithQuality(int64(opts.Quality))
			}
			var err error
			buf, err = params.Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (t *chromeTab) Close() error {
	err := chromedp.Cancel(t.ctx)
	t.cancel()
	return err
}

func screenshotFormat(f core.ImageFormat) (page.CaptureScreenshotFormat, error) {
	switch f {
	case core.FormatPNG:
		return page.CaptureScreenshotFormatPng, nil
	case core.FormatJPEG:
		return page.CaptureScreenshotFormatJpeg, nil
	case core.FormatWEBP:
		return page.CaptureScreenshotFormatWebp, nil
	default:
		return "", fmt.Errorf("unsupported screenshot format %q", f)
	}
}

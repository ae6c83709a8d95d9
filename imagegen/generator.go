package imagegen

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"postforge/core"
	"postforge/logging"
	"postforge/retry"
)

// Component labels image attempts in logs and metrics.
const Component = "image"

// Fetcher downloads image bytes. *Downloader implements it.
type Fetcher interface {
	DownloadBytes(ctx context.Context, url string) ([]byte, string, error)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Policy   retry.ImagePolicy
	Defaults Options
	Fetcher  Fetcher
	Sleep    retry.Sleeper
	Observer retry.Observer
	Logger   *logging.Logger
}

// Client generates images with provider fallback.
//
// Thread-Safety: Client is safe for concurrent use. Providers and the
// fetcher are shared, all per-call state lives on the stack.
type Client struct {
	providers []Provider
	policy    retry.ImagePolicy
	defaults  Options
	fetcher   Fetcher
	sleep     retry.Sleeper
	observer  retry.Observer
	logger    *logging.Logger
}

// NewClient creates a client over providers in fallback order.
func NewClient(providers []Provider, opts ClientOptions) (*Client, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	for i, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("imagegen: provider %d is nil", i)
		}
	}
	if opts.Fetcher == nil {
		opts.Fetcher = NewDownloader(nil)
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}
	if opts.Observer == nil {
		opts.Observer = retry.NopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Client{
		providers: append([]Provider(nil), providers...),
		policy:    opts.Policy,
		defaults:  opts.Defaults,
		fetcher:   opts.Fetcher,
		sleep:     opts.Sleep,
		observer:  opts.Observer,
		logger:    opts.Logger.Named("imagegen"),
	}, nil
}

// NewClientFromConfig builds every provider named in cfg.ImageProviders.
//
// Provider selection follows the configured order. Returns ErrNoProviders
// when the list is empty, so callers can treat images as disabled.
//
// Example:
//
//	client, err := imagegen.NewClientFromConfig(ctx, cfg, core.NewHTTPClient(cfg), logger, observer)
//	if errors.Is(err, imagegen.ErrNoProviders) {
//	    // text-only posts
//	}
func NewClientFromConfig(ctx context.Context, cfg *core.Config, httpClient *http.Client, logger *logging.Logger, observer retry.Observer) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("imagegen: config cannot be nil")
	}

	var providers []Provider
	for _, name := range cfg.ImageProviders {
		var (
			p   Provider
			err error
		)
		switch strings.ToLower(name) {
		case ProviderOpenAI:
			p, err = NewOpenAIProvider(cfg, httpClient)
		case ProviderAzure:
			p, err = NewAzureProvider(cfg, httpClient)
		case ProviderGemini:
			p, err = NewGeminiProvider(ctx, cfg, httpClient)
		default:
			err = fmt.Errorf("imagegen: unknown provider %q", name)
		}
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	return NewClient(providers, ClientOptions{
		Policy:   PolicyFromConfig(cfg),
		Defaults: Options{Size: cfg.ImageSize, Quality: cfg.ImageQuality, Style: cfg.ImageStyle},
		Fetcher:  NewDownloader(httpClient),
		Observer: observer,
		Logger:   logger,
	})
}

// PolicyFromConfig builds the image retry ladder from configuration.
func PolicyFromConfig(cfg *core.Config) retry.ImagePolicy {
	return retry.ImagePolicy{
		MaxRetries:      cfg.ImageMaxRetries,
		RateLimitBase:   cfg.ImageRateLimitBase,
		ServerErrorBase: cfg.ImageServerErrorBase,
		NetworkBase:     cfg.ImageNetworkBase,
		Max:             cfg.ImageRetryMax,
	}
}

// Providers returns the provider names in fallback order.
func (c *Client) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// HasProvider reports whether name is configured.
func (c *Client) HasProvider(name string) bool {
	for _, p := range c.providers {
		if strings.EqualFold(p.Name(), name) {
			return true
		}
	}
	return false
}

// Generate creates one image for prompt.
//
// The hinted provider (opts.Provider) is tried first, then the rest in
// configured order, each with its own retry ladder. On success the image is
// downloaded if the provider only returned a URL; a failed download is
// logged and leaves Data empty. When every provider fails the error is a
// *core.TransientProviderError or *core.PermanentProviderError wrapping the
// last underlying error.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (*core.ImageResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, core.NewValidationError("prompt", "image prompt cannot be empty")
	}
	opts = c.withDefaults(opts)

	policy := c.policy
	if opts.MaxRetries > 0 {
		policy.MaxRetries = opts.MaxRetries
	}

	order := c.ordered(opts.Provider)

	var (
		lastErr      error
		lastClass    retry.ErrorClass
		lastProvider Provider
		total        int
	)

	for pi, provider := range order {
		for attempt := 1; ; attempt++ {
			total++
			start := time.Now()
			img, err := provider.Generate(ctx, prompt, opts)
			elapsed := time.Since(start)

			if err == nil {
				c.observer.ObserveAttempt(Component, provider.Name(), provider.Model(), retry.OutcomeSuccess, elapsed)
				c.logger.Info("image generated",
					zap.String("provider", provider.Name()),
					zap.String("model", provider.Model()),
					zap.Int("attempts", total),
					zap.Duration("elapsed", elapsed))
				return c.finish(ctx, provider, img, opts, total), nil
			}

			class := Classify(err)
			c.observer.ObserveAttempt(Component, provider.Name(), provider.Model(), class.String(), elapsed)
			lastErr, lastClass, lastProvider = err, class, provider

			decision := retry.Next(policy, pi, len(order), attempt, class)
			c.logger.Warn("image attempt failed",
				zap.String("provider", provider.Name()),
				zap.Int("attempt", attempt),
				zap.String("class", class.String()),
				zap.String("decision", decision.Action.String()),
				zap.Duration("delay", decision.Delay),
				zap.Error(err))

			if decision.Action != retry.RetrySame {
				break
			}
			if err := c.sleep(ctx, decision.Delay); err != nil {
				return nil, fmt.Errorf("imagegen: interrupted while backing off: %w", err)
			}
		}
	}

	status := StatusCode(lastErr)
	if lastClass.Transient() {
		return nil, &core.TransientProviderError{Provider: lastProvider.Name(), Model: lastProvider.Model(), StatusCode: status, Attempts: total, Err: lastErr}
	}
	return nil, &core.PermanentProviderError{Provider: lastProvider.Name(), Model: lastProvider.Model(), StatusCode: status, Attempts: total, Err: lastErr}
}

func (c *Client) withDefaults(opts Options) Options {
	if opts.Size == "" {
		opts.Size = c.defaults.Size
	}
	if opts.Quality == "" {
		opts.Quality = c.defaults.Quality
	}
	if opts.Style == "" {
		opts.Style = c.defaults.Style
	}
	return opts
}

// ordered moves the hinted provider to the front. An unknown hint keeps the
// configured order.
func (c *Client) ordered(hint string) []Provider {
	if hint == "" {
		return c.providers
	}
	order := make([]Provider, 0, len(c.providers))
	for _, p := range c.providers {
		if strings.EqualFold(p.Name(), hint) {
			order = append(order, p)
		}
	}
	for _, p := range c.providers {
		if !strings.EqualFold(p.Name(), hint) {
			order = append(order, p)
		}
	}
	return order
}

func (c *Client) finish(ctx context.Context, provider Provider, img *Image, opts Options, attempts int) *core.ImageResult {
	result := &core.ImageResult{
		URL:           img.URL,
		Data:          img.Data,
		ContentType:   img.ContentType,
		RevisedPrompt: img.RevisedPrompt,
		Provider:      provider.Name(),
		Model:         provider.Model(),
		Attempts:      attempts,
	}

	if len(result.Data) == 0 && result.URL != "" {
		data, contentType, err := c.fetcher.DownloadBytes(ctx, result.URL)
		if err != nil {
			c.logger.Warn("image download failed; keeping URL only",
				zap.String("provider", provider.Name()),
				zap.Error(err))
		} else {
			result.Data = data
			result.ContentType = contentType
		}
	}

	if w, h, err := ParseSize(opts.Size); err == nil {
		result.Metadata.Width, result.Metadata.Height = w, h
	}
	result.Metadata.Format = formatFromContentType(result.ContentType)
	result.Metadata.ByteSize = len(result.Data)
	return result
}

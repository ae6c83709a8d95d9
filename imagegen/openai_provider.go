package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"postforge/core"
)

// ImageCreator is the subset of *openai.Client the OpenAI and Azure
// providers need.
type ImageCreator interface {
	CreateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error)
}

var _ ImageCreator = (*openai.Client)(nil)

// OpenAIProvider implements Provider for the OpenAI images API.
//
// DALL-E models answer with a temporary URL. gpt-image models only return
// base64 payloads, which are decoded into Image.Data.
//
// Thread Safety: OpenAIProvider is safe for concurrent use.
// The underlying OpenAI client handles connection pooling.
type OpenAIProvider struct {
	api   ImageCreator
	name  string
	model string
}

// NewOpenAIProvider creates the OpenAI image provider from cfg.
//
// ImageBaseURL overrides the API endpoint, for proxies and compatible
// services. Returns an error when neither an API key nor a base URL is set.
func NewOpenAIProvider(cfg *core.Config, httpClient *http.Client) (*OpenAIProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("imagegen: config cannot be nil")
	}
	if cfg.OpenAIAPIKey == "" && cfg.ImageBaseURL == "" {
		return nil, fmt.Errorf("imagegen: OpenAI API key is required for image generation")
	}

	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.ImageBaseURL != "" {
		clientConfig.BaseURL = cfg.ImageBaseURL
	}
	if httpClient != nil {
		clientConfig.HTTPClient = httpClient
	}

	return NewOpenAIProviderWithClient(openai.NewClientWithConfig(clientConfig), cfg.OpenAIImageModel), nil
}

// NewOpenAIProviderWithClient wraps an existing client. An empty model
// defaults to dall-e-3.
func NewOpenAIProviderWithClient(api ImageCreator, model string) *OpenAIProvider {
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	return &OpenAIProvider{api: api, name: ProviderOpenAI, model: model}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return p.name }

// Model implements Provider.
func (p *OpenAIProvider) Model() string { return p.model }

// Generate implements Provider.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts Options) (*Image, error) {
	if prompt == "" {
		return nil, fmt.Errorf("imagegen: prompt cannot be empty")
	}

	response, err := p.api.CreateImage(ctx, buildImageRequest(p.model, prompt, opts))
	if err != nil {
		return nil, fmt.Errorf("imagegen: %s image generation failed: %w", p.name, err)
	}
	return imageFromResponse(response)
}

// buildImageRequest shapes the request for the model family. DALL-E accepts
// style and standard/hd quality; gpt-image accepts neither and has no URL
// response format.
func buildImageRequest(model, prompt string, opts Options) openai.ImageRequest {
	req := openai.ImageRequest{
		Prompt: prompt,
		Model:  model,
		Size:   opts.Size,
		N:      1,
	}

	if isGPTImageModel(model) {
		switch opts.Quality {
		case "low", "medium", "high", "auto":
			req.Quality = opts.Quality
		}
		return req
	}

	req.ResponseFormat = openai.CreateImageResponseFormatURL
	if isDalle3(model) {
		if opts.Quality == openai.CreateImageQualityHD || opts.Quality == openai.CreateImageQualityStandard {
			req.Quality = opts.Quality
		}
		switch opts.Style {
		case openai.CreateImageStyleVivid, openai.CreateImageStyleNatural:
			req.Style = opts.Style
		case "":
			req.Style = openai.CreateImageStyleVivid
		}
	}
	return req
}

func imageFromResponse(response openai.ImageResponse) (*Image, error) {
	if len(response.Data) == 0 {
		return nil, ErrEmptyResponse
	}
	item := response.Data[0]

	img := &Image{URL: item.URL, RevisedPrompt: item.RevisedPrompt}
	if item.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("%w: undecodable base64 payload: %v", ErrEmptyResponse, err)
		}
		img.Data = data
		img.ContentType = http.DetectContentType(data)
	}
	if img.URL == "" && len(img.Data) == 0 {
		return nil, ErrEmptyResponse
	}
	return img, nil
}

func isGPTImageModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(model), "gpt-image")
}

// isDalle3 matches both model names and Azure deployment names such as
// "dalle3" or "my-dall-e-3".
func isDalle3(model string) bool {
	lower := strings.ToLower(model)
	return strings.Contains(lower, "dall-e-3") ||
		strings.Contains(lower, "dalle3") ||
		strings.Contains(lower, "dalle-3")
}

var _ Provider = (*OpenAIProvider)(nil)

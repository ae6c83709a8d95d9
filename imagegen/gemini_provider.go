package imagegen

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"postforge/core"
)

// ContentGenerator is the subset of *genai.Models the Gemini provider needs.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

var _ ContentGenerator = (*genai.Models)(nil)

// GeminiProvider implements Provider with Gemini image models. Images come
// back inline, so Image.URL is always empty.
type GeminiProvider struct {
	api   ContentGenerator
	model string
}

// NewGeminiProvider creates a Gemini API client for cfg.GeminiAPIKey.
func NewGeminiProvider(ctx context.Context, cfg *core.Config, httpClient *http.Client) (*GeminiProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("imagegen: config cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("imagegen: Gemini API key is required; set GEMINI_API_KEY")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.GeminiAPIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("imagegen: failed to create Gemini client: %w", err)
	}
	return NewGeminiProviderWithClient(client.Models, cfg.GeminiImageModel), nil
}

// NewGeminiProviderWithClient wraps an existing content generator.
func NewGeminiProviderWithClient(api ContentGenerator, model string) *GeminiProvider {
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	return &GeminiProvider{api: api, model: model}
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return ProviderGemini }

// Model implements Provider.
func (p *GeminiProvider) Model() string { return p.model }

// Generate implements Provider. Style and size are folded into the prompt
// because the content API has no dedicated parameters for them.
func (p *GeminiProvider) Generate(ctx context.Context, prompt string, opts Options) (*Image, error) {
	if prompt == "" {
		return nil, fmt.Errorf("imagegen: prompt cannot be empty")
	}

	text := prompt
	if opts.Style != "" {
		text += "\nStyle: " + opts.Style
	}
	if w, h, err := ParseSize(opts.Size); err == nil && w != h {
		orientation := "landscape"
		if h > w {
			orientation = "portrait"
		}
		text += "\nComposition: " + orientation
	}

	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	resp, err := p.api.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	})
	if err != nil {
		return nil, fmt.Errorf("imagegen: gemini image generation failed: %w", err)
	}
	return imageFromGemini(resp)
}

func imageFromGemini(resp *genai.GenerateContentResponse) (*Image, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrEmptyResponse
	}

	var (
		img   *Image
		notes []string
	)
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 && img == nil {
			contentType := part.InlineData.MIMEType
			if contentType == "" {
				contentType = http.DetectContentType(part.InlineData.Data)
			}
			img = &Image{Data: part.InlineData.Data, ContentType: contentType}
		}
		if text := strings.TrimSpace(part.Text); text != "" {
			notes = append(notes, text)
		}
	}
	if img == nil {
		return nil, ErrEmptyResponse
	}
	img.RevisedPrompt = strings.Join(notes, " ")
	return img, nil
}

var _ Provider = (*GeminiProvider)(nil)

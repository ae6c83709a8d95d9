// Package imagegen generates post images through remote providers.
//
// A Client walks an ordered list of Providers. Each provider gets its own
// retry ladder (see retry.ImagePolicy); the first provider that returns an
// image wins. Downloading the image bytes afterwards is best effort.
package imagegen

import (
	"context"
	"errors"
)

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
	ProviderGemini = "gemini"
)

var (
	// ErrEmptyResponse is returned when a provider answers without an image.
	ErrEmptyResponse = errors.New("imagegen: provider returned no image")
	// ErrNoProviders is returned by a Client without providers.
	ErrNoProviders = errors.New("imagegen: no image providers configured")
)

// Options tunes one generation call.
type Options struct {
	Size    string
	Quality string
	Style   string

	// MaxRetries bounds attempts per provider. Zero uses the client policy.
	MaxRetries int

	// Provider, when set, is tried before the configured fallback order.
	Provider string
}

// Image is a provider's raw answer. Providers return a URL, bytes, or both.
type Image struct {
	URL           string
	Data          []byte
	ContentType   string
	RevisedPrompt string
}

// Provider is one remote image generation backend.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, prompt string, opts Options) (*Image, error)
}

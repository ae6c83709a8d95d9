package imagegen

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"postforge/core"
)

// NewAzureProvider creates an Azure OpenAI image provider.
//
// Azure addresses models by deployment name, so the deployment doubles as
// the model id. Returns an error if:
//   - The endpoint is empty or not an Azure endpoint
//   - The API key is empty
//   - The deployment name is empty
func NewAzureProvider(cfg *core.Config, httpClient *http.Client) (*OpenAIProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("imagegen: config cannot be nil")
	}
	if cfg.AzureOpenAIKey == "" {
		return nil, fmt.Errorf("imagegen: Azure API key is required; set AZURE_OPENAI_KEY")
	}
	if cfg.AzureOpenAIEndpoint == "" {
		return nil, fmt.Errorf("imagegen: Azure endpoint is required; set AZURE_OPENAI_ENDPOINT")
	}
	if !IsAzureEndpoint(cfg.AzureOpenAIEndpoint) {
		return nil, fmt.Errorf("imagegen: endpoint (%s) is not an Azure OpenAI endpoint", cfg.AzureOpenAIEndpoint)
	}
	deployment := strings.TrimSpace(cfg.AzureOpenAIDeployment)
	if deployment == "" {
		return nil, fmt.Errorf("imagegen: Azure deployment name is required; set AZURE_OPENAI_DEPLOYMENT")
	}

	clientConfig := openai.DefaultAzureConfig(cfg.AzureOpenAIKey, cfg.AzureOpenAIEndpoint)
	if cfg.AzureOpenAIAPIVersion != "" {
		clientConfig.APIVersion = cfg.AzureOpenAIAPIVersion
	}
	clientConfig.AzureModelMapperFunc = func(string) string { return deployment }
	if httpClient != nil {
		clientConfig.HTTPClient = httpClient
	}

	return NewAzureProviderWithClient(openai.NewClientWithConfig(clientConfig), deployment), nil
}

// NewAzureProviderWithClient wraps an existing Azure-configured client.
func NewAzureProviderWithClient(api ImageCreator, deployment string) *OpenAIProvider {
	return &OpenAIProvider{api: api, name: ProviderAzure, model: deployment}
}

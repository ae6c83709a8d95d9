package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"

	"postforge/core"
	"postforge/retry"
)

type fakeCreator struct {
	req  openai.ImageRequest
	resp openai.ImageResponse
	err  error
}

func (f *fakeCreator) CreateImage(_ context.Context, req openai.ImageRequest) (openai.ImageResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestBuildImageRequest(t *testing.T) {
	tests := []struct {
		name       string
		model      string
		opts       Options
		wantFormat string
		wantStyle  string
		wantQual   string
	}{
		{"dalle3 defaults to vivid", "dall-e-3", Options{Size: "1024x1024"}, openai.CreateImageResponseFormatURL, openai.CreateImageStyleVivid, ""},
		{"dalle3 natural hd", "dall-e-3", Options{Style: "natural", Quality: "hd"}, openai.CreateImageResponseFormatURL, "natural", "hd"},
		{"dalle3 unknown style dropped", "dall-e-3", Options{Style: "pastel"}, openai.CreateImageResponseFormatURL, "", ""},
		{"azure dalle3 deployment", "my-dalle3", Options{}, openai.CreateImageResponseFormatURL, openai.CreateImageStyleVivid, ""},
		{"dalle2 has no style", "dall-e-2", Options{Style: "vivid", Quality: "hd"}, openai.CreateImageResponseFormatURL, "", ""},
		{"gpt-image has no url format", "gpt-image-1", Options{Style: "vivid", Quality: "high"}, "", "", "high"},
		{"gpt-image drops dalle quality", "gpt-image-1", Options{Quality: "standard"}, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := buildImageRequest(tt.model, "prompt", tt.opts)
			if req.ResponseFormat != tt.wantFormat || req.Style != tt.wantStyle || req.Quality != tt.wantQual {
				t.Errorf("format=%q style=%q quality=%q", req.ResponseFormat, req.Style, req.Quality)
			}
			if req.N != 1 || req.Model != tt.model || req.Size != tt.opts.Size {
				t.Errorf("unexpected request %+v", req)
			}
		})
	}
}

func TestOpenAIProviderGenerate(t *testing.T) {
	api := &fakeCreator{resp: openai.ImageResponse{Data: []openai.ImageResponseDataInner{{URL: "https://img/1", RevisedPrompt: "better"}}}}
	p := NewOpenAIProviderWithClient(api, "")

	img, err := p.Generate(context.Background(), "a cat", Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if img.URL != "https://img/1" || img.RevisedPrompt != "better" {
		t.Errorf("img = %+v", img)
	}
	if p.Model() != "dall-e-3" || p.Name() != ProviderOpenAI {
		t.Errorf("name=%q model=%q", p.Name(), p.Model())
	}
	if api.req.Prompt != "a cat" {
		t.Errorf("prompt = %q", api.req.Prompt)
	}
}

func TestOpenAIProviderDecodesBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(pngBytes)
	api := &fakeCreator{resp: openai.ImageResponse{Data: []openai.ImageResponseDataInner{{B64JSON: encoded}}}}
	p := NewOpenAIProviderWithClient(api, "gpt-image-1")

	img, err := p.Generate(context.Background(), "a cat", Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(img.Data) != string(pngBytes) || img.ContentType != "image/png" {
		t.Errorf("data=%q type=%q", img.Data, img.ContentType)
	}
}

func TestOpenAIProviderEmptyResponses(t *testing.T) {
	tests := []struct {
		name string
		resp openai.ImageResponse
	}{
		{"no data", openai.ImageResponse{}},
		{"blank item", openai.ImageResponse{Data: []openai.ImageResponseDataInner{{}}}},
		{"bad base64", openai.ImageResponse{Data: []openai.ImageResponseDataInner{{B64JSON: "!!!"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewOpenAIProviderWithClient(&fakeCreator{resp: tt.resp}, "dall-e-3")
			_, err := p.Generate(context.Background(), "a cat", Options{})
			if !errors.Is(err, ErrEmptyResponse) {
				t.Fatalf("err = %v, want ErrEmptyResponse", err)
			}
			if Classify(err) != retry.ClassInvalidResponse {
				t.Errorf("class = %v", Classify(err))
			}
		})
	}
}

func TestOpenAIProviderRejectsEmptyPrompt(t *testing.T) {
	p := NewOpenAIProviderWithClient(&fakeCreator{}, "dall-e-3")
	if _, err := p.Generate(context.Background(), "", Options{}); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestOpenAIProviderOverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			http.NotFound(w, r)
			return
		}
		var req openai.ImageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Prompt == "rate me" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"created":1,"data":[{"url":"https://cdn/img.png","revised_prompt":"rp"}]}`))
	}))
	defer server.Close()

	p, err := NewOpenAIProvider(&core.Config{OpenAIAPIKey: "sk-test", ImageBaseURL: server.URL, OpenAIImageModel: "dall-e-3"}, server.Client())
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}

	img, err := p.Generate(context.Background(), "a cat", Options{Size: "1024x1024"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if img.URL != "https://cdn/img.png" || img.RevisedPrompt != "rp" {
		t.Errorf("img = %+v", img)
	}

	_, err = p.Generate(context.Background(), "rate me", Options{})
	if got := Classify(err); got != retry.ClassRateLimited {
		t.Errorf("class = %v, want rate_limited (err %v)", got, err)
	}
}

func TestNewOpenAIProviderRequiresCredentials(t *testing.T) {
	if _, err := NewOpenAIProvider(nil, nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewOpenAIProvider(&core.Config{}, nil); err == nil {
		t.Error("expected error without key or base URL")
	}
}

func TestNewAzureProvider(t *testing.T) {
	valid := core.Config{
		AzureOpenAIKey:        "key",
		AzureOpenAIEndpoint:   "https://res.openai.azure.com/",
		AzureOpenAIDeployment: "dalle3",
	}

	p, err := NewAzureProvider(&valid, nil)
	if err != nil {
		t.Fatalf("NewAzureProvider: %v", err)
	}
	if p.Name() != ProviderAzure || p.Model() != "dalle3" {
		t.Errorf("name=%q model=%q", p.Name(), p.Model())
	}

	tests := []struct {
		name   string
		mutate func(c *core.Config)
	}{
		{"missing key", func(c *core.Config) { c.AzureOpenAIKey = "" }},
		{"missing endpoint", func(c *core.Config) { c.AzureOpenAIEndpoint = "" }},
		{"non azure endpoint", func(c *core.Config) { c.AzureOpenAIEndpoint = "https://api.openai.com/v1" }},
		{"missing deployment", func(c *core.Config) { c.AzureOpenAIDeployment = " " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if _, err := NewAzureProvider(&cfg, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAzureProviderOverHTTP(t *testing.T) {
	var gotPath, gotVersion, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotVersion = r.URL.Query().Get("api-version")
		gotKey = r.Header.Get("api-key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"created":1,"data":[{"url":"https://blob/img.png"}]}`))
	}))
	defer server.Close()

	// httptest URLs are not Azure hosts, so build the client directly.
	clientConfig := openai.DefaultAzureConfig("azure-key", server.URL)
	clientConfig.APIVersion = "2024-02-01"
	clientConfig.AzureModelMapperFunc = func(string) string { return "dalle3" }
	clientConfig.HTTPClient = server.Client()
	p := NewAzureProviderWithClient(openai.NewClientWithConfig(clientConfig), "dalle3")

	img, err := p.Generate(context.Background(), "a cat", Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if img.URL != "https://blob/img.png" {
		t.Errorf("url = %q", img.URL)
	}
	if gotPath != "/openai/deployments/dalle3/images/generations" || gotVersion != "2024-02-01" || gotKey != "azure-key" {
		t.Errorf("path=%q version=%q key=%q", gotPath, gotVersion, gotKey)
	}
}

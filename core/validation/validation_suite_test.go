package validation

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"postforge/core"
)

func testConfig(t *testing.T) *core.Config {
	t.Helper()
	dir := t.TempDir()
	return &core.Config{
		OpenAIAPIKey:   "sk-test",
		TextModels:     []string{"gpt-4o"},
		ImageProviders: []string{"openai"},
		OutputDir:      filepath.Join(dir, "output"),
		DatabasePath:   filepath.Join(dir, "data", "postforge.db"),
		DefaultEngine:  string(core.EngineTreeToRaster),
	}
}

func TestValidationSuite_Passes(t *testing.T) {
	var out bytes.Buffer
	result := NewValidationSuite(testConfig(t)).
		WithOutput(&out).
		WithEnvPath(filepath.Join(t.TempDir(), "missing.env")).
		Validate(context.Background())

	if !result.Success {
		t.Fatalf("Success = false, first error: %v", result.FirstError())
	}
	if result.Warnings != 1 {
		t.Errorf("Warnings = %d, want 1 (missing .env)", result.Warnings)
	}
	if !strings.Contains(out.String(), "Output directory") {
		t.Errorf("progress output missing step names: %q", out.String())
	}
}

func TestValidationSuite_MissingTextCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenAIAPIKey = ""

	result := NewValidationSuite(cfg).WithShowProgress(false).Validate(context.Background())
	if result.Success {
		t.Fatal("Success = true, want false without credentials")
	}
	if _, ok := core.IsConfigError(result.FirstError()); !ok {
		t.Errorf("FirstError() = %v, want ConfigError", result.FirstError())
	}
}

// TestValidationSuite_NetworkProbe exercises the reachability check against a fake endpoint.
func TestValidationSuite_NetworkProbe(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		success bool
	}{
		{"ok", http.StatusOK, true},
		{"unauthorized", http.StatusUnauthorized, false},
		{"server error warns", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/models" {
					t.Errorf("path = %q, want /v1/models", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			cfg := testConfig(t)
			cfg.TextBaseURL = srv.URL + "/v1"

			result := NewValidationSuite(cfg).
				WithShowProgress(false).
				WithNetworkChecks(srv.Client()).
				Validate(context.Background())
			if result.Success != tt.success {
				t.Errorf("Success = %v, want %v (first error %v)", result.Success, tt.success, result.FirstError())
			}
		})
	}
}

func TestValidateEndpointURL(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"https://api.openai.com/v1", false},
		{"http://localhost:1234/v1", false},
		{"ftp://example.com", true},
		{"https://", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if err := ValidateEndpointURL(tt.in); (err != nil) != tt.wantErr {
				t.Errorf("ValidateEndpointURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}

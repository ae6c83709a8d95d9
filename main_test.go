package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"postforge/core"
	"postforge/logging"
	"postforge/shutdown"
)

// testConfig loads a configuration rooted in a temp directory with no
// image provider, so nothing touches the network.
func testConfig(t *testing.T) *core.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("IMAGE_PROVIDERS", "none")
	t.Setenv("OUTPUT_DIR", filepath.Join(dir, "output"))
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "data", "postforge.db"))
	t.Setenv("LISTEN_ADDR", "127.0.0.1:0")

	cfg, err := core.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	return cfg
}

func TestNewApplication_WiresAndShutsDown(t *testing.T) {
	cfg := testConfig(t)
	manager := shutdown.NewManager(logging.NewNop(), shutdown.WithTimeout(cfg.ShutdownTimeout))

	app, err := newApplication(context.Background(), cfg, logging.NewNop(), manager)
	if err != nil {
		t.Fatalf("newApplication() error = %v", err)
	}

	want := []string{"http server", "event stream", "job tracker", "browser", "job store", "database", "temp files", "logger"}
	if got := manager.RegisteredHandlers(); !reflect.DeepEqual(got, want) {
		t.Errorf("shutdown order = %v, want %v", got, want)
	}

	rec := httptest.NewRecorder()
	app.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	app.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/capabilities", nil))
	var caps struct {
		Engines []struct {
			Engine string `json:"engine"`
		} `json:"engines"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &caps); err != nil {
		t.Fatalf("capabilities body: %v", err)
	}
	if len(caps.Engines) != 2 {
		t.Errorf("engines = %+v, want browser and tree-to-raster", caps.Engines)
	}

	if err := manager.Shutdown(); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewApplication_BadDatabasePath(t *testing.T) {
	cfg := testConfig(t)
	// A regular file where the database directory should be.
	blocker := filepath.Join(t.TempDir(), "file")
	if err := writeFile(blocker); err != nil {
		t.Fatal(err)
	}
	cfg.DatabasePath = filepath.Join(blocker, "postforge.db")

	manager := shutdown.NewManager(logging.NewNop())
	defer manager.Shutdown()
	if _, err := newApplication(context.Background(), cfg, logging.NewNop(), manager); err == nil {
		t.Fatal("expected error for unusable database path")
	}
}

func TestPipelineSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.ImageProviders = []string{"gemini", "openai"}
	cfg.TextTemperature = 0.5

	s := pipelineSettings(cfg)
	if s.DefaultImageProvider != "gemini" {
		t.Errorf("DefaultImageProvider = %q, want first configured provider", s.DefaultImageProvider)
	}
	if s.Temperature != 0.5 || s.MaxTokens != cfg.TextMaxTokens {
		t.Errorf("text settings = %v/%d", s.Temperature, s.MaxTokens)
	}
	if s.Image.MaxRetries != cfg.ImageMaxRetries || s.Image.Size != cfg.ImageSize {
		t.Errorf("image options = %+v", s.Image)
	}
	if s.Render.Engine != core.EngineTreeToRaster || s.Render.Format != core.FormatPNG || s.Render.Width != 1080 {
		t.Errorf("render = %+v", s.Render)
	}
	if s.Composition.LogoPosition != core.LogoBottomRight || !s.Composition.TextOverlay {
		t.Errorf("composition = %+v", s.Composition)
	}

	cfg.ImageProviders = nil
	if got := pipelineSettings(cfg).DefaultImageProvider; got != "" {
		t.Errorf("DefaultImageProvider without providers = %q", got)
	}
}

func TestRunStartupValidation(t *testing.T) {
	cfg := testConfig(t)
	if code := runStartupValidation(cfg, logging.NewNop(), false); code != core.ExitCodeSuccess {
		t.Errorf("valid config exit code = %d", code)
	}

	cfg.OpenAIAPIKey = ""
	if code := runStartupValidation(cfg, logging.NewNop(), false); code != core.ExitCodeConfigError {
		t.Errorf("missing key exit code = %d, want %d", code, core.ExitCodeConfigError)
	}
}

func writeFile(path string) error {
	return os.WriteFile(path, []byte("x"), 0o644)
}

package core

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"postforge/retry"
)

// Config holds all configuration values. LoadConfig fills it from the
// environment; main loads .env with godotenv first.
type Config struct {
	// Server
	ListenAddr           string `validate:"required"`
	Development          bool
	LogLevel             string
	LogFile              string
	AllowSelfSignedCerts bool
	AllowPrivateFetch    bool

	// Text generation (OpenAI-compatible chat completions)
	OpenAIAPIKey    string
	TextBaseURL     string   `validate:"omitempty,url"`
	TextModels      []string `validate:"min=1,dive,required"`
	TextMaxTokens   int      `validate:"gt=0"`
	TextTemperature float64  `validate:"gte=0,lte=2"`
	TextMaxRetries  int      `validate:"gte=1"`

	// Image generation. ImageProviders is the fallback order.
	ImageProviders        []string `validate:"dive,oneof=openai azure gemini"`
	ImageBaseURL          string   `validate:"omitempty,url"`
	OpenAIImageModel      string
	ImageSize             string   `validate:"required"`
	ImageQuality          string
	ImageStyle            string
	ImageMaxRetries       int      `validate:"gte=0"`
	AzureOpenAIEndpoint   string   `validate:"omitempty,url"`
	AzureOpenAIKey        string
	AzureOpenAIDeployment string
	AzureOpenAIAPIVersion string
	GeminiAPIKey          string
	GeminiImageModel      string

	// Retry ladders
	TextRetryBase        time.Duration `validate:"gte=0"`
	TextRetryMax         time.Duration `validate:"gte=0"`
	TextRetryJitter      float64       `validate:"gte=0,lte=1"`
	ImageRateLimitBase   time.Duration `validate:"gte=0"`
	ImageServerErrorBase time.Duration `validate:"gte=0"`
	ImageNetworkBase     time.Duration `validate:"gte=0"`
	ImageRetryMax        time.Duration `validate:"gte=0"`

	// Composition defaults
	DefaultEngine   string `validate:"oneof=browser tree-to-raster"`
	DefaultWidth    int    `validate:"gt=0,lte=4096"`
	DefaultHeight   int    `validate:"gt=0,lte=4096"`
	DefaultQuality  int    `validate:"gte=0,lte=100"`
	DefaultFormat   string `validate:"oneof=png jpeg webp"`
	LogoURL         string `validate:"omitempty,url|file"`
	LogoPosition    string `validate:"oneof=top-left top-right bottom-left bottom-right center"`
	BrandColor      string `validate:"omitempty,hexcolor"`
	TextOverlay     bool
	ChromePath      string
	ChromeNoSandbox bool

	// Storage and jobs
	OutputDir    string        `validate:"required"`
	DatabasePath string        `validate:"required"`
	Workers      int           `validate:"gte=1,lte=64"`
	QueueSize    int           `validate:"gte=1"`
	JobTimeout   time.Duration `validate:"gt=0"`
	JobRetention time.Duration `validate:"gte=0"`

	// HistoryRetentionDays prunes history and job rows at startup. Zero keeps everything.
	HistoryRetentionDays int `validate:"gte=0"`

	// HTTP surface. APIKeyHash is a bcrypt hash; empty leaves /v1 open.
	APIKeyHash         string
	RateLimitPerMinute int           `validate:"gte=0"`
	ShutdownTimeout    time.Duration `validate:"gt=0"`
}

var configValidate = validator.New()

// LoadConfig reads configuration from environment variables. Only a text
// provider key is required; every other value has a default.
func LoadConfig() (*Config, error) {
	openAIKey := GetEnvOrDefault("OPENAI_API_KEY", "")
	if openAIKey == "" {
		openAIKey = GetEnvOrDefault("OPENAI_KEY", "")
	}

	textRetry := retry.DefaultTextPolicy()
	imageRetry := retry.DefaultImagePolicy()

	cfg := &Config{
		ListenAddr:           GetEnvOrDefault("LISTEN_ADDR", ":8080"),
		Development:          ParseBoolEnv("DEVELOPMENT", false),
		LogLevel:             GetEnvOrDefault("LOG_LEVEL", ""),
		LogFile:              GetEnvOrDefault("LOG_FILE", "logs/postforge.log"),
		AllowSelfSignedCerts: ParseBoolEnv("ALLOW_SELF_SIGNED_CERTS", false),
		AllowPrivateFetch:    ParseBoolEnv("ALLOW_PRIVATE_IMAGE_FETCH", false),

		OpenAIAPIKey:    openAIKey,
		TextBaseURL:     GetEnvOrDefault("TEXT_BASE_URL", ""),
		TextModels:      ParseListEnv("TEXT_MODELS", []string{"gpt-4o", "gpt-4o-mini", "gpt-3.5-turbo"}),
		TextMaxTokens:   ParseIntEnv("TEXT_MAX_TOKENS", 800),
		TextTemperature: ParseFloat64Env("TEXT_TEMPERATURE", 0.8),
		TextMaxRetries:  ParseIntEnv("TEXT_MAX_RETRIES", textRetry.MaxAttempts),

		ImageProviders:        ParseListEnv("IMAGE_PROVIDERS", []string{"openai"}),
		ImageBaseURL:          GetEnvOrDefault("IMAGE_BASE_URL", ""),
		OpenAIImageModel:      GetEnvOrDefault("IMAGE_GEN_MODEL", "dall-e-3"),
		ImageSize:             GetEnvOrDefault("IMAGE_SIZE", "1024x1024"),
		ImageQuality:          GetEnvOrDefault("IMAGE_QUALITY", "standard"),
		ImageStyle:            GetEnvOrDefault("IMAGE_STYLE", "vivid"),
		ImageMaxRetries:       ParseIntEnv("IMAGE_MAX_RETRIES", imageRetry.MaxRetries),
		AzureOpenAIEndpoint:   GetEnvOrDefault("AZURE_OPENAI_ENDPOINT", ""),
		AzureOpenAIKey:        GetEnvOrDefault("AZURE_OPENAI_KEY", ""),
		AzureOpenAIDeployment: GetEnvOrDefault("AZURE_OPENAI_DEPLOYMENT", ""),
		AzureOpenAIAPIVersion: GetEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		GeminiAPIKey:          GetEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiImageModel:      GetEnvOrDefault("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),

		TextRetryBase:        ParseDurationEnv("TEXT_RETRY_BASE", textRetry.Base),
		TextRetryMax:         ParseDurationEnv("TEXT_RETRY_MAX", textRetry.Max),
		TextRetryJitter:      ParseFloat64Env("TEXT_RETRY_JITTER", textRetry.JitterFraction),
		ImageRateLimitBase:   ParseDurationEnv("IMAGE_RETRY_RATE_LIMIT_BASE", imageRetry.RateLimitBase),
		ImageServerErrorBase: ParseDurationEnv("IMAGE_RETRY_SERVER_BASE", imageRetry.ServerErrorBase),
		ImageNetworkBase:     ParseDurationEnv("IMAGE_RETRY_NETWORK_BASE", imageRetry.NetworkBase),
		ImageRetryMax:        ParseDurationEnv("IMAGE_RETRY_MAX", imageRetry.Max),

		DefaultEngine:   GetEnvOrDefault("RENDER_ENGINE", string(EngineTreeToRaster)),
		DefaultWidth:    ParseIntEnv("RENDER_WIDTH", 1080),
		DefaultHeight:   ParseIntEnv("RENDER_HEIGHT", 1080),
		DefaultQuality:  ParseIntEnv("RENDER_QUALITY", 90),
		DefaultFormat:   GetEnvOrDefault("RENDER_FORMAT", string(FormatPNG)),
		LogoURL:         GetEnvOrDefault("LOGO_URL", ""),
		LogoPosition:    GetEnvOrDefault("LOGO_POSITION", string(LogoBottomRight)),
		BrandColor:      GetEnvOrDefault("BRAND_COLOR", "#1f2937"),
		TextOverlay:     ParseBoolEnv("TEXT_OVERLAY", true),
		ChromePath:      GetEnvOrDefault("CHROME_PATH", ""),
		ChromeNoSandbox: ParseBoolEnv("CHROME_NO_SANDBOX", false),

		OutputDir:    GetEnvOrDefault("OUTPUT_DIR", "./output"),
		DatabasePath: GetEnvOrDefault("DATABASE_PATH", "./data/postforge.db"),
		Workers:      ParseIntEnv("JOB_WORKERS", 4),
		QueueSize:    ParseIntEnv("JOB_QUEUE_SIZE", 100),
		JobTimeout:   ParseDurationEnv("JOB_TIMEOUT", 10*time.Minute),
		JobRetention: ParseDurationEnv("JOB_RETENTION", time.Hour),

		HistoryRetentionDays: ParseIntEnv("HISTORY_RETENTION_DAYS", 30),

		APIKeyHash:         GetEnvOrDefault("API_KEY_HASH", ""),
		RateLimitPerMinute: ParseIntEnv("RATE_LIMIT_PER_MINUTE", 30),
		ShutdownTimeout:    ParseDurationEnv("SHUTDOWN_TIMEOUT", 60*time.Second),
	}

	if len(cfg.ImageProviders) == 1 && strings.EqualFold(cfg.ImageProviders[0], "none") {
		cfg.ImageProviders = nil
	}
	if cfg.OpenAIAPIKey == "" && cfg.TextBaseURL == "" {
		return nil, ErrMissingAuth("text generation", "OPENAI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and provider credentials. The first
// failure is returned as a *ConfigError naming the offending field.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return ErrInvalidConfig(fe.Namespace(), fmt.Sprintf("failed %q constraint", fe.Tag()))
		}
		return ErrInvalidConfig("config", err.Error())
	}
	return c.ValidateImageProviders()
}

// ValidateImageProviders checks that every provider in the fallback order
// has credentials.
func (c *Config) ValidateImageProviders() error {
	for _, provider := range c.ImageProviders {
		switch provider {
		case "openai":
			if c.OpenAIAPIKey == "" && c.ImageBaseURL == "" {
				return ErrMissingAuth("openai image provider", "OPENAI_API_KEY")
			}
		case "azure":
			if c.AzureOpenAIEndpoint == "" || c.AzureOpenAIKey == "" || c.AzureOpenAIDeployment == "" {
				return ErrMissingAuth("azure image provider", "AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_KEY and AZURE_OPENAI_DEPLOYMENT")
			}
		case "gemini":
			if c.GeminiAPIKey == "" {
				return ErrMissingAuth("gemini image provider", "GEMINI_API_KEY")
			}
		}
	}
	return nil
}

// HasImageProvider reports whether at least one image provider is configured.
func (c *Config) HasImageProvider() bool {
	return len(c.ImageProviders) > 0
}

// ImageProviderList renders the fallback order for display.
func (c *Config) ImageProviderList() string {
	if len(c.ImageProviders) == 0 {
		return "none"
	}
	return strings.Join(c.ImageProviders, " -> ")
}

// NewHTTPClient returns a client honoring AllowSelfSignedCerts. It sets no
// overall timeout; slow providers are bounded only by retry policy.
func NewHTTPClient(cfg *Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg != nil && cfg.AllowSelfSignedCerts {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Transport: transport}
}

// Package textgen generates post text through an OpenAI-compatible chat
// completion API, walking a priority list of models with per-model retries.
package textgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"postforge/core"
	"postforge/logging"
	"postforge/retry"
)

// ProviderName labels text attempts in logs, metrics and errors.
const ProviderName = "text"

// ChatCompleter is the subset of *openai.Client the generator needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var _ ChatCompleter = (*openai.Client)(nil)

// Request is one generation call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float32

	// MaxRetries bounds attempts per model. Zero uses the client policy.
	MaxRetries int
}

// Usage reports token consumption of the successful attempt.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Result is a successful generation.
type Result struct {
	Content      core.GeneratedContent
	Raw          string
	ModelUsed    string
	Usage        Usage
	AttemptsUsed int
}

// Options configures a Client.
type Options struct {
	Models   []string
	Policy   retry.TextPolicy
	Sleep    retry.Sleeper
	Observer retry.Observer
	Logger   *logging.Logger
}

// Client is the model-priority text generator. Safe for concurrent use.
type Client struct {
	api      ChatCompleter
	models   []string
	policy   retry.TextPolicy
	sleep    retry.Sleeper
	observer retry.Observer
	logger   *logging.Logger
}

// NewClient wraps api. At least one model is required.
func NewClient(api ChatCompleter, opts Options) (*Client, error) {
	if api == nil {
		return nil, fmt.Errorf("textgen: completion client cannot be nil")
	}
	if len(opts.Models) == 0 {
		return nil, fmt.Errorf("textgen: at least one model is required")
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
		api:      api,
		models:   append([]string(nil), opts.Models...),
		policy:   opts.Policy,
		sleep:    opts.Sleep,
		observer: opts.Observer,
		logger:   opts.Logger.Named("textgen"),
	}, nil
}

// NewOpenAIClient builds the go-openai client for cfg. TextBaseURL points it
// at any OpenAI-compatible endpoint.
func NewOpenAIClient(cfg *core.Config, httpClient *http.Client) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.TextBaseURL != "" {
		clientConfig.BaseURL = cfg.TextBaseURL
	}
	if httpClient != nil {
		clientConfig.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(clientConfig)
}

// PolicyFromConfig builds the text retry policy from configuration.
func PolicyFromConfig(cfg *core.Config) retry.TextPolicy {
	return retry.TextPolicy{
		MaxAttempts:    cfg.TextMaxRetries,
		Base:           cfg.TextRetryBase,
		Max:            cfg.TextRetryMax,
		JitterFraction: cfg.TextRetryJitter,
	}
}

// Models returns the priority order.
func (c *Client) Models() []string {
	return append([]string(nil), c.models...)
}

// Generate runs req against each model in priority order until one returns
// a usable post. Prompts are truncated first. When every model fails, the
// returned error is a *core.TransientProviderError or
// *core.PermanentProviderError wrapping the last underlying error.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	system := TruncatePrompt(req.SystemPrompt, MaxSystemPromptChars)
	user := TruncatePrompt(req.UserPrompt, MaxUserPromptChars)

	policy := c.policy
	if req.MaxRetries > 0 {
		policy.MaxAttempts = req.MaxRetries
	}

	var (
		lastErr   error
		lastClass retry.ErrorClass
		lastModel string
		total     int
	)

	for mi, model := range c.models {
		for attempt := 1; ; attempt++ {
			total++
			start := time.Now()
			result, err := c.attempt(ctx, model, system, user, req)
			elapsed := time.Since(start)

			if err == nil {
				c.observer.ObserveAttempt(ProviderName, "openai", model, retry.OutcomeSuccess, elapsed)
				result.AttemptsUsed = total
				c.logger.Info("text generated",
					zap.String("model", model),
					zap.Int("attempts", total),
					zap.Int("total_tokens", result.Usage.TotalTokens),
					zap.Duration("elapsed", elapsed))
				return result, nil
			}

			class := Classify(err)
			c.observer.ObserveAttempt(ProviderName, "openai", model, class.String(), elapsed)
			lastErr, lastClass, lastModel = err, class, model

			decision := retry.Next(policy, mi, len(c.models), attempt, class)
			c.logger.Warn("text attempt failed",
				zap.String("model", model),
				zap.Int("attempt", attempt),
				zap.String("class", class.String()),
				zap.String("decision", decision.Action.String()),
				zap.Duration("delay", decision.Delay),
				zap.Error(err))

			if decision.Action != retry.RetrySame {
				break
			}
			if err := c.sleep(ctx, decision.Delay); err != nil {
				return nil, fmt.Errorf("textgen: interrupted while backing off: %w", err)
			}
		}
	}

	return nil, terminalError(lastErr, lastClass, lastModel, total)
}

func (c *Client) attempt(ctx context.Context, model, system, user string, req Request) (*Result, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrInvalidResponse)
	}

	raw := resp.Choices[0].Message.Content
	content, err := ParseContent(raw)
	if err != nil {
		return nil, err
	}

	modelUsed := resp.Model
	if modelUsed == "" {
		modelUsed = model
	}
	content.Metadata = map[string]interface{}{
		"model":        modelUsed,
		"finishReason": string(resp.Choices[0].FinishReason),
	}

	return &Result{
		Content:   content,
		Raw:       raw,
		ModelUsed: modelUsed,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func terminalError(err error, class retry.ErrorClass, model string, attempts int) error {
	if err == nil {
		err = errors.New("no models attempted")
	}
	status := StatusCode(err)
	if class.Transient() {
		return &core.TransientProviderError{Provider: ProviderName, Model: model, StatusCode: status, Attempts: attempts, Err: err}
	}
	return &core.PermanentProviderError{Provider: ProviderName, Model: model, StatusCode: status, Attempts: attempts, Err: err}
}

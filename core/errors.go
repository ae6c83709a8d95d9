package core

import (
	"errors"
	"fmt"
)

// Error codes carried in ErrorPayload.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeTransientProvider = "PROVIDER_TRANSIENT"
	CodePermanentProvider = "PROVIDER_PERMANENT"
	CodeRender            = "RENDER_ERROR"
	CodePartialFailure    = "PARTIAL_FAILURE"
	CodePersistence       = "PERSISTENCE_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeInternal          = "INTERNAL_ERROR"
)

// ErrorPayload is the structured form of a terminal failure shown to callers.
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ValidationError reports malformed input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return "invalid request: " + e.Message
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransientProviderError is a rate limit, server or network failure that
// survived the client's retry policy.
type TransientProviderError struct {
	Provider   string
	Model      string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("%s provider unavailable after %d attempts: %v", e.Provider, e.Attempts, e.Err)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// PermanentProviderError is an auth, forbidden or malformed-request failure.
type PermanentProviderError struct {
	Provider   string
	Model      string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *PermanentProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider rejected request (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider rejected request: %v", e.Provider, e.Err)
}

func (e *PermanentProviderError) Unwrap() error { return e.Err }

// RenderError wraps a composition backend failure.
type RenderError struct {
	Engine Engine
	Op     string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s (%s): %v", e.Op, e.Engine, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// PartialFailure records a sub-step failure the pipeline absorbed.
type PartialFailure struct {
	Step string
	Err  error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%s degraded: %v", e.Step, e.Err)
}

func (e *PartialFailure) Unwrap() error { return e.Err }

// PersistenceError wraps an AssetStore or HistoryRecorder failure.
type PersistenceError struct {
	Collaborator string
	Err          error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist to %s: %v", e.Collaborator, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrNotFound is returned by lookups for unknown identifiers.
var ErrNotFound = errors.New("not found")

// ToPayload maps any error onto the structured payload surfaced to callers.
//
// Example:
//
//	payload := core.ToPayload(err)
//	// {Code: "PROVIDER_TRANSIENT", Message: "...", Retryable: true}
func ToPayload(err error) ErrorPayload {
	if err == nil {
		return ErrorPayload{}
	}

	var (
		validationErr  *ValidationError
		transientErr   *TransientProviderError
		permanentErr   *PermanentProviderError
		renderErr      *RenderError
		partialErr     *PartialFailure
		persistenceErr *PersistenceError
	)

	switch {
	case errors.As(err, &validationErr):
		return ErrorPayload{Code: CodeValidation, Message: err.Error()}
	case errors.As(err, &transientErr):
		return ErrorPayload{Code: CodeTransientProvider, Message: err.Error(), Retryable: true}
	case errors.As(err, &permanentErr):
		return ErrorPayload{Code: CodePermanentProvider, Message: err.Error()}
	case errors.As(err, &renderErr):
		return ErrorPayload{Code: CodeRender, Message: err.Error()}
	case errors.As(err, &partialErr):
		return ErrorPayload{Code: CodePartialFailure, Message: err.Error()}
	case errors.As(err, &persistenceErr):
		return ErrorPayload{Code: CodePersistence, Message: err.Error(), Retryable: true}
	case errors.Is(err, ErrNotFound):
		return ErrorPayload{Code: CodeNotFound, Message: err.Error()}
	default:
		return ErrorPayload{Code: CodeInternal, Message: err.Error()}
	}
}

// ConfigError is a startup configuration problem with an actionable fix.
type ConfigError struct {
	Code    string
	Message string
	Action  string
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Configuration error codes
const (
	ErrCodeEnvFileMissing = "ENV_FILE_MISSING"
	ErrCodeMissingAuth    = "MISSING_AUTH"
	ErrCodeInvalidConfig  = "INVALID_CONFIG"
)

// ErrEnvFileMissing reports a missing .env file.
func ErrEnvFileMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeEnvFileMissing,
		Message: fmt.Sprintf("Configuration file not found: %s", path),
		Action:  "Copy example.env to .env or export the variables directly",
	}
}

// ErrMissingAuth reports missing credentials for a provider.
func ErrMissingAuth(provider, envVar string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingAuth,
		Message: fmt.Sprintf("Missing credentials for %s", provider),
		Action:  fmt.Sprintf("Set %s in your environment or .env file", envVar),
	}
}

// ErrInvalidConfig reports a value that failed validation.
func ErrInvalidConfig(envVar, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidConfig,
		Message: fmt.Sprintf("Invalid %s: %s", envVar, reason),
		Action:  fmt.Sprintf("Fix %s in your environment or .env file", envVar),
	}
}

// IsConfigError unwraps err into a *ConfigError.
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

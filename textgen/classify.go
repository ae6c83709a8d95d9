package textgen

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"postforge/retry"
)

// Classify maps a completion error onto a retry class.
//
// 429 is a rate limit, 500 and 503 are server errors, an API error whose
// code or message reports an exceeded context window is ClassContextLength,
// unusable payloads are ClassInvalidResponse and transport failures are
// ClassNetwork. Everything else, including 502, is ClassOther. The text
// policy retries network and other failures without delay.
func Classify(err error) retry.ErrorClass {
	if err == nil {
		return retry.ClassOther
	}
	if errors.Is(err, ErrInvalidResponse) {
		return retry.ClassInvalidResponse
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if isContextLength(apiErr) {
			return retry.ClassContextLength
		}
		return classifyStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if strings.Contains(strings.ToLower(string(reqErr.Body)), "context_length_exceeded") {
			return retry.ClassContextLength
		}
		return classifyStatus(reqErr.HTTPStatusCode)
	}

	if retry.IsNetworkError(err) {
		return retry.ClassNetwork
	}
	return retry.ClassOther
}

func classifyStatus(status int) retry.ErrorClass {
	switch status {
	case http.StatusTooManyRequests:
		return retry.ClassRateLimited
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		return retry.ClassServer
	default:
		return retry.ClassOther
	}
}

func isContextLength(apiErr *openai.APIError) bool {
	if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "maximum context length") || strings.Contains(msg, "context_length_exceeded")
}

// StatusCode extracts the HTTP status from a completion error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

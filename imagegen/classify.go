package imagegen

import (
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"postforge/retry"
)

// Classify maps a provider error onto a retry class.
//
//	429           -> ClassRateLimited
//	500, 502, 503 -> ClassServer
//	other status  -> ClassPermanent (400, 401, 403, 404, ...)
//	no status     -> ClassNetwork for transport failures, else ClassOther
//
// An empty provider answer is ClassInvalidResponse. The image policy leaves
// the provider at once for every non-transient class.
func Classify(err error) retry.ErrorClass {
	if err == nil {
		return retry.ClassOther
	}
	if errors.Is(err, ErrEmptyResponse) {
		return retry.ClassInvalidResponse
	}
	if status := StatusCode(err); status != 0 {
		return classifyStatus(status)
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
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return retry.ClassServer
	default:
		return retry.ClassPermanent
	}
}

// StatusCode extracts the HTTP status carried by an OpenAI or Gemini error,
// or 0 when the failure never produced a response.
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) && gErrPtr != nil {
		return gErrPtr.Code
	}
	return 0
}

package textgen

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"

	"github.com/sashabaranov/go-openai"

	"postforge/retry"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want retry.ErrorClass
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, retry.ClassRateLimited},
		{"internal", &openai.APIError{HTTPStatusCode: http.StatusInternalServerError}, retry.ClassServer},
		{"unavailable", &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable}, retry.ClassServer},
		{"bad gateway is other", &openai.APIError{HTTPStatusCode: http.StatusBadGateway}, retry.ClassOther},
		{"unauthorized is other", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, retry.ClassOther},
		{"context code", &openai.APIError{HTTPStatusCode: 400, Code: "context_length_exceeded"}, retry.ClassContextLength},
		{"context message", &openai.APIError{HTTPStatusCode: 400, Message: "This model's maximum context length is 8192 tokens"}, retry.ClassContextLength},
		{"request error status", &openai.RequestError{HTTPStatusCode: http.StatusTooManyRequests, Err: errors.New("x")}, retry.ClassRateLimited},
		{"request error context body", &openai.RequestError{HTTPStatusCode: 400, Body: []byte(`{"code":"context_length_exceeded"}`), Err: errors.New("x")}, retry.ClassContextLength},
		{"wrapped api error", fmt.Errorf("call: %w", &openai.APIError{HTTPStatusCode: 503}), retry.ClassServer},
		{"invalid response", ErrMissingCaption, retry.ClassInvalidResponse},
		{"network", &url.Error{Op: "Post", URL: "http://x", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}, retry.ClassNetwork},
		{"eof", io.ErrUnexpectedEOF, retry.ClassNetwork},
		{"plain", errors.New("boom"), retry.ClassOther},
		{"nil", nil, retry.ClassOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusCode(t *testing.T) {
	if got := StatusCode(fmt.Errorf("w: %w", &openai.APIError{HTTPStatusCode: 429})); got != 429 {
		t.Errorf("got %d", got)
	}
	if got := StatusCode(errors.New("x")); got != 0 {
		t.Errorf("got %d", got)
	}
}

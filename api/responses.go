package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"postforge/core"
	"postforge/jobs"
	"postforge/logging"
)

// Codes the HTTP layer adds to the core taxonomy.
const (
	CodeRateLimited  = "RATE_LIMITED"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnknownRoute = "NOT_FOUND"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error     core.ErrorPayload `json:"error"`
	RequestID string            `json:"requestId,omitempty"`
}

func respondJSON(w http.ResponseWriter, logger *logging.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode response", zap.Error(err))
	}
}

func respondPayload(w http.ResponseWriter, r *http.Request, logger *logging.Logger, status int, payload core.ErrorPayload) {
	respondJSON(w, logger, status, errorResponse{Error: payload, RequestID: middleware.GetReqID(r.Context())})
}

// respondError maps err onto a status and the structured payload. Internal
// errors are logged in full and reported with a generic message.
func respondError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	switch {
	case errors.Is(err, jobs.ErrQueueFull):
		respondPayload(w, r, logger, http.StatusServiceUnavailable, core.ErrorPayload{
			Code: CodeUnavailable, Message: "generation queue is full, retry later", Retryable: true,
		})
		return
	case errors.Is(err, jobs.ErrQueueClosed):
		respondPayload(w, r, logger, http.StatusServiceUnavailable, core.ErrorPayload{
			Code: CodeUnavailable, Message: "service is shutting down", Retryable: true,
		})
		return
	}

	payload := core.ToPayload(err)
	status := statusFor(payload.Code)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("code", payload.Code),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	if payload.Code == core.CodeInternal {
		payload.Message = "internal error"
	}
	respondPayload(w, r, logger, status, payload)
}

func statusFor(code string) int {
	switch code {
	case core.CodeValidation:
		return http.StatusBadRequest
	case core.CodeNotFound:
		return http.StatusNotFound
	case core.CodeTransientProvider, core.CodePersistence:
		return http.StatusServiceUnavailable
	case core.CodePermanentProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"postforge/core"
	"postforge/logging"
	"postforge/shutdown"
)

// HTTPObserver receives one call per served request. *metrics.Metrics
// implements it.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// requestLogger logs each request with its status and duration. Paths in
// skip are neither logged nor observed.
func requestLogger(logger *logging.Logger, observer HTTPObserver, skip map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			if observer != nil {
				observer.ObserveHTTP(r.Method, route, status, elapsed)
			}

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", elapsed),
				zap.String("remote", r.RemoteAddr),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			switch {
			case status >= 500:
				logger.Error("request", fields...)
			case status >= 400:
				logger.Warn("request", fields...)
			default:
				logger.Info("request", fields...)
			}
		})
	}
}

// rateLimit rejects clients that exhausted their submission window.
func rateLimit(limiter *RateLimiter, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if ok, retryAfter := limiter.Allow(ip); !ok {
				seconds := int(retryAfter.Round(time.Second) / time.Second)
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				respondPayload(w, r, logger, http.StatusTooManyRequests, core.ErrorPayload{
					Code:      CodeRateLimited,
					Message:   "too many generation requests",
					Retryable: true,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// inFlight tracks synchronous renders so shutdown waits for them, and
// rejects new ones once shutdown has begun.
func inFlight(tracker *shutdown.OperationTracker, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tracker == nil {
				next.ServeHTTP(w, r)
				return
			}
			if !tracker.Start() {
				respondPayload(w, r, logger, http.StatusServiceUnavailable, core.ErrorPayload{
					Code: CodeUnavailable, Message: "service is shutting down", Retryable: true,
				})
				return
			}
			defer tracker.Done()
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the address RealIP already rewrote into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

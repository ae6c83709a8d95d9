// Package api exposes the generation pipeline and the composition engine
// over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"postforge/compose"
	"postforge/core"
	"postforge/jobs"
	"postforge/logging"
	"postforge/metrics"
	"postforge/render"
	"postforge/shutdown"
)

// JobService is the JobTracker surface. *jobs.Tracker implements it.
type JobService interface {
	Submit(req core.GenerationRequest) (string, error)
	Poll(ctx context.Context, id string) (jobs.Job, error)
}

// Composer is the composition surface. *compose.Engine implements it.
type Composer interface {
	Compose(ctx context.Context, content core.GeneratedContent, imageURL string, settings core.CompositionSettings, opts core.RenderOptions) (*core.CompositionResult, error)
	ComposeTemplate(ctx context.Context, templateID string, data map[string]interface{}, opts core.RenderOptions) (*core.CompositionResult, error)
	Capabilities() []render.Capabilities
	Templates() []compose.Template
}

// HistoryReader lists recent runs. *db.Repository implements it.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]core.ResultSummary, error)
}

// Pinger checks a dependency for /healthz. *db.Database implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config configures the HTTP server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxBodyBytes    int64
	RateLimit       int
	RateLimitWindow time.Duration
	LogSkipPaths    []string
	Version         string

	// Defaults fill fields a compose request omits.
	DefaultSettings core.CompositionSettings
	DefaultRender   core.RenderOptions

	// APIKeyHash is a bcrypt hash. When set, /v1 requires the matching key.
	APIKeyHash string
}

// DefaultConfig returns the defaults. Renders can take a while, so the
// write timeout is generous.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxBodyBytes:    16 << 20,
		RateLimit:       30,
		RateLimitWindow: time.Minute,
		LogSkipPaths:    []string{"/healthz", "/metrics"},
		Version:         "dev",
	}
}

// Deps are the collaborators behind the routes. Metrics, Stats, Database,
// Operations and Events are optional.
type Deps struct {
	Jobs       JobService
	Composer   Composer
	History    HistoryReader
	Database   Pinger
	Metrics    *metrics.Metrics
	Stats      metrics.Collector
	Operations *shutdown.OperationTracker
	Events     *Hub
	Logger     *logging.Logger
}

// Server is the HTTP front end.
type Server struct {
	cfg        Config
	deps       Deps
	logger     *logging.Logger
	limiter    *RateLimiter
	keys       *keyVerifier
	router     chi.Router
	httpServer *http.Server
}

// New wires the router. Jobs and Composer are required.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Jobs == nil || deps.Composer == nil {
		return nil, errors.New("api: job service and composer are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  deps.Logger.Named("api"),
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow),
	}
	if cfg.APIKeyHash != "" {
		keys, err := newKeyVerifier(cfg.APIKeyHash)
		if err != nil {
			return nil, err
		}
		s.keys = keys
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

func (s *Server) routes() chi.Router {
	skip := make(map[string]bool, len(s.cfg.LogSkipPaths))
	for _, p := range s.cfg.LogSkipPaths {
		skip[p] = true
	}
	var observer HTTPObserver
	if s.deps.Metrics != nil {
		observer = s.deps.Metrics
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger, observer, skip))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondPayload(w, r, s.logger, http.StatusNotFound, core.ErrorPayload{Code: CodeUnknownRoute, Message: "no such route"})
	})

	r.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(requireAPIKey(s.keys, s.logger))
		r.With(rateLimit(s.limiter, s.logger)).Post("/posts", s.handleSubmitPost)
		r.Get("/jobs/{id}", s.handlePollJob)
		r.Get("/history", s.handleHistory)
		r.Get("/stats", s.handleStats)
		r.Get("/capabilities", s.handleCapabilities)
		r.Get("/templates", s.handleListTemplates)
		if s.deps.Events != nil {
			r.Get("/events", s.handleEvents)
		}

		r.Group(func(r chi.Router) {
			r.Use(inFlight(s.deps.Operations, s.logger))
			r.Post("/compose", s.handleCompose)
			r.Post("/templates/{id}", s.handleComposeTemplate)
		})
	})
	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// StartLimiterCleanup prunes rate limit state until ctx is done.
func (s *Server) StartLimiterCleanup(ctx context.Context) {
	s.limiter.StartCleanupTicker(ctx, 5*time.Minute)
}

// ListenAndServe blocks until the server stops. It returns nil after a
// graceful Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

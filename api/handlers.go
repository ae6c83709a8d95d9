package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"postforge/compose"
	"postforge/core"
	"postforge/jobs"
	"postforge/metrics"
	"postforge/render"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

type submitResponse struct {
	JobID   string      `json:"jobId"`
	Status  jobs.Status `json:"status"`
	PollURL string      `json:"pollUrl"`
}

type composeRequest struct {
	Content  core.GeneratedContent    `json:"content"`
	ImageURL string                   `json:"imageUrl"`
	Settings core.CompositionSettings `json:"settings"`
	Options  core.RenderOptions       `json:"options"`
}

type templateRequest struct {
	Data    map[string]interface{} `json:"data"`
	Options core.RenderOptions     `json:"options"`
}

type statsResponse struct {
	System  metrics.SystemStatus `json:"system"`
	Runs    metrics.RunMetrics   `json:"runs"`
	Recent  []metrics.RunRecord  `json:"recent"`
	Version string               `json:"version"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
	Version  string `json:"version"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if s.cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return core.NewValidationError("body", "exceeds %d bytes", maxErr.Limit)
		}
		if errors.Is(err, io.EOF) {
			return core.NewValidationError("body", "is empty")
		}
		return core.NewValidationError("body", "is not valid JSON: %v", err)
	}
	return nil
}

func (s *Server) handleSubmitPost(w http.ResponseWriter, r *http.Request) {
	var req core.GenerationRequest
	if err := s.decode(w, r, &req); err != nil {
		respondError(w, r, s.logger, err)
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)

	id, err := s.deps.Jobs.Submit(req)
	if err != nil {
		respondError(w, r, s.logger, err)
		return
	}
	pollURL := "/v1/jobs/" + id
	w.Header().Set("Location", pollURL)
	respondJSON(w, s.logger, http.StatusAccepted, submitResponse{JobID: id, Status: jobs.StatusPending, PollURL: pollURL})
}

func (s *Server) handlePollJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Poll(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, s.logger, err)
		return
	}
	respondJSON(w, s.logger, http.StatusOK, job)
}

func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	body := composeRequest{Settings: s.cfg.DefaultSettings, Options: s.cfg.DefaultRender}
	if err := s.decode(w, r, &body); err != nil {
		respondError(w, r, s.logger, err)
		return
	}
	s.render(w, r, metrics.RunTypeCompose, func(ctx context.Context) (*core.CompositionResult, error) {
		return s.deps.Composer.Compose(ctx, body.Content, body.ImageURL, body.Settings, body.Options)
	})
}

func (s *Server) handleComposeTemplate(w http.ResponseWriter, r *http.Request) {
	body := templateRequest{Options: s.cfg.DefaultRender}
	if err := s.decode(w, r, &body); err != nil {
		respondError(w, r, s.logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	s.render(w, r, metrics.RunTypeTemplate, func(ctx context.Context) (*core.CompositionResult, error) {
		return s.deps.Composer.ComposeTemplate(ctx, id, body.Data, body.Options)
	})
}

// render runs fn and writes the image bytes with the render metadata in
// X-Render-* headers.
func (s *Server) render(w http.ResponseWriter, r *http.Request, runType string, fn func(context.Context) (*core.CompositionResult, error)) {
	start := time.Now()
	res, err := fn(r.Context())
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordRun(runType, err, time.Since(start))
	}
	if err != nil {
		respondError(w, r, s.logger, err)
		return
	}

	meta := res.Metadata
	h := w.Header()
	h.Set("Content-Type", meta.Format.ContentType())
	h.Set("Content-Length", strconv.Itoa(len(res.Buffer)))
	h.Set("X-Render-Engine", string(meta.Engine))
	h.Set("X-Render-Width", strconv.Itoa(meta.Width))
	h.Set("X-Render-Height", strconv.Itoa(meta.Height))
	h.Set("X-Render-Time-Ms", strconv.FormatInt(meta.RenderTimeMs, 10))
	if meta.Template != "" {
		h.Set("X-Render-Template", meta.Template)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Buffer)
}

func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, s.logger, http.StatusOK, struct {
		Engines []render.Capabilities `json:"engines"`
	}{s.deps.Composer.Capabilities()})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, s.logger, http.StatusOK, struct {
		Templates []compose.Template `json:"templates"`
	}{s.deps.Composer.Templates()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		respondJSON(w, s.logger, http.StatusOK, struct {
			Items []core.ResultSummary `json:"items"`
		}{[]core.ResultSummary{}})
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			respondError(w, r, s.logger, core.NewValidationError("limit", "must be between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}
	items, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, r, s.logger, &core.PersistenceError{Collaborator: "history", Err: err})
		return
	}
	if items == nil {
		items = []core.ResultSummary{}
	}
	respondJSON(w, s.logger, http.StatusOK, struct {
		Items []core.ResultSummary `json:"items"`
	}{items})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		respondPayload(w, r, s.logger, http.StatusNotFound, core.ErrorPayload{Code: CodeUnknownRoute, Message: "stats are disabled"})
		return
	}
	respondJSON(w, s.logger, http.StatusOK, statsResponse{
		System:  s.deps.Stats.GetSystemStatus(),
		Runs:    s.deps.Stats.GetRunMetrics(),
		Recent:  s.deps.Stats.GetRecentRuns(20),
		Version: s.cfg.Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: s.cfg.Version}
	status := http.StatusOK
	if s.deps.Database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Database.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}
	respondJSON(w, s.logger, status, resp)
}

// handleEvents streams job updates over a websocket. With ?job=<id> the
// stream starts with that job's snapshot and carries only its updates.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job")
	var initial *jobs.Job
	if jobID != "" {
		job, err := s.deps.Jobs.Poll(r.Context(), jobID)
		if err != nil {
			respondError(w, r, s.logger, err)
			return
		}
		initial = &job
	}
	s.deps.Events.serve(w, r, jobID, initial)
}

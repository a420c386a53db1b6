package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aretw0/cadence"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Orchestrator is the part of cadence.Controller published over HTTP.
type Orchestrator interface {
	Run(ctx context.Context, req domain.RunRequest) (*domain.RunResult, error)
	RunReplica(ctx context.Context, archivePath string) (*domain.RunResult, error)
	History(ctx context.Context, filter domain.HistoryFilter) ([]domain.RunSummary, error)
	Definitions(ctx context.Context) ([]domain.DefinitionInfo, error)
	SetSaveEnabled(enabled bool)
	SetBatchNumber(n int)
	Status() domain.Status
	Subscribe() (<-chan domain.RunEvent, func())
}

var _ Orchestrator = (*cadence.Controller)(nil)

// RunRequest is the body of POST /v1/runs.
type RunRequest struct {
	Definition string         `json:"definition"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Save       *bool          `json:"save,omitempty"`
}

// ReplicaRequest is the body of POST /v1/replicas.
type ReplicaRequest struct {
	Archive string `json:"archive"`
}

// RunResponse carries the result of a run and, when it failed, the primary error.
type RunResponse struct {
	*domain.RunResult
	Error string `json:"error,omitempty"`
}

// Server serves the orchestrator API.
type Server struct {
	orch     Orchestrator
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// ServerOption configures the orchestrator server.
type ServerOption func(*Server)

// WithGatherer sets the registry exposed on /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithServerLogger sets the request logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for the orchestrator.
func NewHandler(orch Orchestrator, opts ...ServerOption) http.Handler {
	s := &Server{
		orch:     orch,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", health)
	r.Get("/info", s.GetInfo)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/runs", s.PostRun)
		r.Get("/runs", s.GetRuns)
		r.Post("/replicas", s.PostReplica)
		r.Get("/definitions", s.GetDefinitions)
		r.Put("/settings/save", s.PutSave)
		r.Put("/settings/batch", s.PutBatch)
		r.Get("/status", s.GetStatus)
		r.Get("/events", s.SubscribeEvents)
	})
	return enableCORS(r)
}

// PostRun handles POST /v1/runs. The run executes within the request.
func (s *Server) PostRun(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err))
		return
	}
	if body.Definition == "" {
		writeError(w, fmt.Errorf("%w: definition is required", errBadRequest))
		return
	}

	result, err := s.orch.Run(r.Context(), domain.RunRequest{
		Definition: body.Definition,
		Overrides:  body.Parameters,
		Save:       body.Save,
	})
	s.respondRun(w, r, result, err)
}

// PostReplica handles POST /v1/replicas.
func (s *Server) PostReplica(w http.ResponseWriter, r *http.Request) {
	var body ReplicaRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Archive == "" {
		writeError(w, fmt.Errorf("%w: archive is required", errBadRequest))
		return
	}
	result, err := s.orch.RunReplica(r.Context(), body.Archive)
	s.respondRun(w, r, result, err)
}

// respondRun answers 200 whenever a result exists; a failed run is a
// successful request whose body says success=false.
func (s *Server) respondRun(w http.ResponseWriter, r *http.Request, result *domain.RunResult, err error) {
	if result == nil {
		if err == nil {
			err = fmt.Errorf("run produced no result")
		}
		s.logger.WarnContext(r.Context(), "run rejected", "error", err)
		writeError(w, err)
		return
	}
	resp := RunResponse{RunResult: result}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRuns handles GET /v1/runs?batch=&limit=.
func (s *Server) GetRuns(w http.ResponseWriter, r *http.Request) {
	var filter domain.HistoryFilter
	if v := r.URL.Query().Get("batch"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: batch must be an integer", errBadRequest))
			return
		}
		filter.Batch = &n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest))
			return
		}
		filter.Limit = n
	}

	runs, err := s.orch.History(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []domain.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetDefinitions handles GET /v1/definitions.
func (s *Server) GetDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := s.orch.Definitions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if defs == nil {
		defs = []domain.DefinitionInfo{}
	}
	writeJSON(w, http.StatusOK, defs)
}

// PutSave handles PUT /v1/settings/save with {"enabled": bool}.
func (s *Server) PutSave(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		writeError(w, fmt.Errorf("%w: enabled is required", errBadRequest))
		return
	}
	s.orch.SetSaveEnabled(*body.Enabled)
	writeJSON(w, http.StatusOK, s.orch.Status().Settings)
}

// PutBatch handles PUT /v1/settings/batch with {"batch": n}.
func (s *Server) PutBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Batch *int `json:"batch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Batch == nil {
		writeError(w, fmt.Errorf("%w: batch is required", errBadRequest))
		return
	}
	s.orch.SetBatchNumber(*body.Batch)
	writeJSON(w, http.StatusOK, s.orch.Status().Settings)
}

// GetStatus handles GET /v1/status.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Status())
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "cadence",
		"version": cadence.Version,
	})
}

// SubscribeEvents handles GET /v1/events (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	events, cancel := s.orch.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				s.logger.Error("event encode failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: phase\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

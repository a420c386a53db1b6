package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// AnalyzeRequest is the body of POST /v1/analyze.
type AnalyzeRequest struct {
	ExperimentID string              `json:"experiment_id"`
	Images       []domain.Image      `json:"images"`
	Parameters   domain.ParameterSet `json:"parameters"`
}

// AnalyzeResponse carries the analysis report.
type AnalyzeResponse struct {
	Report map[string]any `json:"report"`
}

// NewAnalyzerHandler publishes analyzer on POST /v1/analyze.
func NewAnalyzerHandler(analyzer ports.Analyzer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := chi.NewRouter()
	r.Get("/health", health)
	r.Post("/v1/analyze", func(w http.ResponseWriter, r *http.Request) {
		var body AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err))
			return
		}
		report, err := analyzer.Analyze(r.Context(), body.ExperimentID, body.Images, body.Parameters.Normalize())
		if err != nil {
			logger.ErrorContext(r.Context(), "analysis failed", "eid", body.ExperimentID, "error", err)
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, AnalyzeResponse{Report: report})
	})
	return r
}

// AnalyzerClient implements ports.Analyzer against a remote analyzer.
type AnalyzerClient struct {
	client
}

var _ ports.Analyzer = (*AnalyzerClient)(nil)

// NewAnalyzerClient creates a client for the analyzer at baseURL.
func NewAnalyzerClient(baseURL string, opts ...ClientOption) *AnalyzerClient {
	return &AnalyzerClient{client: newClient(baseURL, opts)}
}

// Analyze is bounded by ctx only; fits can take long.
func (c *AnalyzerClient) Analyze(ctx context.Context, experimentID string, images []domain.Image, params domain.ParameterSet) (map[string]any, error) {
	req := AnalyzeRequest{ExperimentID: experimentID, Images: images, Parameters: params}
	var resp AnalyzeResponse
	if err := c.do(ctx, "analysis", http.MethodPost, "/v1/analyze", req, &resp, false); err != nil {
		return nil, err
	}
	return resp.Report, nil
}

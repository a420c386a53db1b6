package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	cadencehttp "github.com/aretw0/cadence/pkg/adapters/http"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubOrchestrator records calls and answers with canned values.
type stubOrchestrator struct {
	mu       sync.Mutex
	requests []domain.RunRequest
	result   *domain.RunResult
	err      error
	filter   domain.HistoryFilter
	settings domain.Settings
	events   chan domain.RunEvent
}

func (s *stubOrchestrator) Run(ctx context.Context, req domain.RunRequest) (*domain.RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.result, s.err
}

func (s *stubOrchestrator) RunReplica(ctx context.Context, path string) (*domain.RunResult, error) {
	return s.Run(ctx, domain.RunRequest{Definition: path})
}

func (s *stubOrchestrator) History(ctx context.Context, f domain.HistoryFilter) ([]domain.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
	return []domain.RunSummary{{ExperimentID: "20240501_120000", BatchNumber: 3}}, nil
}

func (s *stubOrchestrator) Definitions(ctx context.Context) ([]domain.DefinitionInfo, error) {
	return []domain.DefinitionInfo{{Ref: "registry:mot-load", Name: "mot-load", Kind: domain.SourceRegistry}}, nil
}

func (s *stubOrchestrator) SetSaveEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.SaveEnabled = enabled
}

func (s *stubOrchestrator) SetBatchNumber(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.BatchNumber = n
}

func (s *stubOrchestrator) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Status{Phase: domain.PhaseIdle, Settings: s.settings}
}

func (s *stubOrchestrator) Subscribe() (<-chan domain.RunEvent, func()) {
	return s.events, func() {}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_Runs(t *testing.T) {
	t.Run("Run Returns Result", func(t *testing.T) {
		orch := &stubOrchestrator{result: &domain.RunResult{ExperimentID: "20240501_120000", Success: true, Outcome: domain.OutcomeCompleted}}
		h := cadencehttp.NewHandler(orch, cadencehttp.WithGatherer(prometheus.NewRegistry()))

		w := do(t, h, "POST", "/v1/runs", `{"definition":"registry:mot-load","parameters":{"loadTime":300},"save":false}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp cadencehttp.RunResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "20240501_120000", resp.ExperimentID)
		assert.Empty(t, resp.Error)

		require.Len(t, orch.requests, 1)
		assert.Equal(t, "registry:mot-load", orch.requests[0].Definition)
		assert.Equal(t, float64(300), orch.requests[0].Overrides["loadTime"])
		require.NotNil(t, orch.requests[0].Save)
		assert.False(t, *orch.requests[0].Save)
	})

	t.Run("Failed Run Is Still A Result", func(t *testing.T) {
		orch := &stubOrchestrator{
			result: &domain.RunResult{Success: false, Outcome: domain.OutcomeAborted, ErrorKind: domain.KindConfiguration},
			err:    domain.NewError(domain.KindConfiguration, "precondition", domain.ErrCameraNotLoaded),
		}
		h := cadencehttp.NewHandler(orch, cadencehttp.WithGatherer(prometheus.NewRegistry()))

		w := do(t, h, "POST", "/v1/runs", `{"definition":"registry:mot-load"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "camera not loaded")
		assert.Contains(t, w.Body.String(), `"success":false`)
	})

	t.Run("Concurrent Run Conflicts", func(t *testing.T) {
		orch := &stubOrchestrator{err: domain.ErrRunInProgress}
		h := cadencehttp.NewHandler(orch, cadencehttp.WithGatherer(prometheus.NewRegistry()))

		w := do(t, h, "POST", "/v1/runs", `{"definition":"registry:mot-load"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Missing Definition", func(t *testing.T) {
		h := cadencehttp.NewHandler(&stubOrchestrator{}, cadencehttp.WithGatherer(prometheus.NewRegistry()))
		assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/v1/runs", `{}`).Code)
		assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/v1/runs", `not json`).Code)
		assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/v1/replicas", `{}`).Code)
	})

	t.Run("Replica", func(t *testing.T) {
		orch := &stubOrchestrator{result: &domain.RunResult{Success: true}}
		h := cadencehttp.NewHandler(orch, cadencehttp.WithGatherer(prometheus.NewRegistry()))

		w := do(t, h, "POST", "/v1/replicas", `{"archive":"data/20240501_120000.zip"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "data/20240501_120000.zip", orch.requests[0].Definition)
	})
}

func TestServer_HistoryAndSettings(t *testing.T) {
	orch := &stubOrchestrator{}
	h := cadencehttp.NewHandler(orch, cadencehttp.WithGatherer(prometheus.NewRegistry()))

	t.Run("History Filters", func(t *testing.T) {
		w := do(t, h, "GET", "/v1/runs?batch=3&limit=5", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, orch.filter.Batch)
		assert.Equal(t, 3, *orch.filter.Batch)
		assert.Equal(t, 5, orch.filter.Limit)
		assert.Contains(t, w.Body.String(), "20240501_120000")

		assert.Equal(t, http.StatusBadRequest, do(t, h, "GET", "/v1/runs?batch=x", "").Code)
	})

	t.Run("Settings", func(t *testing.T) {
		w := do(t, h, "PUT", "/v1/settings/save", `{"enabled":true}`)
		require.Equal(t, http.StatusOK, w.Code)
		w = do(t, h, "PUT", "/v1/settings/batch", `{"batch":7}`)
		require.Equal(t, http.StatusOK, w.Code)

		var settings domain.Settings
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
		assert.Equal(t, domain.Settings{SaveEnabled: true, BatchNumber: 7}, settings)

		assert.Equal(t, http.StatusBadRequest, do(t, h, "PUT", "/v1/settings/save", `{}`).Code)
	})

	t.Run("Status", func(t *testing.T) {
		w := do(t, h, "GET", "/v1/status", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"phase":"idle"`)
	})

	t.Run("Definitions", func(t *testing.T) {
		w := do(t, h, "GET", "/v1/definitions", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "registry:mot-load")
	})

	t.Run("Health And Metrics", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do(t, h, "GET", "/health", "").Code)
		assert.Equal(t, http.StatusOK, do(t, h, "GET", "/metrics", "").Code)
		assert.Equal(t, http.StatusOK, do(t, h, "OPTIONS", "/v1/runs", "").Code)
	})
}

func TestServer_SubscribeEvents(t *testing.T) {
	events := make(chan domain.RunEvent, 2)
	events <- domain.RunEvent{ExperimentID: "20240501_120000", Phase: domain.PhaseLoading}
	events <- domain.RunEvent{ExperimentID: "20240501_120000", Phase: domain.PhaseDone}
	close(events)

	h := cadencehttp.NewHandler(&stubOrchestrator{events: events}, cadencehttp.WithGatherer(prometheus.NewRegistry()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req := httptest.NewRequest("GET", "/v1/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	body := w.Body.String()
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(body, "event: ping"))
	assert.Contains(t, body, `"phase":"loading"`)
	assert.Contains(t, body, `"phase":"done"`)
}

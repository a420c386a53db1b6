package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubController struct {
	last     domain.RunRequest
	replayed string
	filter   domain.HistoryFilter
	settings domain.Settings
	err      error
}

func (c *stubController) Run(ctx context.Context, req domain.RunRequest) (*domain.RunResult, error) {
	c.last = req
	if c.err != nil {
		return &domain.RunResult{Success: false, Outcome: domain.OutcomeAborted}, c.err
	}
	return &domain.RunResult{ExperimentID: "20240501_120000", Success: true, Outcome: domain.OutcomeCompleted}, nil
}

func (c *stubController) RunReplica(ctx context.Context, path string) (*domain.RunResult, error) {
	c.replayed = path
	return &domain.RunResult{Success: true}, nil
}

func (c *stubController) History(ctx context.Context, f domain.HistoryFilter) ([]domain.RunSummary, error) {
	c.filter = f
	return []domain.RunSummary{{ExperimentID: "20240501_120000"}}, nil
}

func (c *stubController) Definitions(ctx context.Context) ([]domain.DefinitionInfo, error) {
	return []domain.DefinitionInfo{{Ref: "registry:dual-valve"}}, nil
}

func (c *stubController) SetSaveEnabled(enabled bool) { c.settings.SaveEnabled = enabled }
func (c *stubController) SetBatchNumber(n int)        { c.settings.BatchNumber = n }
func (c *stubController) Status() domain.Status {
	return domain.Status{Phase: domain.PhaseIdle, Settings: c.settings}
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func TestServer_RunExperiment(t *testing.T) {
	ctx := context.Background()

	t.Run("Overrides And Save", func(t *testing.T) {
		ctrl := &stubController{}
		s := NewServer(ctrl)

		resp, err := s.handleRun(ctx, mcp.CallToolRequest{}, map[string]any{
			"definition": "registry:mot-load",
			"parameters": `{"loadTime": 300}`,
			"save":       false,
		})
		require.NoError(t, err)
		assert.True(t, resp.Result.Success)
		assert.Equal(t, "registry:mot-load", ctrl.last.Definition)
		assert.Equal(t, float64(300), ctrl.last.Overrides["loadTime"])
		require.NotNil(t, ctrl.last.Save)
		assert.False(t, *ctrl.last.Save)
	})

	t.Run("Failed Run Reports Error", func(t *testing.T) {
		ctrl := &stubController{err: domain.NewError(domain.KindConfiguration, "precondition", domain.ErrCameraNotLoaded)}
		s := NewServer(ctrl)

		resp, err := s.handleRun(ctx, mcp.CallToolRequest{}, map[string]any{"definition": "registry:mot-load"})
		require.NoError(t, err)
		assert.False(t, resp.Result.Success)
		assert.Contains(t, resp.Error, "camera not loaded")
	})

	t.Run("Invalid Arguments", func(t *testing.T) {
		s := NewServer(&stubController{})
		_, err := s.handleRun(ctx, mcp.CallToolRequest{}, map[string]any{})
		assert.Error(t, err)
		_, err = s.handleRun(ctx, mcp.CallToolRequest{}, map[string]any{"definition": "x", "parameters": "[1"})
		assert.Error(t, err)
	})

	t.Run("Replay", func(t *testing.T) {
		ctrl := &stubController{}
		s := NewServer(ctrl)
		_, err := s.handleReplay(ctx, mcp.CallToolRequest{}, map[string]any{"archive": "data/20240501_120000.zip"})
		require.NoError(t, err)
		assert.Equal(t, "data/20240501_120000.zip", ctrl.replayed)
	})
}

func TestServer_ListRuns(t *testing.T) {
	ctrl := &stubController{}
	s := NewServer(ctrl)

	res, err := s.handleListRuns(context.Background(), callRequest(map[string]any{"batch": float64(4), "limit": float64(10)}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.NotNil(t, ctrl.filter.Batch)
	assert.Equal(t, 4, *ctrl.filter.Batch)
	assert.Equal(t, 10, ctrl.filter.Limit)

	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "20240501_120000")
}

func TestServer_StatusResource(t *testing.T) {
	ctrl := &stubController{}
	ctrl.SetBatchNumber(2)
	s := NewServer(ctrl)

	contents, err := s.readStatus(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, StatusURI, text.URI)

	var status domain.Status
	require.NoError(t, json.Unmarshal([]byte(text.Text), &status))
	assert.Equal(t, 2, status.Settings.BatchNumber)
}

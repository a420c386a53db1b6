package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/cadence"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// StatusURI is the resource holding the controller status.
const StatusURI = "cadence://status"

// Controller is the part of cadence.Controller exposed to MCP clients.
type Controller interface {
	Run(ctx context.Context, req domain.RunRequest) (*domain.RunResult, error)
	RunReplica(ctx context.Context, archivePath string) (*domain.RunResult, error)
	History(ctx context.Context, filter domain.HistoryFilter) ([]domain.RunSummary, error)
	Definitions(ctx context.Context) ([]domain.DefinitionInfo, error)
	SetSaveEnabled(enabled bool)
	SetBatchNumber(n int)
	Status() domain.Status
}

var _ Controller = (*cadence.Controller)(nil)

// RunResponse is the structured output of run_experiment and replay_run.
type RunResponse struct {
	Result *domain.RunResult `json:"result" jsonschema_description:"Outcome of the run"`
	Error  string            `json:"error,omitempty" jsonschema_description:"Primary failure, if the run failed"`
}

// Server exposes a Controller as an MCP server.
type Server struct {
	ctrl      Controller
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(ctrl Controller, opts ...Option) *Server {
	s := &Server{
		ctrl:      ctrl,
		mcpServer: server.NewMCPServer("cadence-mcp", cadence.Version),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{Addr: addr, Handler: mux}
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("run_experiment",
		mcp.WithDescription("Run an experiment definition on the hardware. Blocks until the run finished."),
		mcp.WithString("definition", mcp.Required(), mcp.Description("Definition reference, e.g. registry:mot-load or scripts/probe.cue")),
		mcp.WithString("parameters", mcp.Description("JSON object of parameter overrides (optional)")),
		mcp.WithBoolean("save", mcp.Description("Archive this run; defaults to the save setting")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleRun))

	s.mcpServer.AddTool(mcp.NewTool("replay_run",
		mcp.WithDescription("Run an archived experiment again with its stored definition and parameters."),
		mcp.WithString("archive", mcp.Required(), mcp.Description("Path of the run archive (.zip)")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleReplay))

	s.mcpServer.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List stored runs, newest first."),
		mcp.WithNumber("batch", mcp.Description("Only runs of this batch number")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs")),
	), s.handleListRuns)

	s.mcpServer.AddTool(mcp.NewTool("list_definitions",
		mcp.WithDescription("List the experiment definitions that can be run."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		defs, err := s.ctrl.Definitions(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list definitions failed: %v", err)), nil
		}
		return jsonResult(defs)
	})

	s.mcpServer.AddTool(mcp.NewTool("set_save",
		mcp.WithDescription("Enable or disable archiving of later runs."),
		mcp.WithBoolean("enabled", mcp.Required()),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		enabled, ok := request.GetArguments()["enabled"].(bool)
		if !ok {
			return mcp.NewToolResultError("enabled must be a boolean"), nil
		}
		s.ctrl.SetSaveEnabled(enabled)
		return jsonResult(s.ctrl.Status().Settings)
	})

	s.mcpServer.AddTool(mcp.NewTool("set_batch",
		mcp.WithDescription("Tag later runs with a batch number."),
		mcp.WithNumber("batch", mcp.Required()),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n, err := domain.ToInt(request.GetArguments()["batch"])
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch: %v", err)), nil
		}
		s.ctrl.SetBatchNumber(n)
		return jsonResult(s.ctrl.Status().Settings)
	})
}

func (s *Server) handleRun(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	ref, _ := args["definition"].(string)
	if ref == "" {
		return RunResponse{}, fmt.Errorf("definition is required")
	}

	req := domain.RunRequest{Definition: ref}
	if raw, ok := args["parameters"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Overrides); err != nil {
			return RunResponse{}, fmt.Errorf("parameters must be a JSON object: %w", err)
		}
	}
	if save, ok := args["save"].(bool); ok {
		req.Save = &save
	}

	result, err := s.ctrl.Run(ctx, req)
	return s.runResponse(ctx, result, err)
}

func (s *Server) handleReplay(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	path, _ := args["archive"].(string)
	if path == "" {
		return RunResponse{}, fmt.Errorf("archive is required")
	}
	result, err := s.ctrl.RunReplica(ctx, path)
	return s.runResponse(ctx, result, err)
}

func (s *Server) runResponse(ctx context.Context, result *domain.RunResult, err error) (RunResponse, error) {
	if result == nil {
		if err == nil {
			err = fmt.Errorf("run produced no result")
		}
		return RunResponse{}, err
	}
	resp := RunResponse{Result: result}
	if err != nil {
		s.logger.WarnContext(ctx, "MCP run failed", "eid", result.ExperimentID, "error", err)
		resp.Error = err.Error()
	}
	return resp, nil
}

func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	var filter domain.HistoryFilter
	if v, ok := args["batch"]; ok {
		n, err := domain.ToInt(v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch: %v", err)), nil
		}
		filter.Batch = &n
	}
	if v, ok := args["limit"]; ok {
		n, err := domain.ToInt(v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("limit: %v", err)), nil
		}
		filter.Limit = n
	}
	runs, err := s.ctrl.History(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history failed: %v", err)), nil
	}
	return jsonResult(runs)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(StatusURI, "Controller Status",
		mcp.WithMIMEType("application/json"),
	), s.readStatus)
}

func (s *Server) readStatus(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(s.ctrl.Status())
	if err != nil {
		return nil, fmt.Errorf("failed to encode status: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      StatusURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

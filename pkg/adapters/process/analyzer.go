package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aretw0/cadence/pkg/adapters/file"
	"github.com/aretw0/cadence/pkg/domain"
)

// EnvPrefix prefixes every variable passed to an analysis tool.
const EnvPrefix = "CADENCE_ARG_"

// Analyzer runs an allow-listed external program over the images of a run.
//
// Images are written as TIFF files to a temp directory. The program receives
// their paths and the run parameters as environment variables, never as
// command-line flags, and prints its report as JSON on stdout.
type Analyzer struct {
	tool   Tool
	logger *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// NewAnalyzer selects tool name from the allow-list.
func NewAnalyzer(tools map[string]Tool, name string, opts ...Option) (*Analyzer, error) {
	tool, ok := tools[name]
	if !ok {
		return nil, fmt.Errorf("analysis tool not registered: %s", name)
	}
	a := &Analyzer{
		tool:   tool,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Analyze runs the tool and parses its JSON report.
// Output that is not a JSON object is returned under the "output" key.
func (a *Analyzer) Analyze(ctx context.Context, experimentID string, images []domain.Image, params domain.ParameterSet) (map[string]any, error) {
	dir, err := os.MkdirTemp("", "cadence-analysis-"+experimentID+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	defer os.RemoveAll(dir)

	paths := make([]string, len(images))
	for i, img := range images {
		paths[i] = filepath.Join(dir, file.ImageName(experimentID, i))
		if err := file.WriteTIFF(paths[i], img); err != nil {
			return nil, err
		}
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}

	if a.tool.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.tool.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, a.tool.Command, a.tool.Args...)
	cmd.Dir = dir
	env := map[string]string{
		"EXPERIMENT_ID": experimentID,
		"IMAGE_DIR":     dir,
		"IMAGES":        strings.Join(paths, string(os.PathListSeparator)),
		"FRAME_COUNT":   strconv.Itoa(len(images)),
		"PARAMETERS":    string(paramsJSON),
	}
	cmd.Env = cmd.Environ()
	for k, v := range a.tool.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	for k, v := range env {
		cmd.Env = append(cmd.Env, EnvPrefix+k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	a.logger.DebugContext(ctx, "running analysis tool", "tool", a.tool.Name, "images", len(images))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("analysis tool %s failed: %w. Stderr: %s", a.tool.Name, err, strings.TrimSpace(stderr.String()))
	}

	trimmed := strings.TrimSpace(stdout.String())
	if strings.HasPrefix(trimmed, "{") {
		var report map[string]any
		if err := json.Unmarshal([]byte(trimmed), &report); err == nil {
			return report, nil
		}
	}
	return map[string]any{"output": trimmed}, nil
}

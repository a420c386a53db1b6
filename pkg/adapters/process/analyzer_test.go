package process_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/aretw0/cadence/pkg/adapters/process"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shell(t *testing.T, script string) process.Tool {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("analysis tool scripts use sh")
	}
	return process.Tool{Name: "probe", Command: "sh", Args: []string{"-c", script}}
}

func images() []domain.Image {
	return []domain.Image{
		{Width: 2, Height: 1, Pix: []uint16{1, 2}},
		{Width: 2, Height: 1, Pix: []uint16{3, 4}},
	}
}

func TestAnalyzer_Analyze(t *testing.T) {
	ctx := context.Background()

	t.Run("Parses JSON Report", func(t *testing.T) {
		tool := shell(t, `echo "{\"frames\": $CADENCE_ARG_FRAME_COUNT, \"eid\": \"$CADENCE_ARG_EXPERIMENT_ID\"}"`)
		a, err := process.NewAnalyzer(map[string]process.Tool{"probe": tool}, "probe")
		require.NoError(t, err)

		report, err := a.Analyze(ctx, "20240501_120000", images(), domain.ParameterSet{"x": 1})
		require.NoError(t, err)
		assert.Equal(t, float64(2), report["frames"])
		assert.Equal(t, "20240501_120000", report["eid"])
	})

	t.Run("Images Are TIFF Files", func(t *testing.T) {
		tool := shell(t, `for f in $(echo "$CADENCE_ARG_IMAGES" | tr ':' ' '); do test -s "$f" || exit 3; done; echo ok`)
		a, err := process.NewAnalyzer(map[string]process.Tool{"probe": tool}, "probe")
		require.NoError(t, err)

		report, err := a.Analyze(ctx, "20240501_120000", images(), nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", report["output"])
	})

	t.Run("Failure Carries Stderr", func(t *testing.T) {
		tool := shell(t, `echo "bad fit" >&2; exit 2`)
		a, err := process.NewAnalyzer(map[string]process.Tool{"probe": tool}, "probe")
		require.NoError(t, err)

		_, err = a.Analyze(ctx, "20240501_120000", images(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad fit")
	})

	t.Run("Unregistered Tool", func(t *testing.T) {
		_, err := process.NewAnalyzer(map[string]process.Tool{}, "rm")
		assert.ErrorContains(t, err, "not registered")
	})
}

func TestLoadTools(t *testing.T) {
	dir := t.TempDir()

	t.Run("Missing File", func(t *testing.T) {
		tools, err := process.LoadTools(filepath.Join(dir, "missing.yaml"))
		require.NoError(t, err)
		assert.Empty(t, tools)
	})

	t.Run("YAML", func(t *testing.T) {
		path := filepath.Join(dir, "tools.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
tools:
  - name: fit
    command: python3
    args: ["fit.py"]
    timeout: 30s
  - name: unnamed-without-command
`), 0644))
		tools, err := process.LoadTools(path)
		require.NoError(t, err)
		require.Len(t, tools, 1)
		assert.Equal(t, "python3", tools["fit"].Command)
		assert.Equal(t, "30s", tools["fit"].Timeout.String())
	})

	t.Run("JSON", func(t *testing.T) {
		path := filepath.Join(dir, "tools.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"tools":[{"name":"fit","command":"fit"}]}`), 0644))
		tools, err := process.LoadTools(path)
		require.NoError(t, err)
		assert.Contains(t, tools, "fit")
	})
}

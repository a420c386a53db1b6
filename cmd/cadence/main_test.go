package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/aretw0/cadence/internal/testutils"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/experiments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSets(t *testing.T) {
	t.Run("Typed Values", func(t *testing.T) {
		got, err := parseSets([]string{"PatternLength=2000", "TSVelocity=1.5", "NeedsCamera=false", "Label = cold atoms"})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"PatternLength": 2000,
			"TSVelocity":    1.5,
			"NeedsCamera":   false,
			"Label":         "cold atoms",
		}, got)
	})

	t.Run("Missing Separator", func(t *testing.T) {
		_, err := parseSets([]string{"PatternLength"})
		assert.Error(t, err)
	})

	t.Run("Empty Key", func(t *testing.T) {
		_, err := parseSets([]string{"=1"})
		assert.Error(t, err)
	})
}

func TestExitError(t *testing.T) {
	cause := errors.New("boom")
	err := error(&ExitError{Code: 2, Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, "exit status 3", (&ExitError{Code: 3}).Error())
}

func TestRunCommand_Simulated(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{
		"run", "registry:" + experiments.MOTLoadName,
		"--simulate",
		"--data-dir", filepath.Join(dir, "data"),
		"--scripts-dir", filepath.Join(dir, "scripts"),
		"--log-level", "error",
		"--json",
	})
	require.NoError(t, rootCmd.Execute())

	var result domain.RunResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.True(t, result.Success, result.Message)
	assert.Equal(t, domain.OutcomeCompleted, result.Outcome)
	assert.FileExists(t, result.ArchivePath)
	assert.FileExists(t, filepath.Join(dir, "data", "runs.db"))
}

const blinkDoc = `---
name: blink
parameters:
  PatternLength: 20
  NeedsCamera: false
digital:
  - channel: led
    at: 5
    level: high
---
# Blinks one LED
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateAndGraph(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	scripts := filepath.Join(dir, "scripts")
	testutils.WriteScripts(t, scripts, map[string]string{"blink.md": blinkDoc})
	global := []string{"--scripts-dir", scripts, "--data-dir", filepath.Join(dir, "data"), "--log-level", "error"}

	t.Run("Validate", func(t *testing.T) {
		out, err := execute(t, append([]string{"validate", "registry:" + experiments.MOTLoadName, "blink.md"}, global...)...)
		require.NoError(t, err)
		assert.Contains(t, out, "✅ registry:mot-load (1000 ticks)")
		assert.Contains(t, out, "✅ blink.md (20 ticks)")
	})

	t.Run("Validate Unknown", func(t *testing.T) {
		_, err := execute(t, append([]string{"validate", "registry:nope"}, global...)...)
		var exit *ExitError
		require.ErrorAs(t, err, &exit)
		assert.Equal(t, 1, exit.Code)
	})

	t.Run("Graph", func(t *testing.T) {
		out, err := execute(t, append([]string{"graph", "blink.md"}, global...)...)
		require.NoError(t, err)
		assert.Contains(t, out, "gantt")
		assert.Contains(t, out, "title blink")
		assert.Contains(t, out, "led :d_led_0, 5, 20")
	})
}

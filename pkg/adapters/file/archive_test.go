package file_test

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/aretw0/cadence/pkg/adapters/file"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *domain.RunRecord {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &domain.RunRecord{
		ExperimentID:     "20240501_120000",
		CorrelationID:    "4b1c",
		DefinitionName:   "mot-load",
		DefinitionSource: []byte("registry:mot-load\n"),
		SourceExt:        ".plugin",
		Parameters: domain.ParameterSet{
			"PatternLength":  1000,
			"coilCurrent":    2.0,
			"detuning":       -12.5,
			"NeedsCamera":    true,
			"label":          "run 7",
			"numericLabel":   "42",
			"shots":          []any{1, 2.5, "x"},
			"nested":         map[string]any{"gain": 3, "enabled": false},
		},
		HardwareReport:   map[string]any{"oven_temperature_c": 312.5},
		AnalysisReport:   map[string]any{"frames": 2},
		CameraAttributes: "exposure_ms=10\n",
		Images: []domain.Image{
			{Width: 2, Height: 2, Pix: []uint16{0, 1000, 40000, 65535}},
			{Width: 2, Height: 2, Pix: []uint16{5, 6, 7, 8}},
		},
		BatchNumber: 3,
		Success:     true,
		Message:     "ok",
		StartedAt:   started,
		FinishedAt:  started.Add(2 * time.Second),
	}
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestArchive_StoreRun(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	a := file.NewArchive(root)
	rec := sampleRecord()

	path, err := a.StoreRun(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "20240501_120000.zip"), path)

	_, err = os.Stat(filepath.Join(root, rec.ExperimentID))
	assert.True(t, os.IsNotExist(err), "run directory is removed after zipping")

	assert.Equal(t, []string{
		"20240501_120000.plugin",
		"20240501_120000_analysis.yaml",
		"20240501_120000_camera.txt",
		"20240501_120000_hardware.yaml",
		"20240501_120000_img00.tiff",
		"20240501_120000_img01.tiff",
		"20240501_120000_parameters.yaml",
		"20240501_120000_run.yaml",
	}, zipNames(t, path))

	m, err := file.ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "mot-load", m.Definition)
	assert.Equal(t, 3, m.BatchNumber)
	assert.Equal(t, 2, m.ImageCount)
	assert.True(t, m.Success)
}

func TestArchive_NoImagesNoAnalysis(t *testing.T) {
	a := file.NewArchive(t.TempDir())
	rec := sampleRecord()
	rec.Images = nil
	rec.AnalysisReport = nil

	path, err := a.StoreRun(context.Background(), rec)
	require.NoError(t, err)
	names := zipNames(t, path)
	assert.Contains(t, names, "20240501_120000_parameters.yaml")
	assert.NotContains(t, names, "20240501_120000_img00.tiff")
	assert.NotContains(t, names, "20240501_120000_analysis.yaml")
}

func TestArchive_ReplayRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	a := file.NewArchive(root, file.WithWorkDir(filepath.Join(root, "work")))
	rec := sampleRecord()

	path, err := a.StoreRun(ctx, rec)
	require.NoError(t, err)

	bundle, err := a.LoadForReplay(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, rec.ExperimentID, bundle.ExperimentID)
	assert.Equal(t, filepath.Join(root, "work", rec.ExperimentID, rec.ExperimentID+".plugin"), bundle.DefinitionPath)

	src, err := os.ReadFile(bundle.DefinitionPath)
	require.NoError(t, err)
	assert.Equal(t, rec.DefinitionSource, src)

	params, err := a.ReadParameters(bundle.ParametersPath)
	require.NoError(t, err)
	assert.Equal(t, rec.Parameters, params, "types survive: whole floats stay floats, numeric strings stay strings")

	img, err := file.ReadTIFF(filepath.Join(bundle.WorkDir, file.ImageName(rec.ExperimentID, 0)))
	require.NoError(t, err)
	assert.Equal(t, rec.Images[0], img)

	require.NoError(t, a.Dispose(bundle))
	_, err = os.Stat(bundle.WorkDir)
	assert.True(t, os.IsNotExist(err))
}

func TestArchive_MissingArchive(t *testing.T) {
	a := file.NewArchive(t.TempDir())
	_, err := a.LoadForReplay(context.Background(), filepath.Join(t.TempDir(), "nope.zip"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestArchive_RejectsZipSlip(t *testing.T) {
	root := t.TempDir()
	evil := filepath.Join(root, "20240501_120000.zip")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"20240501_120000.plugin", "../../escaped.txt"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(evil, buf.Bytes(), 0644))

	a := file.NewArchive(root)
	_, err := a.LoadForReplay(context.Background(), evil)
	assert.ErrorIs(t, err, file.ErrUnsafeEntry)

	_, err = os.Stat(filepath.Join(root, "escaped.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "replay", "20240501_120000"))
	assert.True(t, os.IsNotExist(err), "work dir is cleaned up")
}

func TestTIFF_RoundTrip(t *testing.T) {
	img := domain.Image{Width: 3, Height: 2, Pix: []uint16{0, 1, 2, 65535, 32768, 12345}}
	var buf bytes.Buffer
	require.NoError(t, file.EncodeTIFF(&buf, img))

	got, err := file.DecodeTIFF(&buf)
	require.NoError(t, err)
	assert.Equal(t, img, got)

	assert.Error(t, file.EncodeTIFF(&buf, domain.Image{Width: 2, Height: 2, Pix: []uint16{1}}))
}

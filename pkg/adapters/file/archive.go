package file

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
	"gopkg.in/yaml.v3"
)

// ErrUnsafeEntry is returned when an archive entry would land outside the work directory.
var ErrUnsafeEntry = errors.New("archive entry escapes work directory")

// Manifest is the run summary stored next to the definition.
type Manifest struct {
	ExperimentID  string    `yaml:"experiment_id"`
	CorrelationID string    `yaml:"correlation_id"`
	Definition    string    `yaml:"definition"`
	SourceFile    string    `yaml:"source_file"`
	Success       bool      `yaml:"success"`
	Message       string    `yaml:"message"`
	BatchNumber   int       `yaml:"batch_number"`
	ImageCount    int       `yaml:"image_count"`
	StartedAt     time.Time `yaml:"started_at"`
	FinishedAt    time.Time `yaml:"finished_at"`
}

// Archive implements ports.ArchiveStore with one zip per run.
type Archive struct {
	root    string
	workDir string
	logger  *slog.Logger
}

// Option configures an Archive.
type Option func(*Archive)

// WithWorkDir sets where archives are unpacked for replay.
func WithWorkDir(dir string) Option {
	return func(a *Archive) {
		a.workDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// NewArchive stores runs under root. If root is empty, it defaults to "data".
func NewArchive(root string, opts ...Option) *Archive {
	if root == "" {
		root = "data"
	}
	a := &Archive{
		root:   root,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.workDir == "" {
		a.workDir = filepath.Join(root, "replay")
	}
	return a
}

// Root returns the archive directory.
func (a *Archive) Root() string {
	return a.root
}

// Path returns where the archive of eid is stored.
func (a *Archive) Path(eid string) string {
	return filepath.Join(a.root, eid+".zip")
}

// StoreRun writes every file of the record into <root>/<eid>/, zips the
// directory into <root>/<eid>.zip and removes the directory.
func (a *Archive) StoreRun(ctx context.Context, record *domain.RunRecord) (string, error) {
	if record.ExperimentID == "" {
		return "", fmt.Errorf("experiment id cannot be empty")
	}
	eid := record.ExperimentID
	dir := filepath.Join(a.root, eid)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			a.logger.WarnContext(ctx, "failed to remove run directory", "dir", dir, "error", err)
		}
	}()

	if err := a.writeRun(dir, record); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dest := a.Path(eid)
	if err := zipDir(dir, dest); err != nil {
		return "", err
	}
	a.logger.InfoContext(ctx, "run archived", "eid", eid, "path", dest, "images", len(record.Images))
	return dest, nil
}

func (a *Archive) writeRun(dir string, r *domain.RunRecord) error {
	eid := r.ExperimentID
	ext := r.SourceExt
	if ext == "" {
		ext = ".txt"
	}

	params, err := encodeParameters(r.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	hardware, err := yaml.Marshal(r.HardwareReport)
	if err != nil {
		return fmt.Errorf("failed to encode hardware report: %w", err)
	}
	manifest, err := yaml.Marshal(Manifest{
		ExperimentID:  eid,
		CorrelationID: r.CorrelationID,
		Definition:    r.DefinitionName,
		SourceFile:    eid + ext,
		Success:       r.Success,
		Message:       r.Message,
		BatchNumber:   r.BatchNumber,
		ImageCount:    len(r.Images),
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	files := map[string][]byte{
		eid + ext:                r.DefinitionSource,
		eid + "_parameters.yaml": params,
		eid + "_camera.txt":      []byte(r.CameraAttributes),
		eid + "_hardware.yaml":   hardware,
		eid + "_run.yaml":        manifest,
	}
	if r.AnalysisReport != nil {
		analysis, err := yaml.Marshal(r.AnalysisReport)
		if err != nil {
			return fmt.Errorf("failed to encode analysis report: %w", err)
		}
		files[eid+"_analysis.yaml"] = analysis
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	for i, img := range r.Images {
		if err := WriteTIFF(filepath.Join(dir, ImageName(eid, i)), img); err != nil {
			return fmt.Errorf("image %d: %w", i, err)
		}
	}
	return nil
}

// ImageName returns the archive file name of the i-th image of a run.
func ImageName(eid string, i int) string {
	return fmt.Sprintf("%s_img%02d.tiff", eid, i)
}

// zipDir packs the files of dir into dest through a temp file and a rename.
func zipDir(dir, dest string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "tmp-"+filepath.Base(dest)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	zw := zip.NewWriter(tmp)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read run directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := addFile(zw, dir, entry.Name()); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to fsync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}

	// Windows refuses to rename over an existing file.
	if _, err := os.Stat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			return fmt.Errorf("failed to replace existing archive: %w", err)
		}
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, dir, name string) error {
	src, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to compress %s: %w", name, err)
	}
	return nil
}

// LoadForReplay unpacks <name>.zip into <workDir>/<name>/.
func (a *Archive) LoadForReplay(ctx context.Context, archivePath string) (*ports.ReplayBundle, error) {
	if _, err := os.Stat(archivePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("archive %s: %w", archivePath, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))
	work := filepath.Join(a.workDir, name)
	if err := os.RemoveAll(work); err != nil {
		return nil, fmt.Errorf("failed to clear work directory: %w", err)
	}
	if err := os.MkdirAll(work, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	bundle := &ports.ReplayBundle{ExperimentID: name, WorkDir: work}

	if err := unzip(archivePath, work); err != nil {
		_ = a.Dispose(bundle)
		return nil, err
	}

	entries, err := os.ReadDir(work)
	if err != nil {
		_ = a.Dispose(bundle)
		return nil, fmt.Errorf("failed to read work directory: %w", err)
	}
	for _, entry := range entries {
		file := entry.Name()
		switch {
		case file == name+"_parameters.yaml":
			bundle.ParametersPath = filepath.Join(work, file)
		case strings.TrimSuffix(file, filepath.Ext(file)) == name:
			bundle.DefinitionPath = filepath.Join(work, file)
		}
	}
	if bundle.DefinitionPath == "" || bundle.ParametersPath == "" {
		_ = a.Dispose(bundle)
		return nil, fmt.Errorf("archive %s lacks its definition or parameters", archivePath)
	}

	a.logger.InfoContext(ctx, "archive unpacked", "archive", archivePath, "work_dir", work)
	return bundle, nil
}

func unzip(archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", f.Name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", f.Name, err)
		}
		if err := extract(f, target); err != nil {
			return err
		}
	}
	return nil
}

// safeJoin resolves an entry name below dest, rejecting absolute paths and "..".
func safeJoin(dest, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeEntry, name)
	}
	target := filepath.Join(dest, name)
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeEntry, name)
	}
	return target, nil
}

func extract(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", f.Name, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return out.Close()
}

// Dispose removes the work directory of a bundle.
func (a *Archive) Dispose(bundle *ports.ReplayBundle) error {
	if bundle == nil || bundle.WorkDir == "" {
		return nil
	}
	if err := os.RemoveAll(bundle.WorkDir); err != nil {
		return fmt.Errorf("failed to remove work directory: %w", err)
	}
	return nil
}

// ReadManifest returns the manifest of an archive without unpacking it.
func ReadManifest(archivePath string) (*Manifest, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, "_run.yaml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open manifest: %w", err)
		}
		defer rc.Close()
		var m Manifest
		if err := yaml.NewDecoder(rc).Decode(&m); err != nil {
			return nil, fmt.Errorf("failed to decode manifest: %w", err)
		}
		return &m, nil
	}
	return nil, fmt.Errorf("archive %s has no manifest: %w", archivePath, domain.ErrNotFound)
}

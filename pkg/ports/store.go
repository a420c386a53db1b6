package ports

import (
	"context"

	"github.com/aretw0/cadence/pkg/domain"
)

// ReplayBundle locates the unpacked parts of an archived run.
type ReplayBundle struct {
	ExperimentID   string
	DefinitionPath string
	ParametersPath string
	WorkDir        string
}

// ArchiveStore persists run records and unpacks them for replay.
type ArchiveStore interface {
	// StoreRun writes the record and returns the archive path.
	StoreRun(ctx context.Context, record *domain.RunRecord) (string, error)

	// LoadForReplay unpacks an archive into a work directory.
	// Returns domain.ErrNotFound if the archive does not exist.
	LoadForReplay(ctx context.Context, archivePath string) (*ReplayBundle, error)

	// ReadParameters restores the persisted parameter set exactly as it was stored.
	ReadParameters(path string) (domain.ParameterSet, error)

	// Dispose removes the work directory of a bundle.
	Dispose(bundle *ReplayBundle) error
}

// RunIndex keeps a queryable history of stored runs.
type RunIndex interface {
	// Record adds or replaces a run summary.
	Record(ctx context.Context, summary domain.RunSummary) error

	// Get returns one run. Returns domain.ErrNotFound if it is unknown.
	Get(ctx context.Context, experimentID string) (*domain.RunSummary, error)

	// List returns runs newest first.
	List(ctx context.Context, filter domain.HistoryFilter) ([]domain.RunSummary, error)
}

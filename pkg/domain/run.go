package domain

import "time"

// Outcome summarizes how a run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed" // Every step ran and the record was saved (or saving was off)
	OutcomePartial   Outcome = "partial"   // The pattern was output but a later step failed
	OutcomeAborted   Outcome = "aborted"   // The run stopped before the trigger
)

// Image is a 16-bit grayscale frame stored row-major.
type Image struct {
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Pix    []uint16 `json:"pix"`
}

// At returns the pixel at (x, y).
func (i Image) At(x, y int) uint16 {
	return i.Pix[y*i.Width+x]
}

// RunRecord is the self-describing record of one run. It is immutable once stored.
type RunRecord struct {
	ExperimentID     string
	CorrelationID    string
	DefinitionName   string
	DefinitionSource []byte
	SourceExt        string
	Parameters       ParameterSet
	HardwareReport   map[string]any
	AnalysisReport   map[string]any
	CameraAttributes string
	Images           []Image
	BatchNumber      int
	Success          bool
	Message          string
	StartedAt        time.Time
	FinishedAt       time.Time
}

// RunRequest asks the controller to execute one run.
type RunRequest struct {
	// Definition is a registry reference ("registry:name") or a path to a definition file.
	Definition string
	// Overrides replace parameters of the definition after loading.
	Overrides map[string]any
	// Save overrides the controller's save toggle for this run only.
	Save *bool
}

// RunResult is what the caller receives from a run.
type RunResult struct {
	Message       string    `json:"message"`
	ExperimentID  string    `json:"experiment_id"`
	ArchivePath   string    `json:"archive_path"`
	Success       bool      `json:"success"`
	Outcome       Outcome   `json:"outcome"`
	Phase         Phase     `json:"phase"`
	ErrorKind     ErrorKind `json:"error_kind,omitempty"`
	ImageCount    int       `json:"image_count"`
	CorrelationID string    `json:"correlation_id"`
}

// RunSummary is the indexed view of a stored run.
type RunSummary struct {
	ExperimentID  string    `json:"experiment_id"`
	CorrelationID string    `json:"correlation_id"`
	ArchivePath   string    `json:"archive_path"`
	Definition    string    `json:"definition"`
	Success       bool      `json:"success"`
	Outcome       Outcome   `json:"outcome"`
	BatchNumber   int       `json:"batch_number"`
	ImageCount    int       `json:"image_count"`
	StartedAt     time.Time `json:"started_at"`
}

// HistoryFilter narrows a history query.
type HistoryFilter struct {
	Batch *int
	Limit int
}

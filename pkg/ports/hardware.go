package ports

import (
	"context"

	"github.com/aretw0/cadence/pkg/domain"
)

// Imaging is the remote imaging service as seen by the orchestrator.
// The camera state machine lives behind it; the orchestrator only observes it.
type Imaging interface {
	// CameraExists reports whether a camera is loaded.
	CameraExists(ctx context.Context) (bool, error)
	// PrepareRemoteControl hands camera control to the orchestrator for one run.
	PrepareRemoteControl(ctx context.Context) error
	// Grab blocks until the requested frames are acquired (or acquisition fails).
	// A nil or empty result with a nil error means no data arrived.
	Grab(ctx context.Context, frames int) ([]domain.Image, error)
	// IsReadyForAcquisition reports whether the camera is armed and waiting for a trigger.
	IsReadyForAcquisition(ctx context.Context) (bool, error)
	// FinishRemoteControl returns camera control to the imaging service.
	FinishRemoteControl(ctx context.Context) error
	// Attributes returns the active camera configuration as text.
	Attributes(ctx context.Context) (string, error)
}

// Stage is the remote translation stage. Calls are order dependent.
type Stage interface {
	Connect(ctx context.Context) error
	Initialize(ctx context.Context, motion domain.StageMotion) error
	Enable(ctx context.Context) error
	DisableAutoTrigger(ctx context.Context) error
	Go(ctx context.Context) error
	EnableAutoTrigger(ctx context.Context) error
	Return(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Reporter supplies the hardware status report (oven temperatures, pressures, ...).
type Reporter interface {
	Report(ctx context.Context) (map[string]any, error)
}

// HardwareReleaser asks the external hardware controller to give up or take back
// the shared high-speed generator.
type HardwareReleaser interface {
	// Release asks the holder to release the generator. It returns once the holder acknowledged.
	Release(ctx context.Context) error
	// Reclaim hands the generator back to the external holder.
	Reclaim(ctx context.Context) error
}

// Analyzer turns captured images into an analysis report.
type Analyzer interface {
	Analyze(ctx context.Context, experimentID string, images []domain.Image, params domain.ParameterSet) (map[string]any, error)
}

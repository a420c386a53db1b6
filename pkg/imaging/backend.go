package imaging

import (
	"context"

	"github.com/aretw0/cadence/pkg/domain"
)

// Trigger selects what starts the exposure.
type Trigger int

const (
	// TriggerSoftware exposes as soon as the backend is armed.
	TriggerSoftware Trigger = iota
	// TriggerExternal waits for the hardware trigger line.
	TriggerExternal
)

// Acquisition describes one request to the backend.
type Acquisition struct {
	Frames  int
	Trigger Trigger
}

// Backend is a camera driver.
type Backend interface {
	// Acquire arms the camera, calls armed once it waits for its trigger and
	// blocks until every frame arrived. A nil result without error means the
	// acquisition was stopped before data arrived.
	Acquire(ctx context.Context, req Acquisition, armed func()) ([]domain.Image, error)
	// Stop aborts a pending acquisition.
	Stop() error
	// Configure applies an attribute file.
	Configure(attributes string) error
	Close() error
}

package imaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
)

// ErrNotStreaming is returned by StopStream when no stream is running.
var ErrNotStreaming = errors.New("camera is not streaming")

// Controller is the camera state machine.
type Controller struct {
	backend Backend
	state   atomic.Int32
	remote  atomic.Bool

	// streamMu serializes frame delivery with attribute changes.
	streamMu   sync.Mutex
	doneMu     sync.Mutex
	streamDone chan struct{}

	attrMu     sync.RWMutex
	attributes string

	// abort cancels the pending acquisition.
	abortMu sync.Mutex
	abort   context.CancelFunc

	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithTimeout bounds every snapshot. Zero waits until the context is done.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.timeout = d
	}
}

// WithAttributes sets the initial attribute snapshot.
func WithAttributes(text string) Option {
	return func(c *Controller) {
		c.attributes = text
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController creates a Free controller over backend.
func NewController(backend Backend, opts ...Option) *Controller {
	c := &Controller{
		backend: backend,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.Store(int32(domain.CameraFree))
	return c
}

// State returns the current state.
func (c *Controller) State() domain.CameraState {
	return domain.CameraState(c.state.Load())
}

func (c *Controller) transition(from, to domain.CameraState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// claim moves Free to the given state or explains why it cannot.
func (c *Controller) claim(to domain.CameraState) error {
	if c.transition(domain.CameraFree, to) {
		return nil
	}
	if c.State() == domain.CameraTerminated {
		return domain.ErrCameraTerminated
	}
	return domain.ErrCameraBusy
}

func (c *Controller) acquire(ctx context.Context, req Acquisition) ([]domain.Image, bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.abortMu.Lock()
	if err := c.claim(domain.CameraReadyForAcquisition); err != nil {
		c.abortMu.Unlock()
		return nil, false, err
	}
	aborted := false
	c.abort = func() {
		aborted = true
		cancel()
	}
	c.abortMu.Unlock()

	defer func() {
		c.abortMu.Lock()
		c.abort = nil
		c.abortMu.Unlock()
		c.transition(domain.CameraReadyForAcquisition, domain.CameraFree)
	}()

	acqCtx := ctx
	if c.timeout > 0 {
		var stop context.CancelFunc
		acqCtx, stop = context.WithTimeout(ctx, c.timeout)
		defer stop()
	}
	images, err := c.backend.Acquire(acqCtx, req, func() {
		c.logger.Debug("camera armed", "frames", req.Frames)
	})

	c.abortMu.Lock()
	defer c.abortMu.Unlock()
	if aborted {
		return nil, true, nil
	}
	return images, false, err
}

// SingleSnapshot exposes one software-triggered frame.
func (c *Controller) SingleSnapshot(ctx context.Context) (domain.Image, error) {
	images, _, err := c.acquire(ctx, Acquisition{Frames: 1, Trigger: TriggerSoftware})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout) {
			return domain.Image{}, fmt.Errorf("snapshot: %w", domain.ErrTimeout)
		}
		return domain.Image{}, err
	}
	if len(images) == 0 {
		return domain.Image{}, domain.ErrDataNotArrived
	}
	return images[0], nil
}

// MultipleSnapshot exposes n software-triggered frames.
func (c *Controller) MultipleSnapshot(ctx context.Context, n int) ([]domain.Image, error) {
	images, _, err := c.acquire(ctx, Acquisition{Frames: n, Trigger: TriggerSoftware})
	if err != nil {
		if errors.Is(err, domain.ErrCameraBusy) || errors.Is(err, domain.ErrCameraTerminated) {
			return nil, err
		}
		return nil, fmt.Errorf("snapshot of %d frames: %w: %w", n, domain.ErrTimeout, err)
	}
	return images, nil
}

// Stream delivers frames to onFrame until StopStream is called or ctx is done.
// It returns once the stream started.
func (c *Controller) Stream(ctx context.Context, onFrame func(domain.Image)) error {
	done := make(chan struct{})
	c.doneMu.Lock()
	if err := c.claim(domain.CameraStreaming); err != nil {
		c.doneMu.Unlock()
		return err
	}
	c.streamDone = done
	c.doneMu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			if err := c.backend.Stop(); err != nil {
				c.logger.Warn("failed to stop stream acquisition", "error", err)
			}
			if !c.transition(domain.CameraBusy, domain.CameraFree) {
				c.transition(domain.CameraStreaming, domain.CameraFree)
			}
		}()

		for c.State() == domain.CameraStreaming && ctx.Err() == nil {
			c.streamMu.Lock()
			images, err := c.backend.Acquire(ctx, Acquisition{Frames: 1, Trigger: TriggerSoftware}, func() {})
			if err == nil && len(images) > 0 {
				onFrame(images[0])
			}
			c.streamMu.Unlock()
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("stream acquisition failed", "error", err)
				}
				return
			}
		}
	}()
	return nil
}

// StopStream ends a stream and waits for the loop to return the camera to Free.
func (c *Controller) StopStream() error {
	if !c.transition(domain.CameraStreaming, domain.CameraBusy) {
		return ErrNotStreaming
	}
	c.doneMu.Lock()
	done := c.streamDone
	c.doneMu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}

// Close terminates the camera. Every later acquisition fails.
func (c *Controller) Close() error {
	prev := domain.CameraState(c.state.Swap(int32(domain.CameraTerminated)))
	if prev == domain.CameraTerminated {
		return nil
	}
	return errors.Join(c.backend.Stop(), c.backend.Close())
}

// SetAttributes applies a new attribute file. It waits for an in-flight stream frame.
func (c *Controller) SetAttributes(text string) error {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if err := c.backend.Configure(text); err != nil {
		return fmt.Errorf("failed to configure camera: %w", err)
	}
	c.attrMu.Lock()
	c.attributes = text
	c.attrMu.Unlock()
	return nil
}

// Remote reports whether an orchestrator holds the camera.
func (c *Controller) Remote() bool {
	return c.remote.Load()
}

// CameraExists reports whether the camera can still acquire.
func (c *Controller) CameraExists(ctx context.Context) (bool, error) {
	return c.backend != nil && c.State() != domain.CameraTerminated, nil
}

// PrepareRemoteControl hands the camera to an orchestrator, stopping any stream.
func (c *Controller) PrepareRemoteControl(ctx context.Context) error {
	switch c.State() {
	case domain.CameraTerminated:
		return domain.ErrCameraTerminated
	case domain.CameraStreaming:
		if err := c.StopStream(); err != nil && !errors.Is(err, ErrNotStreaming) {
			return err
		}
	}
	c.remote.Store(true)
	c.logger.InfoContext(ctx, "camera under remote control")
	return nil
}

// Grab acquires frames on the external trigger.
func (c *Controller) Grab(ctx context.Context, frames int) ([]domain.Image, error) {
	images, aborted, err := c.acquire(ctx, Acquisition{Frames: frames, Trigger: TriggerExternal})
	if err != nil {
		return nil, err
	}
	if aborted {
		c.logger.WarnContext(ctx, "acquisition aborted before data arrived", "frames", frames)
	}
	if len(images) == 0 {
		return nil, domain.ErrDataNotArrived
	}
	return images, nil
}

// IsReadyForAcquisition reports whether the camera waits for its trigger.
func (c *Controller) IsReadyForAcquisition(ctx context.Context) (bool, error) {
	return c.State() == domain.CameraReadyForAcquisition, nil
}

// FinishRemoteControl returns the camera to local use, aborting a pending acquisition.
func (c *Controller) FinishRemoteControl(ctx context.Context) error {
	c.remote.Store(false)
	c.abortMu.Lock()
	if c.abort != nil {
		c.abort()
	}
	c.abortMu.Unlock()
	c.logger.InfoContext(ctx, "camera back under local control")
	return nil
}

// Attributes returns the active attribute snapshot.
func (c *Controller) Attributes(ctx context.Context) (string, error) {
	c.attrMu.RLock()
	defer c.attrMu.RUnlock()
	return c.attributes, nil
}

package imaging_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingBackend returns err from every acquisition.
type failingBackend struct {
	*imaging.Simulated
	err error
}

func (b failingBackend) Acquire(ctx context.Context, req imaging.Acquisition, armed func()) ([]domain.Image, error) {
	armed()
	return nil, b.err
}

// blockingBackend holds acquisitions until released.
type blockingBackend struct {
	*imaging.Simulated
	release chan struct{}
	armed   chan struct{}
}

func (b blockingBackend) Acquire(ctx context.Context, req imaging.Acquisition, armed func()) ([]domain.Image, error) {
	armed()
	close(b.armed)
	<-b.release
	return b.Simulated.Acquire(ctx, req, func() {})
}

func newSimulated() *imaging.Simulated {
	sim := imaging.NewSimulated(4, 3)
	sim.Exposure = time.Millisecond
	return sim
}

func TestController_Snapshots(t *testing.T) {
	ctx := context.Background()

	t.Run("Single Snapshot Returns To Free", func(t *testing.T) {
		c := imaging.NewController(newSimulated())
		img, err := c.SingleSnapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, img.Width)
		assert.Len(t, img.Pix, 12)
		assert.Equal(t, domain.CameraFree, c.State())
	})

	t.Run("Multiple Snapshot", func(t *testing.T) {
		c := imaging.NewController(newSimulated())
		images, err := c.MultipleSnapshot(ctx, 3)
		require.NoError(t, err)
		assert.Len(t, images, 3)
		assert.NotEqual(t, images[0].Pix, images[1].Pix, "frames should differ")
		assert.Equal(t, domain.CameraFree, c.State())
	})

	t.Run("Backend Error Maps To Timeout", func(t *testing.T) {
		c := imaging.NewController(failingBackend{Simulated: newSimulated(), err: errors.New("usb reset")})
		_, err := c.MultipleSnapshot(ctx, 2)
		assert.ErrorIs(t, err, domain.ErrTimeout)
		assert.Equal(t, domain.CameraFree, c.State())
	})

	t.Run("Single Snapshot Deadline Maps To Timeout", func(t *testing.T) {
		sim := newSimulated()
		sim.Exposure = time.Second
		c := imaging.NewController(sim, imaging.WithTimeout(20*time.Millisecond))
		_, err := c.SingleSnapshot(ctx)
		assert.ErrorIs(t, err, domain.ErrTimeout)
		assert.Equal(t, domain.CameraFree, c.State())
	})
}

func TestController_RejectsWhenNotFree(t *testing.T) {
	ctx := context.Background()
	b := blockingBackend{Simulated: newSimulated(), release: make(chan struct{}), armed: make(chan struct{})}
	c := imaging.NewController(b)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := c.SingleSnapshot(ctx)
		assert.NoError(t, err)
	}()
	<-b.armed

	assert.Equal(t, domain.CameraReadyForAcquisition, c.State())
	ready, err := c.IsReadyForAcquisition(ctx)
	require.NoError(t, err)
	assert.True(t, ready)

	_, err = c.SingleSnapshot(ctx)
	assert.ErrorIs(t, err, domain.ErrCameraBusy)
	_, err = c.MultipleSnapshot(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrCameraBusy)
	assert.ErrorIs(t, c.Stream(ctx, func(domain.Image) {}), domain.ErrCameraBusy)

	close(b.release)
	wg.Wait()
	assert.Equal(t, domain.CameraFree, c.State())
}

func TestController_ConcurrentSnapshotsNeverOverlap(t *testing.T) {
	ctx := context.Background()
	c := imaging.NewController(newSimulated())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, busy int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.SingleSnapshot(ctx)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrCameraBusy):
				busy++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, ok+busy)
	assert.GreaterOrEqual(t, ok, 1)
	assert.Equal(t, domain.CameraFree, c.State())
}

func TestController_Stream(t *testing.T) {
	ctx := context.Background()
	c := imaging.NewController(newSimulated())

	frames := make(chan domain.Image, 64)
	require.NoError(t, c.Stream(ctx, func(img domain.Image) {
		select {
		case frames <- img:
		default:
		}
	}))
	assert.Equal(t, domain.CameraStreaming, c.State())

	select {
	case <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
	}

	require.NoError(t, c.SetAttributes("exposure=5ms"))
	attrs, err := c.Attributes(ctx)
	require.NoError(t, err)
	assert.Equal(t, "exposure=5ms", attrs)

	require.NoError(t, c.StopStream())
	assert.Equal(t, domain.CameraFree, c.State())
	assert.ErrorIs(t, c.StopStream(), imaging.ErrNotStreaming)
}

func TestController_StreamEndsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := imaging.NewController(newSimulated())
	require.NoError(t, c.Stream(ctx, func(domain.Image) {}))
	cancel()

	assert.Eventually(t, func() bool {
		return c.State() == domain.CameraFree
	}, 2*time.Second, 5*time.Millisecond)
}

func TestController_Close(t *testing.T) {
	ctx := context.Background()
	c := imaging.NewController(newSimulated())
	require.NoError(t, c.Close())
	assert.Equal(t, domain.CameraTerminated, c.State())

	_, err := c.SingleSnapshot(ctx)
	assert.ErrorIs(t, err, domain.ErrCameraTerminated)
	assert.ErrorIs(t, c.PrepareRemoteControl(ctx), domain.ErrCameraTerminated)

	exists, err := c.CameraExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, c.Close(), "closing twice is a no-op")
}

func TestController_RemoteControl(t *testing.T) {
	ctx := context.Background()

	t.Run("Grab Completes On Trigger", func(t *testing.T) {
		sim := newSimulated()
		c := imaging.NewController(sim)
		require.NoError(t, c.PrepareRemoteControl(ctx))
		assert.True(t, c.Remote())

		result := make(chan []domain.Image, 1)
		go func() {
			images, err := c.Grab(ctx, 2)
			assert.NoError(t, err)
			result <- images
		}()

		require.Eventually(t, func() bool {
			ready, _ := c.IsReadyForAcquisition(ctx)
			return ready
		}, time.Second, time.Millisecond)
		sim.Fire()

		assert.Len(t, <-result, 2)
		require.NoError(t, c.FinishRemoteControl(ctx))
		assert.False(t, c.Remote())
		assert.Equal(t, domain.CameraFree, c.State())
	})

	t.Run("Finish Aborts Pending Grab", func(t *testing.T) {
		c := imaging.NewController(newSimulated())
		require.NoError(t, c.PrepareRemoteControl(ctx))

		result := make(chan error, 1)
		go func() {
			_, err := c.Grab(ctx, 2)
			result <- err
		}()
		require.Eventually(t, func() bool {
			return c.State() == domain.CameraReadyForAcquisition
		}, time.Second, time.Millisecond)

		require.NoError(t, c.FinishRemoteControl(ctx))
		assert.ErrorIs(t, <-result, domain.ErrDataNotArrived)
		assert.Equal(t, domain.CameraFree, c.State())
	})

	t.Run("Prepare Stops Stream", func(t *testing.T) {
		c := imaging.NewController(newSimulated())
		require.NoError(t, c.Stream(ctx, func(domain.Image) {}))
		require.NoError(t, c.PrepareRemoteControl(ctx))
		assert.Equal(t, domain.CameraFree, c.State())
	})
}

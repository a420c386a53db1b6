package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/cadence/internal/runtime"
	"github.com/aretw0/cadence/pkg/adapters/memory"
	"github.com/aretw0/cadence/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_Contract(t *testing.T) {
	tests.RunIndexContract(t, memory.NewIndex())
}

func TestLocker_Contract(t *testing.T) {
	tests.LockerContract(t, memory.NewLocker())
}

func TestLocker_LeaseExpires(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLocker()

	stale, err := l.Lock(ctx, "hsdigital", 50*time.Millisecond)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlock, err := l.Lock(waitCtx, "hsdigital", time.Second)
	require.NoError(t, err, "expired lease should be taken over")

	assert.Error(t, stale(ctx), "stale holder no longer owns the lease")
	assert.NoError(t, unlock(ctx))
}

func TestRig_HandsLeaseOver(t *testing.T) {
	ctx := context.Background()
	locker := memory.NewLocker()
	rig := memory.NewRig(memory.WithLeaseHolder(locker, time.Minute))
	require.NoError(t, rig.Hold(ctx))

	busyCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err := locker.Lock(busyCtx, runtime.LeaseKey, time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded, "controller holds the lease")

	hw := rig.Hardware()
	require.NoError(t, hw.Releaser.Release(ctx))
	unlock, err := locker.Lock(ctx, runtime.LeaseKey, time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))

	require.NoError(t, hw.Releaser.Reclaim(ctx))
	busyCtx2, cancel2 := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel2()
	_, err = locker.Lock(busyCtx2, runtime.LeaseKey, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "lease is back with the controller")

	assert.Equal(t, []string{"hardware.release", "hardware.reclaim"}, rig.Calls())
}

func TestRig_Faults(t *testing.T) {
	ctx := context.Background()
	rig := memory.NewRig()
	boom := errors.New("boom")

	rig.Fail("stage.go", boom)
	stage := rig.Stage()
	require.NoError(t, stage.Connect(ctx))
	assert.ErrorIs(t, stage.Go(ctx), boom)

	rig.Fail("stage.go", nil)
	assert.NoError(t, stage.Go(ctx))
	assert.Equal(t, 2, rig.Count("stage.go"))

	rig.Reset()
	assert.Empty(t, rig.Calls())
}

func TestRig_CameraAbsent(t *testing.T) {
	rig := memory.NewRig(memory.WithoutCamera())
	exists, err := rig.Imaging().CameraExists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
}

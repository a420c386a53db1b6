package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/cadence/pkg/adapters/redis"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports/tests"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisIndex_Contract(t *testing.T) {
	_, client := newClient(t)
	tests.RunIndexContract(t, redis.NewIndex(client))
}

func TestRedisLocker_Contract(t *testing.T) {
	_, client := newClient(t)
	tests.LockerContract(t, redis.NewLocker(client, "test:"))
}

func TestRedisLocker_KeyLifecycle(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "hsdigital", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:hsdigital"), "lease key should be set in Redis")
	assert.Greater(t, mr.TTL("test:lock:hsdigital"), time.Duration(0), "lease must expire")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:hsdigital"), "lease key should be removed after unlock")
}

func TestRedisLocker_ExpiredLeaseIsNotReleasedByStaleHolder(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	orchestrator := redis.NewLocker(client, "test:")
	controller := redis.NewLocker(client, "test:")

	stale, err := orchestrator.Lock(ctx, "hsdigital", time.Second)
	require.NoError(t, err)

	// The holder crashed; the TTL hands the generator back.
	mr.FastForward(2 * time.Second)

	unlock, err := controller.Lock(ctx, "hsdigital", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, stale(ctx), domain.ErrLeaseNotHeld)
	assert.True(t, mr.Exists("test:lock:hsdigital"), "the new holder keeps its lease")
	assert.NoError(t, unlock(ctx))
}

func TestRedisIndex_Count(t *testing.T) {
	_, client := newClient(t)
	idx := redis.NewIndex(client, redis.WithPrefix("lab:"))
	ctx := context.Background()

	require.NoError(t, idx.Record(ctx, domain.RunSummary{ExperimentID: "20240501_120000", StartedAt: time.Now()}))
	require.NoError(t, idx.Record(ctx, domain.RunSummary{ExperimentID: "20240501_120001", StartedAt: time.Now()}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

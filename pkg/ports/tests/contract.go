package tests

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunIndexContract is a reusable test suite that verifies if an adapter complies with ports.RunIndex.
// The index must start empty.
func RunIndexContract(t *testing.T, index ports.RunIndex) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	summary := func(i, batch int, ok bool) domain.RunSummary {
		started := base.Add(time.Duration(i) * time.Second)
		outcome := domain.OutcomeCompleted
		if !ok {
			outcome = domain.OutcomeAborted
		}
		return domain.RunSummary{
			ExperimentID:  domain.FormatExperimentID(started),
			CorrelationID: fmt.Sprintf("run-%d", i),
			ArchivePath:   fmt.Sprintf("/data/%d.zip", i),
			Definition:    "registry:mot-load",
			Success:       ok,
			Outcome:       outcome,
			BatchNumber:   batch,
			ImageCount:    i,
			StartedAt:     started,
		}
	}

	t.Run("Record and Get", func(t *testing.T) {
		s := summary(0, 1, true)
		require.NoError(t, index.Record(ctx, s))

		got, err := index.Get(ctx, s.ExperimentID)
		require.NoError(t, err)
		assert.Equal(t, s.ExperimentID, got.ExperimentID)
		assert.Equal(t, s.ArchivePath, got.ArchivePath)
		assert.Equal(t, s.Outcome, got.Outcome)
		assert.True(t, got.Success)
		assert.True(t, s.StartedAt.Equal(got.StartedAt), "started_at round trip")
	})

	t.Run("Get Unknown", func(t *testing.T) {
		_, err := index.Get(ctx, "19990101_000000")
		assert.True(t, errors.Is(err, domain.ErrNotFound), "expected ErrNotFound, got %v", err)
	})

	t.Run("Record Replaces", func(t *testing.T) {
		s := summary(0, 1, false)
		require.NoError(t, index.Record(ctx, s))

		got, err := index.Get(ctx, s.ExperimentID)
		require.NoError(t, err)
		assert.False(t, got.Success)
		assert.Equal(t, domain.OutcomeAborted, got.Outcome)
	})

	t.Run("List Newest First With Filters", func(t *testing.T) {
		require.NoError(t, index.Record(ctx, summary(1, 2, true)))
		require.NoError(t, index.Record(ctx, summary(2, 2, true)))
		require.NoError(t, index.Record(ctx, summary(3, 1, true)))

		all, err := index.List(ctx, domain.HistoryFilter{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		for i := 1; i < len(all); i++ {
			assert.True(t, all[i-1].StartedAt.After(all[i].StartedAt), "list must be newest first")
		}

		batch := 2
		filtered, err := index.List(ctx, domain.HistoryFilter{Batch: &batch})
		require.NoError(t, err)
		assert.Len(t, filtered, 2)
		for _, s := range filtered {
			assert.Equal(t, 2, s.BatchNumber)
		}

		limited, err := index.List(ctx, domain.HistoryFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, all[0].ExperimentID, limited[0].ExperimentID)
	})
}

// LockerContract is a reusable test suite that verifies if an adapter complies with ports.Locker.
func LockerContract(t *testing.T, locker ports.Locker) {
	t.Helper()
	ctx := context.Background()

	t.Run("Lock and Unlock", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, "contract-a", 5*time.Second)
		require.NoError(t, err)
		require.NotNil(t, unlock)
		assert.NoError(t, unlock(ctx))

		// Free again after unlock.
		unlock, err = locker.Lock(ctx, "contract-a", 5*time.Second)
		require.NoError(t, err)
		assert.NoError(t, unlock(ctx))
	})

	t.Run("Contention Honors Context", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, "contract-b", 5*time.Second)
		require.NoError(t, err)
		defer unlock(ctx)

		waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
		defer cancel()

		_, err = locker.Lock(waitCtx, "contract-b", 5*time.Second)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Independent Keys", func(t *testing.T) {
		u1, err := locker.Lock(ctx, "contract-c", 5*time.Second)
		require.NoError(t, err)
		defer u1(ctx)

		waitCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		u2, err := locker.Lock(waitCtx, "contract-d", 5*time.Second)
		require.NoError(t, err)
		assert.NoError(t, u2(ctx))
	})

	t.Run("Waiter Acquires After Release", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, "contract-e", 5*time.Second)
		require.NoError(t, err)

		acquired := make(chan error, 1)
		go func() {
			waitCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			u, err := locker.Lock(waitCtx, "contract-e", 5*time.Second)
			if err == nil {
				err = u(ctx)
			}
			acquired <- err
		}()

		time.Sleep(150 * time.Millisecond)
		require.NoError(t, unlock(ctx))
		assert.NoError(t, <-acquired)
	})
}

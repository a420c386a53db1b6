package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lease.
type UnlockFunc func(ctx context.Context) error

// Locker grants exclusive, expiring leases on named resources.
// It guards the high-speed generator shared with the hardware controller process.
type Locker interface {
	// Lock blocks until the lease on key is acquired or ctx is done.
	// The lease expires after ttl even if the holder never unlocks.
	// Returns an UnlockFunc that MUST be called to release the lease.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

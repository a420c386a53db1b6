package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
)

type lease struct {
	token   uint64
	expires time.Time
}

// Locker implements ports.Locker within one process.
// Leases expire after their TTL like their Redis counterparts.
type Locker struct {
	mu     sync.Mutex
	leases map[string]lease
	next   uint64
	now    func() time.Time
	poll   time.Duration
}

// NewLocker creates an in-process locker.
func NewLocker() *Locker {
	return &Locker{
		leases: make(map[string]lease),
		now:    time.Now,
		poll:   10 * time.Millisecond,
	}
}

func (l *Locker) tryLock(key string, ttl time.Duration) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, held := l.leases[key]; held && now.Before(cur.expires) {
		return 0, false
	}
	l.next++
	l.leases[key] = lease{token: l.next, expires: now.Add(ttl)}
	return l.next, true
}

// Lock blocks until key is free or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		if token, ok := l.tryLock(key, ttl); ok {
			return func(context.Context) error {
				l.mu.Lock()
				defer l.mu.Unlock()
				if cur, held := l.leases[key]; !held || cur.token != token {
					return domain.ErrLeaseNotHeld
				}
				delete(l.leases, key)
				return nil
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

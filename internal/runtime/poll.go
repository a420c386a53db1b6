package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
)

// Backoff bounds the interval between two polls.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (b Backoff) next(d time.Duration) time.Duration {
	if d <= 0 {
		d = b.Initial
	} else {
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}

// Poll calls cond until it reports true. The interval starts at b.Initial and
// doubles up to b.Max. A zero timeout waits until ctx is done.
// Expiry and cancellation are KindTimeout errors; cond errors are returned as-is.
func Poll(ctx context.Context, b Backoff, timeout time.Duration, op string, cond func(context.Context) (bool, error)) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var interval time.Duration
	for {
		ok, err := cond(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return timeoutError(op, ctx.Err())
			}
			return err
		}
		if ok {
			return nil
		}

		interval = b.next(interval)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return timeoutError(op, ctx.Err())
		case <-timer.C:
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return timeoutError("settle", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func timeoutError(op string, cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return domain.NewError(domain.KindTimeout, op, fmt.Errorf("%w: %w", domain.ErrTimeout, cause))
	}
	return domain.NewError(domain.KindTimeout, op, cause)
}

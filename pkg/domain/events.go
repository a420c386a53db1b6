package domain

import (
	"context"
	"time"
)

// RunEvent describes a run reaching a phase.
type RunEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	ExperimentID  string    `json:"experiment_id"`
	Definition    string    `json:"definition"`
	Phase         Phase     `json:"phase"`
}

// RunEndEvent describes a finished run.
type RunEndEvent struct {
	RunEvent
	Outcome  Outcome       `json:"outcome"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
}

// ErrorEvent describes a classified failure inside a run.
type ErrorEvent struct {
	RunEvent
	Kind ErrorKind `json:"kind"`
	Err  error     `json:"-"`
}

// LifecycleHooks defines callbacks for run observability.
type LifecycleHooks struct {
	OnRunStart func(context.Context, *RunEvent)
	OnPhase    func(context.Context, *RunEvent)
	OnRunEnd   func(context.Context, *RunEndEvent)
	OnError    func(context.Context, *ErrorEvent)
}

// Combine returns hooks that call every non-nil hook of hs in order.
func Combine(hs ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnRunStart: func(ctx context.Context, e *RunEvent) {
			for _, h := range hs {
				if h.OnRunStart != nil {
					h.OnRunStart(ctx, e)
				}
			}
		},
		OnPhase: func(ctx context.Context, e *RunEvent) {
			for _, h := range hs {
				if h.OnPhase != nil {
					h.OnPhase(ctx, e)
				}
			}
		},
		OnRunEnd: func(ctx context.Context, e *RunEndEvent) {
			for _, h := range hs {
				if h.OnRunEnd != nil {
					h.OnRunEnd(ctx, e)
				}
			}
		},
		OnError: func(ctx context.Context, e *ErrorEvent) {
			for _, h := range hs {
				if h.OnError != nil {
					h.OnError(ctx, e)
				}
			}
		},
	}
}

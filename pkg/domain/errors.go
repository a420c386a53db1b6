package domain

import (
	"errors"
	"fmt"
)

// ErrCameraNotLoaded is returned when a run needs the camera and the imaging service reports none.
var ErrCameraNotLoaded = errors.New("camera not loaded")

// ErrDataNotArrived is returned when an acquisition finished without delivering image data.
var ErrDataNotArrived = errors.New("data didn't arrive")

// ErrRunInProgress is returned when a run is requested while another one is executing.
var ErrRunInProgress = errors.New("run already in progress")

// ErrCameraBusy is returned when an acquisition is requested while the camera is not free.
var ErrCameraBusy = errors.New("camera busy")

// ErrCameraTerminated is returned once the camera has been closed.
var ErrCameraTerminated = errors.New("camera terminated")

// ErrTimeout is returned when a bounded wait expires.
var ErrTimeout = errors.New("timed out")

// ErrNotFound is returned when a run or archive cannot be located.
var ErrNotFound = errors.New("not found")

// ErrLeaseNotHeld is returned when releasing a lease that is no longer owned.
var ErrLeaseNotHeld = errors.New("lease not held")

// ErrorKind classifies run failures so callers can react without string matching.
type ErrorKind string

const (
	KindConfiguration   ErrorKind = "configuration"    // Required hardware absent
	KindDefinitionLoad  ErrorKind = "definition_load"  // Compile, decode or instantiate failure
	KindPatternBuild    ErrorKind = "pattern_build"    // Tracks cannot be built from the parameters
	KindTransport       ErrorKind = "transport"        // Remote collaborator unreachable
	KindDataNotArrived  ErrorKind = "data_not_arrived" // Acquisition ended without images
	KindResourceHandoff ErrorKind = "resource_handoff" // Shared generator could not change hands
	KindTimeout         ErrorKind = "timeout"          // A wait hit its deadline or was cancelled
)

// RunError is a classified failure raised while preparing or executing a run.
type RunError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *RunError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and the operation that failed.
func NewError(kind ErrorKind, op string, err error) *RunError {
	return &RunError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first RunError in the chain, or "" when err is unclassified.
func KindOf(err error) ErrorKind {
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

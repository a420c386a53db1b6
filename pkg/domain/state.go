package domain

// Phase is the conceptual state of a run.
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseLoading              Phase = "loading"
	PhasePreconditionChecking Phase = "precondition_checking"
	PhaseAcquiring            Phase = "acquiring"
	PhaseArming               Phase = "arming"
	PhaseTriggering           Phase = "triggering"
	PhaseAwaitingCompletion   Phase = "awaiting_completion"
	PhaseReporting            Phase = "reporting"
	PhaseReleasing            Phase = "releasing"
	PhaseDone                 Phase = "done"   // Sink state: run finished
	PhaseFailed               Phase = "failed" // Sink state: run aborted
)

// Terminal reports whether the phase is a sink state.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// CameraState is the lifecycle state of the imaging subsystem.
type CameraState int32

const (
	CameraFree CameraState = iota
	CameraBusy
	CameraReadyForAcquisition
	CameraStreaming
	CameraTerminated
)

func (s CameraState) String() string {
	switch s {
	case CameraFree:
		return "free"
	case CameraBusy:
		return "busy"
	case CameraReadyForAcquisition:
		return "ready_for_acquisition"
	case CameraStreaming:
		return "streaming"
	case CameraTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Settings are the persistence toggles of the controller.
type Settings struct {
	SaveEnabled bool `json:"save_enabled"`
	BatchNumber int  `json:"batch_number"`
}

// Status is a point-in-time view of the controller.
type Status struct {
	Running      bool     `json:"running"`
	Phase        Phase    `json:"phase"`
	ExperimentID string   `json:"experiment_id,omitempty"`
	Settings     Settings `json:"settings"`
}

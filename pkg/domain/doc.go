/*
Package domain contains the core models of the Cadence run orchestrator.

It defines what an experiment is, how its parameters resolve, the timing tracks it
produces and the records a run leaves behind. This package is kept pure and free of
I/O, following Hexagonal Architecture principles.

# Key Entities

  - ParameterSet: the resolved name/value mapping that gates hardware and feeds the tracks.
  - Experiment: the capability contract every definition (Go plugin, CUE, document) satisfies.
  - SequenceSpec and Pattern: unbuilt tracks and their fixed-length, tick-resolved output.
  - RunRecord and RunResult: what gets archived and what the caller receives.
  - CameraState and Phase: the observable states of the imaging subsystem and of a run.
*/
package domain

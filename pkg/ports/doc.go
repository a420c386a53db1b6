/*
Package ports defines the driven ports (interfaces) of the Cadence orchestrator.

These interfaces decouple the run engine from the hardware it coordinates and from
the places runs are stored, so the same engine drives real services over HTTP,
simulated hardware, or test doubles.

# Key Interfaces

  - Imaging, Stage, Reporter, HardwareReleaser, Analyzer: remote collaborators.
  - DigitalGenerator, AnalogGenerator, HighSpeedFactory: pattern output.
  - DefinitionLoader and DefinitionCatalog: where experiments come from.
  - ArchiveStore and RunIndex: persistence and replay of runs.
  - Locker: the lease that guards the shared high-speed generator.
*/
package ports

/*
Package http publishes Cadence over HTTP and talks to remote collaborators.

It has three servers:

  - NewHandler serves the orchestrator (runs, replicas, history, settings,
    status and an SSE stream of run events).
  - NewHardwareHandler serves the hardware controller: camera, stage,
    status report and the release/reclaim handshake for the shared
    high-speed generator.
  - NewAnalyzerHandler serves an analysis collaborator.

HardwareClient and AnalyzerClient implement the matching ports so the run
engine can drive hardware living in another process.
*/
package http

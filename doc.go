/*
Package cadence sequences time-critical physical-experiment runs.

A run loads an experiment definition, builds three bounded-length timing
patterns (digital, high-speed digital and analog), takes the shared high-speed
generator from the hardware controller, arms the camera and the translation
stage, triggers the pattern output and, once the images are in, stores a
self-describing archive that can be replayed exactly.

# Concept

The Controller is the entry point. It owns the run lock, the persistence
settings and the event fan-out, and delegates the ordered hardware procedure to
the internal engine. Every collaborator sits behind a port (pkg/ports), so the
same Controller drives real hardware over HTTP or the simulated devices of
pkg/adapters/memory.

# Definitions

References are routed by form:

  - "registry:<name>": a statically typed experiment from pkg/experiments.
  - "*.cue": a declarative definition checked against an embedded CUE schema.
  - "*.md", "*.yaml", "*.json": a declarative document read through Loam.

# Usage

	ctrl, err := cadence.New("./scripts", hw, archive, locker)
	if err != nil {
		log.Fatal(err)
	}

	res, err := ctrl.Run(ctx, domain.RunRequest{
		Definition: "registry:mot-load",
		Overrides:  map[string]any{"NumberOfFrames": 3},
	})
	if err != nil {
		log.Printf("run failed: %v", err)
	}
	fmt.Println(res.ExperimentID, res.ArchivePath)
*/
package cadence

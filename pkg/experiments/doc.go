// Package experiments contains the experiments built into cadence.
//
// Register adds them to a registry under the names "dual-valve" and "mot-load".
package experiments

import "github.com/aretw0/cadence/pkg/registry"

// Register adds every built-in experiment to r.
func Register(r *registry.Registry) {
	r.Register(DualValveName, "two-valve shot sequence: discharge, valve 1 pulse, valve 2 pulse", NewDualValve)
	r.Register(MOTLoadName, "load a MOT, release and image it", NewMOTLoad)
}

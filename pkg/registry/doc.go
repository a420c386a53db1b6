// Package registry holds the statically typed experiments compiled into the binary.
//
// A registry is also a definition source: references of the form "registry:<name>"
// and archived ".plugin" files resolve to a fresh instance of the named experiment.
package registry

// Package definition resolves experiment references into loaded definitions.
//
// A Loader routes each reference to the first Source that matches it, merges
// the caller's overrides over the experiment defaults and validates the result
// against the well-known parameter schema.
//
// The package also holds Document, the declarative experiment format shared by
// the CUE compiler and the document catalog.
package definition

// Package compiler turns CUE experiment definitions into declarative documents.
//
// Definitions are unified with an embedded schema before they are decoded, so
// type and range errors carry the file position of the offending field.
package compiler

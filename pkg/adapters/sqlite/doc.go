// Package sqlite is the default run index: a single SQLite file next to the archives.
package sqlite

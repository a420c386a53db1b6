// Package mcp exposes the run controller as a Model Context Protocol server.
//
// Tools: run_experiment, replay_run, list_runs, list_definitions, set_save
// and set_batch. Resource: cadence://status.
package mcp

// Package redis shares run state between lab processes: the lease on the
// high-speed generator and, for multi-host deployments, the run index.
package redis

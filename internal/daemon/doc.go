// Package daemon runs the pipeline loops as a single background process.
// A file lock enforces one instance per data directory; the stage
// advancer, reconcilers, archiver, and idea ingester each run on their own
// ticker until the daemon stops.
package daemon

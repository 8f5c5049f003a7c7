// Package logs reads the daemon's log file for `fetchbot logs`: the last N
// lines, optionally filtered, then an optional poll-based follow that survives
// the file being replaced on daemon restart.
package logs

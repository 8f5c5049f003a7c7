// Package logging assembles structured slog loggers and formatting helpers used
// across fetchbot services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so scheduler and stage code can
// tag log lines with job IDs, user IDs, stages, and correlation IDs. The
// package also provides a no-op logger for tests and a progress sampler that
// keeps download and transcode progress from flooding logs or chat.
package logging

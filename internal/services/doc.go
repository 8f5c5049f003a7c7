// Package services defines shared utilities consumed by the pipeline stages,
// the scheduler, and the session layer.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, user IDs, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper, and KindOf which maps any
//     failure onto the stable kind recorded on jobs and shown to users.
//   - RetryPolicy, the one backoff implementation shared by the download,
//     transcode, and upload executors.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services

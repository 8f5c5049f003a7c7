// Package workflow drives jobs through the download, transcode and upload
// stages.
//
// The Scheduler owns a bounded FIFO queue and a fixed pool of workers. A
// worker takes the oldest queued job whose user has nothing executing, so one
// busy user never holds back others, and each user runs at most one job at a
// time. Submissions beyond the queue bound fail immediately with
// CapacityExceeded.
//
// Every stage runs under its own correlation id with the job's cancel request
// wired into the stage context. A stage that ignores cancellation is abandoned
// after the configured grace period and its files are reclaimed with the rest
// of the job. Terminal jobs are acknowledged to the Observer, their ephemeral
// storage is released, and the outcome is appended to history.
package workflow

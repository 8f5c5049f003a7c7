package ipc

import (
	"fetchbot/internal/daemon"
	"fetchbot/internal/history"
	"fetchbot/internal/job"
)

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse wraps the daemon status snapshot.
type StatusResponse struct {
	Status daemon.Status `json:"status"`
}

// JobsRequest lists live jobs.
type JobsRequest struct{}

// JobsResponse contains the live jobs in creation order.
type JobsResponse struct {
	Jobs []job.Snapshot `json:"jobs"`
}

// HistoryRequest fetches recent outcomes.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse contains recent outcomes and per-state totals.
type HistoryResponse struct {
	Outcomes []history.Outcome `json:"outcomes"`
	Counts   map[string]int    `json:"counts"`
}

// SweepRequest triggers an ephemeral sweep.
type SweepRequest struct{}

// SweepResponse lists the reclaimed paths and failures.
type SweepResponse struct {
	Removed []string `json:"removed"`
	Errors  []string `json:"errors,omitempty"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// CancelJobRequest cancels a live job by full ID or unique suffix.
type CancelJobRequest struct {
	Job string `json:"job"`
}

// CancelJobResponse echoes the job the request resolved to.
type CancelJobResponse struct {
	Job job.Snapshot `json:"job"`
}

package stage

import (
	"context"
	"os"
	"strings"
	"time"

	"fetchbot/internal/job"
	"fetchbot/internal/services"
)

// ProgressFunc receives byte progress. total <= 0 means unknown.
type ProgressFunc func(bytes, total int64)

// Work carries one job through the stages. Each stage reads Artifact left by
// the previous one and replaces it with its own output.
type Work struct {
	Job *job.Job
	// Artifact is the path of the file produced by the last completed stage.
	Artifact string
	// DeliveryID is set by the upload stage.
	DeliveryID string

	stage    string
	progress func(stage string, bytes, total int64)
	percent  func(stage string, percent float64)
}

// NewWork prepares the carrier for j. The callbacks may be nil.
func NewWork(j *job.Job, progress func(stage string, bytes, total int64), percent func(stage string, percent float64)) *Work {
	return &Work{Job: j, progress: progress, percent: percent}
}

// Enter marks the start of stage; progress reports are tagged with it.
func (w *Work) Enter(stage string) {
	w.stage = stage
}

// Stage returns the stage currently executing.
func (w *Work) Stage() string { return w.stage }

// Progress reports byte progress for the current stage.
func (w *Work) Progress(bytes, total int64) {
	if w.progress != nil {
		w.progress(w.stage, bytes, total)
	}
}

// Percent reports percentage progress for the current stage.
func (w *Work) Percent(percent float64) {
	if w.percent != nil {
		w.percent(w.stage, percent)
	}
}

// BeginAttempt records an attempt of the current stage with its deadline.
func (w *Work) BeginAttempt(timeout time.Duration) int {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	return w.Job.RecordAttempt(w.stage, deadline)
}

// ObserveAttempts returns a context that records every retry attempt of the
// current stage on the job. The job carries the attempt deadline only while
// the attempt runs.
func (w *Work) ObserveAttempts(ctx context.Context, timeout time.Duration) context.Context {
	return services.WithAttemptHooks(ctx, services.AttemptHooks{
		Begin: func(int) { w.BeginAttempt(timeout) },
		End:   func(int, error) { w.Job.ClearDeadline() },
	})
}

// RequireArtifact checks that the previous stage left a file behind.
func (w *Work) RequireArtifact() (os.FileInfo, error) {
	path := strings.TrimSpace(w.Artifact)
	if path == "" {
		return nil, services.Wrap(services.ErrValidation, w.stage, "artifact", "previous stage produced no file", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, w.stage, "artifact", "input file missing", err)
	}
	return info, nil
}

package orchestrator

import (
	"context"
	"time"

	"fetchbot/internal/job"
	"fetchbot/internal/logging"
	"fetchbot/internal/media"
)

// ResolutionFinished offers the resolved formats or explains the failure.
func (f *Facade) ResolutionFinished(ctx context.Context, userID int64, res media.Resolution, err error) {
	key := f.requestKey(userID)
	if err != nil {
		_ = f.notify(ctx, Notification{UserID: userID, Text: messageFor(err, 0), ReplaceKey: key})
		return
	}
	text, choices := formatPrompt(res)
	_ = f.notify(ctx, Notification{UserID: userID, Text: text, Choices: choices, ReplaceKey: key})
}

// JobStarted tells the user a worker picked up the job.
func (f *Facade) JobStarted(ctx context.Context, snap job.Snapshot) {
	track := f.track(snap.ID)
	f.mu.Lock()
	track.started = true
	f.mu.Unlock()
	track.sampler.ShouldLog(-1, "start", time.Now())
	_ = f.notify(ctx, Notification{
		UserID:     snap.UserID,
		Text:       "Starting " + snap.Title + " (" + snap.FormatLabel + ")",
		Choices:    []Choice{cancelChoice()},
		ReplaceKey: jobKey(snap.ID),
	})
}

// JobProgress propagates session expiry and updates the progress message,
// throttled to a 5 point advance or a few seconds.
func (f *Facade) JobProgress(ctx context.Context, snap job.Snapshot) {
	sessions, _ := f.bound()
	if sessions != nil && sessions.ProgressTick(snap.UserID, snap.ID) {
		return
	}
	if snap.CancelRequested {
		return
	}
	track := f.track(snap.ID)
	if !track.sampler.ShouldLog(snap.Progress.Percent, snap.Progress.Stage, time.Now()) {
		return
	}
	_ = f.notify(ctx, Notification{
		UserID:     snap.UserID,
		Text:       progressText(snap),
		Choices:    []Choice{cancelChoice()},
		ReplaceKey: jobKey(snap.ID),
	})
}

// JobTerminal reports the outcome. Its return value is the acknowledgement
// the scheduler waits for before releasing the job's files.
func (f *Facade) JobTerminal(ctx context.Context, snap job.Snapshot) error {
	defer f.forget(snap.ID)
	if sessions, _ := f.bound(); sessions != nil {
		sessions.JobFinished(snap.UserID, snap.ID)
	}
	f.logger.Debug("acknowledging job outcome",
		logging.JobID(snap.ID),
		logging.String("state", string(snap.State)),
		logging.String(logging.FieldEventType, "job_ack"),
	)
	return f.notify(ctx, Notification{
		UserID:     snap.UserID,
		Text:       terminalText(snap),
		ReplaceKey: jobKey(snap.ID),
	})
}

package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fetchbot/internal/history"
	"fetchbot/internal/job"
	"fetchbot/internal/logging"
	"fetchbot/internal/notifications"
	"fetchbot/internal/services"
)

// finish moves j to its terminal state and runs the terminal sequence:
// free the user's slot, acknowledge to the observer, release ephemeral
// storage, record history, alert operators, drop the job from the registry.
func (s *Scheduler) finish(ctx context.Context, j *job.Job, runErr error) {
	ctx = context.WithoutCancel(ctx)
	logger := logging.WithContext(services.WithUserID(services.WithJobID(ctx, j.ID()), j.UserID()), s.logger)

	if runErr != nil && j.CancelRequested() && services.KindOf(runErr) != services.KindCancelled {
		runErr = errors.Join(cancellationError(j), runErr)
	}
	state, err := j.Finish(runErr)
	if err != nil {
		logger.Warn("job already terminal", logging.Error(err))
	}

	s.mu.Lock()
	if current, ok := s.running[j.UserID()]; ok && current == j {
		delete(s.running, j.UserID())
	}
	if s.users[j.UserID()] == j.ID() {
		delete(s.users, j.UserID())
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	snap := j.Snapshot()
	s.logOutcome(logger, state, snap)
	s.acknowledge(ctx, logger, snap)

	if s.store != nil {
		if err := s.store.ReleaseJob(j.ID()); err != nil {
			logging.WarnWithContext(logger, "ephemeral release failed", "ephemeral_release_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "job files remain until the next sweep"),
				logging.String(logging.FieldErrorHint, "check permissions on paths.ephemeral_dir"),
			)
		}
	}

	if s.history != nil {
		if err := s.history.RecordOutcome(ctx, history.OutcomeFromSnapshot(snap)); err != nil {
			logging.WarnWithContext(logger, "history record failed", "history_record_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "job missing from history"),
				logging.String(logging.FieldErrorHint, "check the history database under paths.state_dir"),
			)
		}
	}

	if state == job.StateFailed {
		s.notifyFailure(ctx, logger, snap)
	}

	s.mu.Lock()
	delete(s.jobs, j.ID())
	s.lastJob = &snap
	s.mu.Unlock()
}

func (s *Scheduler) acknowledge(ctx context.Context, logger *slog.Logger, snap job.Snapshot) {
	if s.observer == nil {
		return
	}
	timeout := s.ackTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ackCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.observer.JobTerminal(ackCtx, snap)
	}()
	select {
	case err := <-done:
		if err != nil {
			logging.WarnWithContext(logger, "terminal acknowledgement failed", "job_ack_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "user may not have been told the outcome"),
				logging.String(logging.FieldErrorHint, "check messaging platform connectivity"),
			)
		}
	case <-ackCtx.Done():
		logging.WarnWithContext(logger, "terminal acknowledgement timed out", "job_ack_timeout",
			logging.Duration("ack_timeout", timeout),
			logging.String(logging.FieldImpact, "job files released without acknowledgement"),
			logging.String(logging.FieldErrorHint, "check messaging platform connectivity"),
		)
	}
}

func (s *Scheduler) logOutcome(logger *slog.Logger, state job.State, snap job.Snapshot) {
	attrs := []logging.Attr{
		logging.String("state", string(state)),
		logging.Duration("job_duration", snap.FinishedAt.Sub(snap.CreatedAt)),
		logging.Int64("bytes_transferred", snap.BytesTransferred),
		logging.String(logging.FieldEventType, "job_terminal"),
	}
	if snap.LastError != nil {
		attrs = append(attrs,
			logging.ErrorKind(snap.LastError.Kind),
			logging.String("error_message", snap.LastError.Message),
		)
	}
	if snap.DeliveryID != "" {
		attrs = append(attrs, logging.String("delivery_id", snap.DeliveryID))
	}
	logger.Info("job finished", logging.Args(attrs...)...)
}

func (s *Scheduler) notifyFailure(ctx context.Context, logger *slog.Logger, snap job.Snapshot) {
	if s.notifier == nil || snap.LastError == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := s.notifier.Publish(notifyCtx, notifications.EventJobFailed, notifications.Payload{
		"title": snap.Title,
		"kind":  string(snap.LastError.Kind),
		"error": snap.LastError.Message,
		"jobID": snap.ID,
	})
	if err != nil {
		logger.Debug("job failure notification failed", logging.Error(err))
	}
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fetchbot/internal/job"
	"fetchbot/internal/logging"
	"fetchbot/internal/services"
	"fetchbot/internal/stage"
)

func (s *Scheduler) process(ctx context.Context, workerLogger *slog.Logger, j *job.Job) {
	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-j.CancelCh():
			cancel(cancellationError(j))
		case <-jobCtx.Done():
		}
	}()
	jobCtx = services.WithJobID(jobCtx, j.ID())
	jobCtx = services.WithUserID(jobCtx, j.UserID())
	logger := logging.WithContext(jobCtx, workerLogger)

	sampler := logging.NewProgressSampler(5, s.progressInterval)
	report := func(p job.Progress) {
		if !sampler.ShouldLog(p.Percent, p.Stage, time.Now()) {
			return
		}
		logger.Debug("job progress",
			logging.Stage(p.Stage),
			logging.Float64(logging.FieldProgressPercent, p.Percent),
			logging.Int64("bytes", p.Bytes),
			logging.String(logging.FieldEventType, "job_progress"),
		)
		if s.observer != nil {
			s.observer.JobProgress(jobCtx, j.Snapshot())
		}
	}
	w := stage.NewWork(j,
		func(name string, bytes, total int64) { report(j.SetProgress(name, bytes, total)) },
		func(name string, percent float64) { report(j.SetPercent(name, percent)) },
	)

	logger.Info("job started",
		logging.String("source_url", j.SourceURL()),
		logging.String("format_label", j.Format().Label),
		logging.Duration("queue_wait", time.Since(j.CreatedAt())),
		logging.String(logging.FieldEventType, "job_start"),
	)
	if s.observer != nil {
		s.observer.JobStarted(jobCtx, j.Snapshot())
	}

	err := s.runStages(jobCtx, logger, w)
	s.finish(ctx, j, err)
}

func (s *Scheduler) runStages(ctx context.Context, logger *slog.Logger, w *stage.Work) error {
	s.mu.Lock()
	stages := s.stages
	s.mu.Unlock()

	j := w.Job
	for _, stg := range stages {
		if stg.applies != nil && !stg.applies(j) {
			continue
		}
		if j.CancelRequested() {
			return cancellationError(j)
		}
		if err := j.Transition(stg.state); err != nil {
			return err
		}
		if err := s.executeStage(ctx, logger, stg, w); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) executeStage(ctx context.Context, logger *slog.Logger, stg pipelineStage, w *stage.Work) error {
	requestID := uuid.NewString()
	stageCtx := services.WithRequestID(services.WithStage(ctx, stg.name), requestID)
	stageLogger := logger.With(
		logging.Stage(stg.name),
		logging.String(logging.FieldCorrelationID, requestID),
	)
	if aware, ok := stg.handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}
	w.Enter(stg.name)

	stageStart := time.Now()
	stageLogger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	if err := stg.handler.Prepare(stageCtx, w); err != nil {
		s.logStageFailure(stageLogger, stg.name, err)
		return err
	}
	if err := s.executeWithGrace(stageCtx, stg, w); err != nil {
		s.logStageFailure(stageLogger, stg.name, err)
		return err
	}

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	return nil
}

// deadlineCheckInterval is how often a running stage's attempt deadline is
// compared against the clock.
const deadlineCheckInterval = 100 * time.Millisecond

// executeWithGrace runs the stage and gives it cancelGrace to return once its
// context ends or its current attempt passes the deadline. A stage that
// overstays is abandoned and its worker moves on.
func (s *Scheduler) executeWithGrace(ctx context.Context, stg pipelineStage, w *stage.Work) error {
	done := make(chan error, 1)
	go func() {
		done <- stg.handler.Execute(ctx, w)
	}()

	ticker := time.NewTicker(deadlineCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return s.awaitStopped(ctx, stg.name, done)
		case now := <-ticker.C:
			deadline := w.Job.Deadline()
			if !deadline.IsZero() && now.After(deadline.Add(s.cancelGrace)) {
				return overstayed(stg, s.cancelGrace)
			}
		}
	}
}

// overstayed is the failure of a stage abandoned past its attempt deadline,
// marked like the stage's own timeout.
func overstayed(stg pipelineStage, grace time.Duration) error {
	err := fmt.Errorf("%w: %s stage still running %s past its attempt deadline", services.ErrTimeout, stg.name, grace)
	switch stg.state {
	case job.StateDownloading:
		return fmt.Errorf("%w: %w", services.ErrDownload, err)
	case job.StateTranscoding:
		return fmt.Errorf("%w: %w", services.ErrTranscode, err)
	case job.StateUploading:
		return fmt.Errorf("%w: %w", services.ErrUpload, err)
	default:
		return err
	}
}

func (s *Scheduler) awaitStopped(ctx context.Context, stageName string, done <-chan error) error {
	timer := time.NewTimer(s.cancelGrace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("%w: %s stage did not stop within %s", services.ContextError(ctx), stageName, s.cancelGrace)
	}
}

func (s *Scheduler) logStageFailure(logger *slog.Logger, stageName string, err error) {
	kind := services.KindOf(err)
	if kind == services.KindCancelled {
		logger.Info("stage cancelled",
			logging.String(logging.FieldEventType, "stage_cancelled"),
			logging.Error(err),
		)
		return
	}
	s.setLastError(err)
	logging.WarnWithContext(logger, "stage failed", "stage_failure",
		logging.ErrorKind(kind),
		logging.Error(err),
		logging.String(logging.FieldImpact, fmt.Sprintf("job fails at %s", stageName)),
		logging.String(logging.FieldErrorHint, hintForKind(kind)),
	)
}

// cancellationError turns a job's cancel reason into an error marked
// ErrCancelled.
func cancellationError(j *job.Job) error {
	reason := j.CancelReason()
	if reason == nil {
		return services.ErrCancelled
	}
	if errors.Is(reason, services.ErrCancelled) {
		return reason
	}
	return fmt.Errorf("%w: %w", services.ErrCancelled, reason)
}

func hintForKind(kind services.Kind) string {
	switch kind {
	case services.KindSizeLimitExceeded:
		return "pick a smaller format"
	case services.KindQuotaExceeded:
		return "raise limits.ephemeral_quota_bytes or free disk space"
	case services.KindTimeout, services.KindTranscodeTimeout:
		return "raise the stage timeout in [stages]"
	case services.KindDownloadTransient, services.KindUploadRateLimited:
		return "remote side is unstable; retries exhausted"
	case services.KindTranscodePermanent:
		return "check ffmpeg installation and codecs"
	default:
		return "see error detail"
	}
}

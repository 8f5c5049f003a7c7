package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"fetchbot/internal/config"
	"fetchbot/internal/ephemeral"
	"fetchbot/internal/logging"
	"fetchbot/internal/stage"
)

// Transcoder is the transcode stage handler.
type Transcoder struct {
	executor *Executor
	store    *ephemeral.Manager
	bitrate  int
	logger   *slog.Logger
}

// NewTranscoder builds the handler from configuration.
func NewTranscoder(cfg *config.Config, store *ephemeral.Manager, logger *slog.Logger) *Transcoder {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "transcoder")
	return &Transcoder{
		executor: &Executor{
			FFmpeg:      cfg.Transcode.FFmpegBinary,
			FFprobe:     cfg.Transcode.FFprobeBinary,
			Policy:      stage.RetryPolicy(cfg, "transcode", logger),
			Timeout:     cfg.StageTimeout("transcode"),
			Multiplier:  cfg.Stages.TranscodeTimeoutMultiplier,
			CancelGrace: time.Duration(cfg.Stages.CancelGraceSeconds) * time.Second,
			Logger:      logger,
		},
		store:   store,
		bitrate: cfg.Transcode.AudioBitrateKbps,
		logger:  logger,
	}
}

// SetLogger replaces the stage logger.
func (t *Transcoder) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger
		t.executor.Logger = logger
	}
}

// Prepare checks the downloaded artifact is present.
func (t *Transcoder) Prepare(_ context.Context, w *stage.Work) error {
	_, err := w.RequireArtifact()
	return err
}

// Execute converts the artifact into the format's target container.
func (t *Transcoder) Execute(ctx context.Context, w *stage.Work) error {
	j := w.Job
	format := j.Format()
	token, err := t.store.Reserve(j.ID(), j.SizeLimit())
	if err != nil {
		return err
	}
	defer token.Release()

	src := w.Artifact
	target := Target{
		Kind:             format.Kind,
		Container:        format.TargetContainer(),
		AudioBitrateKbps: t.bitrate,
		DurationSeconds:  j.Info().DurationSeconds,
		SizeLimitBytes:   j.SizeLimit(),
	}
	ctx = w.ObserveAttempts(ctx, t.executor.Deadline(target.DurationSeconds))

	started := time.Now()
	dest, err := t.executor.Transcode(ctx, src, target, w.Percent)
	j.UntrackPath(src)
	if err != nil {
		return err
	}
	j.TrackPath(dest)
	w.Artifact = dest
	t.logger.Info("transcode finished",
		logging.String("container", target.Container),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "transcode_completed"),
	)
	return nil
}

// HealthCheck verifies ffmpeg is on PATH.
func (t *Transcoder) HealthCheck(context.Context) stage.Health {
	binary := t.executor.FFmpeg
	if binary == "" {
		binary = "ffmpeg"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy("transcode", fmt.Sprintf("%s not found", binary))
	}
	if t.store == nil {
		return stage.Unhealthy("transcode", "ephemeral store unavailable")
	}
	return stage.Healthy("transcode")
}

package upload

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"fetchbot/internal/config"
	"fetchbot/internal/logging"
	"fetchbot/internal/media"
	"fetchbot/internal/stage"
	"fetchbot/internal/textutil"
)

// Uploader is the upload stage handler.
type Uploader struct {
	executor *Executor
	timeout  time.Duration
	logger   *slog.Logger
}

// NewUploader builds the handler around sender.
func NewUploader(cfg *config.Config, sender Sender, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "uploader")
	return &Uploader{
		executor: NewExecutor(sender, cfg.Telegram.MaxFileSizeBytes, stage.RetryPolicy(cfg, "upload", logger), logger),
		timeout:  cfg.StageTimeout("upload"),
		logger:   logger,
	}
}

// SetLogger replaces the stage logger.
func (u *Uploader) SetLogger(logger *slog.Logger) {
	if logger != nil {
		u.logger = logger
	}
}

// Prepare checks the artifact exists.
func (u *Uploader) Prepare(_ context.Context, w *stage.Work) error {
	_, err := w.RequireArtifact()
	return err
}

// Execute delivers the artifact to the job's user.
func (u *Uploader) Execute(ctx context.Context, w *stage.Work) error {
	j := w.Job
	format := j.Format()
	dest := Destination{
		ChatID:     j.UserID(),
		FileName:   DeliveryName(j.FileName(), w.Artifact),
		Kind:       format.Kind,
		AsDocument: j.SendAsDocument() && format.Kind == media.KindVideo,
	}
	caption := j.Info().DisplayTitle()

	started := time.Now()
	ctx = w.ObserveAttempts(ctx, u.timeout)
	id, err := u.executor.Upload(ctx, w.Artifact, dest, caption, w.Progress)
	if err != nil {
		return err
	}
	w.DeliveryID = id
	j.SetDeliveryID(id)
	u.logger.Info("upload finished",
		logging.String("delivery_id", id),
		logging.String("file_name", dest.FileName),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "upload_completed"),
	)
	return nil
}

// HealthCheck reports readiness.
func (u *Uploader) HealthCheck(context.Context) stage.Health {
	if u.executor.sender == nil {
		return stage.Unhealthy("upload", "sender unavailable")
	}
	return stage.Healthy("upload")
}

// DeliveryName combines the job's base name with the artifact's extension.
func DeliveryName(base, artifact string) string {
	ext := filepath.Ext(artifact)
	base = strings.TrimSpace(base)
	if base == "" {
		base = strings.TrimSuffix(filepath.Base(artifact), ext)
	}
	name := textutil.SanitizeFileName(base)
	if name == "" {
		name = "media"
	}
	return name + ext
}

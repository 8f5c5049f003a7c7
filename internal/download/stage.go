package download

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fetchbot/internal/config"
	"fetchbot/internal/ephemeral"
	"fetchbot/internal/logging"
	"fetchbot/internal/services"
	"fetchbot/internal/stage"
)

// Downloader is the download stage handler.
type Downloader struct {
	executor *Executor
	store    *ephemeral.Manager
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDownloader wires the executor to ephemeral storage.
func NewDownloader(cfg *config.Config, store *ephemeral.Manager, executor *Executor, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "downloader")
	if executor == nil {
		executor = NewExecutor(nil, stage.RetryPolicy(cfg, "download", logger), logger)
	}
	return &Downloader{
		executor: executor,
		store:    store,
		timeout:  cfg.StageTimeout("download"),
		logger:   logger,
	}
}

// SetLogger replaces the stage logger.
func (d *Downloader) SetLogger(logger *slog.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// Prepare rejects formats that cannot fit before any bytes move.
func (d *Downloader) Prepare(_ context.Context, w *stage.Work) error {
	format := w.Job.Format()
	if strings.TrimSpace(format.SourceURL) == "" {
		return services.Wrap(services.ErrDownload, "download", "prepare", "format has no stream url", nil)
	}
	if format.SizeKnown() && format.EstimatedSizeBytes > w.Job.SizeLimit() {
		return services.Wrap(services.ErrSizeLimitExceeded, "download", "prepare",
			fmt.Sprintf("estimated %d bytes exceeds %d", format.EstimatedSizeBytes, w.Job.SizeLimit()), nil)
	}
	return nil
}

// Execute streams the chosen format into the job's ephemeral directory.
func (d *Downloader) Execute(ctx context.Context, w *stage.Work) error {
	j := w.Job
	format := j.Format()
	reserve := j.SizeLimit()
	if format.SizeKnown() && format.EstimatedSizeBytes < reserve {
		reserve = format.EstimatedSizeBytes
	}
	token, err := d.store.Reserve(j.ID(), reserve)
	if err != nil {
		return err
	}
	defer token.Release()

	ext := format.ContainerHint
	if ext == "" {
		ext = "bin"
	}
	dest, err := token.Path("source." + ext)
	if err != nil {
		return err
	}
	j.TrackPath(dest)

	started := time.Now()
	ctx = w.ObserveAttempts(ctx, d.timeout)
	written, err := d.executor.Download(ctx, format.SourceURL, format, dest, j.SizeLimit(), func(n, total int64) {
		w.Progress(n, total)
	})
	if err != nil {
		j.UntrackPath(dest)
		return err
	}
	w.Artifact = dest
	d.logger.Info("download finished",
		logging.Int64("size_bytes", written),
		logging.Duration("elapsed", time.Since(started)),
		logging.String("format_label", format.Label),
		logging.String(logging.FieldEventType, "download_completed"),
	)
	return nil
}

// HealthCheck reports readiness.
func (d *Downloader) HealthCheck(context.Context) stage.Health {
	if d.store == nil {
		return stage.Unhealthy("download", "ephemeral store unavailable")
	}
	return stage.Healthy("download")
}

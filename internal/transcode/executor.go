package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fetchbot/internal/logging"
	"fetchbot/internal/media"
	"fetchbot/internal/media/ffprobe"
	"fetchbot/internal/services"
)

// Executor runs ffmpeg conversions.
type Executor struct {
	FFmpeg     string
	FFprobe    string
	Policy     services.RetryPolicy
	Timeout    time.Duration
	Multiplier float64
	// CancelGrace is how long ffmpeg may take to exit after SIGINT.
	CancelGrace time.Duration
	Logger      *slog.Logger
}

// Deadline returns max(Timeout, Multiplier * duration).
func (e *Executor) Deadline(durationSeconds float64) time.Duration {
	scaled := time.Duration(e.Multiplier * durationSeconds * float64(time.Second))
	if scaled > e.Timeout {
		return scaled
	}
	return e.Timeout
}

// Transcode converts src into the target container next to it and returns the
// output path. src is removed whatever the outcome; the output is removed on
// failure or when it exceeds the target size limit.
func (e *Executor) Transcode(ctx context.Context, src string, target Target, onPercent func(float64)) (string, error) {
	defer os.Remove(src)

	logger := e.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	container := strings.TrimPrefix(strings.TrimSpace(target.Container), ".")
	if container == "" {
		return "", services.Wrap(services.ErrTranscode, "transcode", "prepare", "target container not set", nil)
	}
	dest := filepath.Join(filepath.Dir(src), "output."+container)
	if dest == src {
		dest = filepath.Join(filepath.Dir(src), "output.transcoded."+container)
	}

	duration := target.DurationSeconds
	if duration <= 0 && e.FFprobe != "" {
		if probe, err := ffprobe.Run(ctx, e.FFprobe, src); err == nil {
			duration = probe.Duration().Seconds()
		} else {
			logger.Debug("ffprobe failed; using base transcode deadline", logging.Error(err))
		}
	}

	policy := e.Policy
	policy.AttemptTimeout = e.Deadline(duration)
	policy.Classify = func(err error) bool { return errors.Is(err, services.ErrTimeout) }

	err := policy.Do(ctx, func(ctx context.Context, _ int) error {
		return e.run(ctx, src, dest, target, duration, onPercent)
	})
	if err != nil {
		_ = os.Remove(dest)
		if errors.Is(err, services.ErrCancelled) || errors.Is(err, services.ErrTranscode) {
			return "", err
		}
		return "", services.Wrap(services.ErrTranscode, "transcode", "ffmpeg", "", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return "", services.Wrap(services.ErrTranscode, "transcode", "verify", "output missing", err)
	}
	if target.SizeLimitBytes > 0 && info.Size() > target.SizeLimitBytes {
		_ = os.Remove(dest)
		return "", services.Wrap(services.ErrSizeLimitExceeded, "transcode", "verify",
			fmt.Sprintf("output %d bytes exceeds %d", info.Size(), target.SizeLimitBytes), nil)
	}
	if err := e.verifyStreams(ctx, dest, target.Kind, logger); err != nil {
		_ = os.Remove(dest)
		return "", err
	}
	return dest, nil
}

// verifyStreams rejects outputs missing the stream their kind needs. Probe
// failures are logged and tolerated since ffprobe is optional.
func (e *Executor) verifyStreams(ctx context.Context, dest string, kind media.Kind, logger *slog.Logger) error {
	if e.FFprobe == "" {
		return nil
	}
	probe, err := ffprobe.Run(ctx, e.FFprobe, dest)
	if err != nil {
		logger.Debug("ffprobe on output failed; skipping stream check", logging.Error(err))
		return nil
	}
	want := "audio"
	if kind == media.KindVideo {
		want = "video"
	}
	if probe.Count(want) == 0 {
		return services.Wrap(services.ErrTranscode, "transcode", "verify",
			fmt.Sprintf("output has no %s stream", want), nil)
	}
	return nil
}

func (e *Executor) run(ctx context.Context, src, dest string, target Target, duration float64, onPercent func(float64)) error {
	binary := e.FFmpeg
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, binary, BuildArgs(src, dest, target)...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = e.CancelGrace

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return services.Wrap(services.ErrTranscode, "transcode", "ffmpeg", "open stderr", err)
	}
	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrTranscode, "transcode", "ffmpeg", "start ffmpeg", err)
	}

	reader := &progressReader{duration: duration, report: onPercent}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reader.consume(stderr)
	}()
	wg.Wait()
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		_ = os.Remove(dest)
		return ctxErr
	}
	if waitErr != nil {
		_ = os.Remove(dest)
		detail := reader.diagnostics()
		if detail == "" {
			detail = waitErr.Error()
		}
		return services.Wrap(services.ErrTranscode, "transcode", "ffmpeg", detail, waitErr)
	}
	return nil
}

package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"fetchbot/internal/logging"
	"fetchbot/internal/media"
	"fetchbot/internal/services"
)

const bufferSize = 32 * 1024

var errLimitReached = errors.New("size limit reached")

// ProgressFunc receives the cumulative bytes written and the expected total
// (0 when unknown).
type ProgressFunc func(written, total int64)

// Executor downloads direct stream URLs over HTTP.
type Executor struct {
	client *http.Client
	policy services.RetryPolicy
	logger *slog.Logger
}

// NewExecutor builds an executor. A nil client uses a client without an
// overall timeout; deadlines come from the retry policy.
func NewExecutor(client *http.Client, policy services.RetryPolicy, logger *slog.Logger) *Executor {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{client: client, policy: policy, logger: logger}
}

// Download streams url into destPath and returns the bytes written. It fails
// with ErrSizeLimitExceeded as soon as the cumulative size would pass limit;
// the partial file is removed on every failure.
func (e *Executor) Download(ctx context.Context, url string, format media.FormatOption, destPath string, limit int64, onProgress ProgressFunc) (int64, error) {
	if url == "" {
		return 0, services.Wrap(services.ErrDownload, "download", "request", "format has no stream url", nil)
	}
	if limit <= 0 {
		return 0, services.Wrap(services.ErrValidation, "download", "request", "size limit must be positive", nil)
	}

	policy := e.policy
	policy.Classify = func(err error) bool {
		return !errors.Is(err, services.ErrSizeLimitExceeded) && services.IsRetryable(err)
	}

	var written int64
	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		n, err := e.attempt(ctx, url, format, destPath, limit, onProgress)
		written = n
		if err != nil {
			_ = os.Remove(destPath)
			written = 0
		}
		return err
	})
	if err != nil {
		_ = os.Remove(destPath)
		return 0, wrapFailure(err)
	}
	return written, nil
}

func (e *Executor) attempt(ctx context.Context, url string, format media.FormatOption, destPath string, limit int64, onProgress ProgressFunc) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, services.Wrap(services.ErrDownload, "download", "request", "build request", err)
	}
	for key, value := range format.Headers {
		req.Header.Set(key, value)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, services.Transient(fmt.Errorf("request stream: %w", err))
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return 0, err
	}

	total := resp.ContentLength
	if total <= 0 {
		total = format.EstimatedSizeBytes
	}

	file, err := os.Create(destPath)
	if err != nil {
		return 0, services.Wrap(services.ErrDownload, "download", "create", "open destination", err)
	}
	defer file.Close()

	dst := &limitWriter{w: file, limit: limit}
	buf := make([]byte, bufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return dst.written, err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				if errors.Is(err, errLimitReached) {
					return dst.written, services.Wrap(services.ErrSizeLimitExceeded, "download", "stream",
						fmt.Sprintf("stream exceeds %d bytes", limit), nil)
				}
				return dst.written, services.Wrap(services.ErrDownload, "download", "write", "write destination", err)
			}
			if onProgress != nil {
				onProgress(dst.written, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return dst.written, ctx.Err()
			}
			return dst.written, services.Transient(fmt.Errorf("read stream: %w", readErr))
		}
	}
	if err := file.Sync(); err != nil {
		return dst.written, services.Wrap(services.ErrDownload, "download", "sync", "flush destination", err)
	}
	if resp.ContentLength > 0 && dst.written < resp.ContentLength {
		return dst.written, services.Transient(fmt.Errorf("stream ended after %d of %d bytes", dst.written, resp.ContentLength))
	}
	return dst.written, nil
}

// statusError maps HTTP status codes: 429 and 5xx are transient, other
// non-2xx codes are permanent.
func statusError(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return &services.RetryAfterError{After: parseRetryAfter(resp.Header.Get("Retry-After")), Err: fmt.Errorf("http %d", code)}
	case code >= 500:
		return services.Transient(fmt.Errorf("http %d", code))
	default:
		return services.Wrap(services.ErrDownload, "download", "request", fmt.Sprintf("http %d", code), nil)
	}
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func wrapFailure(err error) error {
	switch {
	case errors.Is(err, services.ErrCancelled), errors.Is(err, services.ErrSizeLimitExceeded):
		return err
	case errors.Is(err, services.ErrDownload):
		return err
	default:
		return services.Wrap(services.ErrDownload, "download", "stream", "", err)
	}
}

// limitWriter refuses writes that would take the total past limit.
type limitWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func (l *limitWriter) Write(p []byte) (int, error) {
	if l.written+int64(len(p)) > l.limit {
		return 0, errLimitReached
	}
	n, err := l.w.Write(p)
	l.written += int64(n)
	return n, err
}

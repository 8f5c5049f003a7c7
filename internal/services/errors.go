package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrUnsupportedSource = errors.New("unsupported source")
	ErrResolution        = errors.New("resolution failed")
	ErrSizeLimitExceeded = errors.New("size limit exceeded")
	ErrDownload          = errors.New("download failed")
	ErrTranscode         = errors.New("transcode failed")
	ErrUpload            = errors.New("upload failed")
	ErrRateLimited       = errors.New("rate limited")
	ErrSessionExpired    = errors.New("session expired")
	ErrInvalidChoice     = errors.New("invalid choice")
	ErrBusy              = errors.New("busy")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrCancelled         = errors.New("cancelled")
	ErrNoActiveJob       = errors.New("no active job")
	ErrQuotaExceeded     = errors.New("ephemeral quota exceeded")
	ErrTimeout           = errors.New("timeout")
	ErrTransient         = errors.New("transient failure")
	ErrConfiguration     = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Transient tags err as retryable. A nil error stays nil.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// RetryAfterError reports a rate-limit signal with the wait the remote side asked for.
type RetryAfterError struct {
	After time.Duration
	Err   error
}

func (e *RetryAfterError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rate limited: retry after %s", e.After)
	}
	return fmt.Sprintf("rate limited: retry after %s: %v", e.After, e.Err)
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// Is lets errors.Is match both the rate-limit and transient markers.
func (e *RetryAfterError) Is(target error) bool {
	return target == ErrRateLimited || target == ErrTransient
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

package services

import (
	"context"
	"errors"
)

// Kind is the stable classification recorded on failed jobs, in history rows,
// and used to pick the user-facing message.
type Kind string

const (
	KindNone               Kind = ""
	KindValidation         Kind = "validation"
	KindUnsupportedSource  Kind = "unsupported_source"
	KindResolution         Kind = "resolution"
	KindSizeLimitExceeded  Kind = "size_limit_exceeded"
	KindDownloadTransient  Kind = "download_transient"
	KindDownloadPermanent  Kind = "download_permanent"
	KindTranscodeTimeout   Kind = "transcode_timeout"
	KindTranscodePermanent Kind = "transcode_permanent"
	KindUploadRateLimited  Kind = "upload_rate_limited"
	KindUploadPermanent    Kind = "upload_permanent"
	KindSessionExpired     Kind = "session_expired"
	KindInvalidChoice      Kind = "invalid_choice"
	KindBusy               Kind = "busy"
	KindCapacityExceeded   Kind = "capacity_exceeded"
	KindCancelled          Kind = "cancelled"
	KindNoActiveJob        Kind = "no_active_job"
	KindQuotaExceeded      Kind = "quota_exceeded"
	KindTimeout            Kind = "timeout"
	KindInternal           Kind = "internal"
)

// KindOf maps err onto the failure taxonomy. Boundary rejections and
// cancellation take precedence over stage markers.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrCapacityExceeded):
		return KindCapacityExceeded
	case errors.Is(err, ErrSessionExpired):
		return KindSessionExpired
	case errors.Is(err, ErrInvalidChoice):
		return KindInvalidChoice
	case errors.Is(err, ErrNoActiveJob):
		return KindNoActiveJob
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUnsupportedSource):
		return KindUnsupportedSource
	case errors.Is(err, ErrResolution):
		return KindResolution
	case errors.Is(err, ErrSizeLimitExceeded):
		return KindSizeLimitExceeded
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, ErrDownload):
		switch {
		case errors.Is(err, ErrTimeout):
			return KindTimeout
		case errors.Is(err, ErrTransient):
			return KindDownloadTransient
		default:
			return KindDownloadPermanent
		}
	case errors.Is(err, ErrTranscode):
		if errors.Is(err, ErrTimeout) {
			return KindTranscodeTimeout
		}
		return KindTranscodePermanent
	case errors.Is(err, ErrUpload):
		switch {
		case errors.Is(err, ErrRateLimited):
			return KindUploadRateLimited
		case errors.Is(err, ErrTimeout):
			return KindTimeout
		default:
			return KindUploadPermanent
		}
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindInternal
	}
}

// RetryLater reports whether the user should simply try again later rather
// than be told what went wrong.
func (k Kind) RetryLater() bool {
	return k == KindBusy || k == KindCapacityExceeded
}

package stage

import (
	"log/slog"
	"time"

	"fetchbot/internal/config"
	"fetchbot/internal/logging"
	"fetchbot/internal/services"
)

// RetryPolicy builds the shared backoff policy for the named stage, bounded
// per attempt by the stage timeout. Retries are logged at info.
func RetryPolicy(cfg *config.Config, name string, logger *slog.Logger) services.RetryPolicy {
	if logger == nil {
		logger = logging.NewNop()
	}
	return services.RetryPolicy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      cfg.RetryBaseDelay(),
		MaxDelay:       cfg.RetryMaxDelay(),
		Jitter:         cfg.Retry.Jitter,
		AttemptTimeout: cfg.StageTimeout(name),
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Info("retrying stage attempt",
				logging.Stage(name),
				logging.Attempt(attempt),
				logging.Duration("delay", delay),
				logging.ErrorKind(services.KindOf(err)),
				logging.Error(err),
				logging.String(logging.FieldEventType, "stage_retry"),
			)
		},
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryPolicy is the single backoff policy shared by the download, transcode
// and upload executors.
type RetryPolicy struct {
	// MaxAttempts counts the first try; values below 1 mean one attempt.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the +/- fraction applied to each computed delay (0.25 = ±25%).
	Jitter float64
	// AttemptTimeout bounds each attempt. Exceeding it yields a retryable ErrTimeout.
	AttemptTimeout time.Duration
	// Classify reports whether err is worth another attempt. Defaults to IsRetryable.
	Classify func(error) bool
	// OnRetry is invoked before sleeping between attempts.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// IsRetryable is the default classification: transient failures, timeouts and
// rate limits are retried, everything else is permanent.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited)
}

// Do runs fn until it succeeds, fails permanently, exhausts MaxAttempts, or ctx
// ends. Attempts are numbered from 1. Parent cancellation returns an error
// marked ErrCancelled carrying the context cause.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	classify := p.Classify
	if classify == nil {
		classify = IsRetryable
	}

	hooks := attemptHooksFrom(ctx)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := contextError(ctx); err != nil {
			return err
		}
		if hooks.Begin != nil {
			hooks.Begin(attempt)
		}
		err := p.runAttempt(ctx, attempt, fn)
		if hooks.End != nil {
			hooks.End(attempt, err)
		}
		if err == nil {
			return nil
		}
		if ctxErr := contextError(ctx); ctxErr != nil {
			return ctxErr
		}
		lastErr = err
		if !classify(err) || attempt == attempts {
			break
		}

		delay := p.Backoff(attempt, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := SleepWithContext(ctx, delay); err != nil {
			return contextError(ctx)
		}
	}
	return lastErr
}

func (p RetryPolicy) runAttempt(ctx context.Context, attempt int, fn func(context.Context, int) error) error {
	if p.AttemptTimeout <= 0 {
		return fn(ctx, attempt)
	}
	attemptCtx, cancel := context.WithTimeoutCause(ctx, p.AttemptTimeout, ErrTimeout)
	defer cancel()
	err := fn(attemptCtx, attempt)
	if err != nil && ctx.Err() == nil && errors.Is(context.Cause(attemptCtx), ErrTimeout) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: attempt %d exceeded %s: %w", ErrTimeout, attempt, p.AttemptTimeout, err)
	}
	return err
}

// Backoff returns the wait before the attempt following attempt. A
// RetryAfterError hint replaces the exponential delay, capped at four times
// MaxDelay.
func (p RetryPolicy) Backoff(attempt int, err error) time.Duration {
	var hinted *RetryAfterError
	if errors.As(err, &hinted) && hinted.After > 0 {
		delay := hinted.After
		if p.MaxDelay > 0 && delay > 4*p.MaxDelay {
			delay = 4 * p.MaxDelay
		}
		return delay
	}

	delay := p.BaseDelay
	for i := 1; i < attempt && delay > 0; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			break
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 && delay > 0 {
		factor := 1 + p.Jitter*(2*rand.Float64()-1)
		delay = time.Duration(float64(delay) * factor)
	}
	return delay
}

// SleepWithContext waits for d or until ctx is done.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// contextError converts a finished context into the taxonomy: a deadline
// becomes ErrTimeout, anything else ErrCancelled. The cause is kept.
func contextError(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if errors.Is(cause, ErrTimeout) {
			return cause
		}
		return fmt.Errorf("%w: %w", ErrTimeout, cause)
	}
	if errors.Is(cause, ErrCancelled) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// ContextError exposes the cancellation/timeout conversion used by Do for
// executors that observe ctx directly.
func ContextError(ctx context.Context) error {
	return contextError(ctx)
}

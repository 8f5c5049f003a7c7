package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fetchbot/internal/services"
)

func TestRetryPolicyRetriesTransientThenSucceeds(t *testing.T) {
	var retries []int
	policy := services.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		OnRetry:     func(attempt int, _ time.Duration, _ error) { retries = append(retries, attempt) },
	}
	calls := 0
	err := policy.Do(context.Background(), func(_ context.Context, attempt int) error {
		calls++
		if attempt != calls {
			t.Fatalf("attempt %d reported on call %d", attempt, calls)
		}
		if attempt < 3 {
			return services.Transient(errors.New("reset"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Fatalf("unexpected retry callbacks: %v", retries)
	}
}

func TestRetryPolicyStopsOnPermanent(t *testing.T) {
	permanent := errors.New("404")
	calls := 0
	err := services.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}.Do(context.Background(), func(context.Context, int) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent failure should not retry, got %d calls", calls)
	}
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	calls := 0
	err := services.RetryPolicy{MaxAttempts: 2}.Do(context.Background(), func(context.Context, int) error {
		calls++
		return services.Transient(errors.New("503"))
	})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected last transient error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryPolicyAttemptTimeoutIsRetryable(t *testing.T) {
	calls := 0
	err := services.RetryPolicy{MaxAttempts: 2, AttemptTimeout: 10 * time.Millisecond}.Do(context.Background(), func(ctx context.Context, _ int) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("timeouts should be retried, got %d calls", calls)
	}
	if services.KindOf(err) != services.KindTimeout {
		t.Fatalf("unexpected kind %q", services.KindOf(err))
	}
}

func TestRetryPolicyParentCancellationStopsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	reason := errors.New("user asked")
	calls := 0
	err := services.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}.Do(ctx, func(context.Context, int) error {
		calls++
		cancel(reason)
		return services.Transient(errors.New("reset"))
	})
	if !errors.Is(err, services.ErrCancelled) || !errors.Is(err, reason) {
		t.Fatalf("expected cancellation carrying cause, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := services.RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: 350 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 350 * time.Millisecond, 350 * time.Millisecond}
	for i, w := range want {
		if got := policy.Backoff(i+1, errors.New("x")); got != w {
			t.Fatalf("attempt %d backoff = %s, want %s", i+1, got, w)
		}
	}

	hinted := &services.RetryAfterError{After: 10 * time.Second}
	if got := policy.Backoff(1, hinted); got != 1400*time.Millisecond {
		t.Fatalf("retry-after hint should be capped at 4x max delay, got %s", got)
	}
	if got := (services.RetryPolicy{}).Backoff(1, &services.RetryAfterError{After: 2 * time.Second}); got != 2*time.Second {
		t.Fatalf("uncapped hint should be honoured, got %s", got)
	}
}

func TestRetryPolicyJitterStaysInRange(t *testing.T) {
	policy := services.RetryPolicy{BaseDelay: time.Second, Jitter: 0.25}
	for i := 0; i < 100; i++ {
		got := policy.Backoff(1, errors.New("x"))
		if got < 750*time.Millisecond || got > 1250*time.Millisecond {
			t.Fatalf("jittered delay %s outside ±25%%", got)
		}
	}
}

func TestRetryPolicyNotifiesAttemptObserver(t *testing.T) {
	var seen []int
	ctx := services.WithAttemptObserver(context.Background(), func(attempt int) { seen = append(seen, attempt) })
	_ = services.RetryPolicy{MaxAttempts: 3}.Do(ctx, func(context.Context, int) error {
		return services.Transient(errors.New("reset"))
	})
	if len(seen) != 3 || seen[2] != 3 {
		t.Fatalf("unexpected observed attempts %v", seen)
	}
}

func TestRetryPolicyCallsEndHookWithAttemptResult(t *testing.T) {
	var ended []error
	ctx := services.WithAttemptHooks(context.Background(), services.AttemptHooks{
		End: func(_ int, err error) { ended = append(ended, err) },
	})
	calls := 0
	err := services.RetryPolicy{MaxAttempts: 3}.Do(ctx, func(context.Context, int) error {
		calls++
		if calls == 1 {
			return services.Transient(errors.New("reset"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if len(ended) != 2 || !errors.Is(ended[0], services.ErrTransient) || ended[1] != nil {
		t.Fatalf("unexpected end hook results %v", ended)
	}
}

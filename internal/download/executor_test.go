package download_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"fetchbot/internal/download"
	"fetchbot/internal/logging"
	"fetchbot/internal/media"
	"fetchbot/internal/services"
	"fetchbot/internal/testsupport"
)

func fastPolicy() services.RetryPolicy {
	return services.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDownloadStreamsToDestination(t *testing.T) {
	body := testsupport.Payload(100 * 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "fetch-test" {
			t.Errorf("format headers not forwarded: %v", r.Header)
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.mp4")
	var last int64
	exec := download.NewExecutor(srv.Client(), fastPolicy(), logging.NewNop())
	n, err := exec.Download(context.Background(), srv.URL, media.FormatOption{Headers: map[string]string{"User-Agent": "fetch-test"}}, dest, 1<<20, func(written, _ int64) {
		last = written
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if n != int64(len(body)) || last != n {
		t.Fatalf("wrote %d, last progress %d", n, last)
	}
	info, err := os.Stat(dest)
	if err != nil || info.Size() != n {
		t.Fatalf("destination size mismatch: %v", err)
	}
}

func TestDownloadAbortsAtSizeLimit(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = w.Write(testsupport.Payload(200 * 1024))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.mp4")
	limit := int64(50 * 1024)
	var maxSeen int64
	exec := download.NewExecutor(srv.Client(), fastPolicy(), logging.NewNop())
	_, err := exec.Download(context.Background(), srv.URL, media.FormatOption{EstimatedSizeBytes: 10}, dest, limit, func(written, _ int64) {
		if written > maxSeen {
			maxSeen = written
		}
	})
	if !errors.Is(err, services.ErrSizeLimitExceeded) {
		t.Fatalf("expected size limit error, got %v", err)
	}
	if requests.Load() != 1 {
		t.Fatalf("size limit must not be retried, got %d requests", requests.Load())
	}
	if maxSeen > limit {
		t.Fatalf("wrote %d bytes past limit %d", maxSeen, limit)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("partial file should be removed")
	}
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	n, err := download.NewExecutor(srv.Client(), fastPolicy(), nil).Download(context.Background(), srv.URL, media.FormatOption{}, dest, 1024, nil)
	if err != nil || n != 2 {
		t.Fatalf("Download = %d, %v", n, err)
	}
	if requests.Load() != 2 {
		t.Fatalf("expected a retry, got %d requests", requests.Load())
	}
}

func TestDownloadFailsFastOnClientErrors(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	_, err := download.NewExecutor(srv.Client(), fastPolicy(), nil).Download(context.Background(), srv.URL, media.FormatOption{}, dest, 1024, nil)
	if services.KindOf(err) != services.KindDownloadPermanent {
		t.Fatalf("expected permanent download failure, got %q (%v)", services.KindOf(err), err)
	}
	if requests.Load() != 1 {
		t.Fatalf("404 must not be retried, got %d requests", requests.Load())
	}
}

func TestDownloadExhaustedRetriesAreTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	_, err := download.NewExecutor(srv.Client(), fastPolicy(), nil).Download(context.Background(), srv.URL, media.FormatOption{}, dest, 1024, nil)
	if services.KindOf(err) != services.KindDownloadTransient {
		t.Fatalf("expected transient kind, got %q (%v)", services.KindOf(err), err)
	}
}

func TestDownloadCancellationRemovesPartialFile(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(testsupport.Payload(64 * 1024))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancelCause(context.Background())
	dest := filepath.Join(t.TempDir(), "out.bin")
	_, err := download.NewExecutor(srv.Client(), fastPolicy(), nil).Download(ctx, srv.URL, media.FormatOption{}, dest, 1<<20, func(int64, int64) {
		cancel(services.ErrCancelled)
	})
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("partial file should be removed after cancellation")
	}
}

func TestDownloadSizeLimitIsInclusive(t *testing.T) {
	body := testsupport.Payload(50 * 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()
	exec := download.NewExecutor(srv.Client(), fastPolicy(), logging.NewNop())

	atLimit := filepath.Join(t.TempDir(), "exact.mp4")
	n, err := exec.Download(context.Background(), srv.URL, media.FormatOption{}, atLimit, int64(len(body)), nil)
	if err != nil {
		t.Fatalf("stream of exactly the limit should succeed: %v", err)
	}
	if n != int64(len(body)) {
		t.Fatalf("wrote %d of %d bytes", n, len(body))
	}

	overLimit := filepath.Join(t.TempDir(), "over.mp4")
	_, err = exec.Download(context.Background(), srv.URL, media.FormatOption{}, overLimit, int64(len(body))-1, nil)
	if services.KindOf(err) != services.KindSizeLimitExceeded {
		t.Fatalf("stream one byte over the limit should fail, got %v", err)
	}
	if _, err := os.Stat(overLimit); !os.IsNotExist(err) {
		t.Fatal("partial file should be removed")
	}
}

func TestDownloadStalledStreamTimesOut(t *testing.T) {
	var requests atomic.Int32
	stop := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Length", "4096")
		_, _ = w.Write(testsupport.Payload(1024))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-stop:
		}
	}))
	defer srv.Close()
	defer close(stop)

	policy := fastPolicy()
	policy.AttemptTimeout = 50 * time.Millisecond
	dest := filepath.Join(t.TempDir(), "out.mp4")
	exec := download.NewExecutor(srv.Client(), policy, logging.NewNop())
	_, err := exec.Download(context.Background(), srv.URL, media.FormatOption{}, dest, 1<<20, nil)
	if services.KindOf(err) != services.KindTimeout {
		t.Fatalf("expected timeout kind, got %q (%v)", services.KindOf(err), err)
	}
	if requests.Load() != 3 {
		t.Fatalf("timed out attempts should be retried, got %d requests", requests.Load())
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("partial file should be removed")
	}
}

package download_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"fetchbot/internal/download"
	"fetchbot/internal/ephemeral"
	"fetchbot/internal/job"
	"fetchbot/internal/logging"
	"fetchbot/internal/media"
	"fetchbot/internal/services"
	"fetchbot/internal/stage"
	"fetchbot/internal/testsupport"
)

func TestDownloaderStoresArtifactAndReleasesReservation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(testsupport.Payload(4096))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	store, err := ephemeral.NewManager(cfg.Paths.EphemeralDir, cfg.Limits.EphemeralQuotaBytes, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	j, _ := job.New(job.Spec{UserID: 1, SizeLimitBytes: 1 << 20, Format: media.FormatOption{ID: "18", ContainerHint: "mp4", SourceURL: srv.URL}})
	handler := download.NewDownloader(cfg, store, download.NewExecutor(srv.Client(), fastPolicy(), nil), logging.NewNop())

	var progressCalls int
	w := stage.NewWork(j, func(string, int64, int64) { progressCalls++ }, nil)
	w.Enter("download")
	if err := handler.Prepare(context.Background(), w); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := handler.Execute(context.Background(), w); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	info, err := os.Stat(w.Artifact)
	if err != nil || info.Size() != 4096 {
		t.Fatalf("artifact missing or wrong size: %v", err)
	}
	if progressCalls == 0 {
		t.Fatal("expected progress reports")
	}
	if j.AttemptCounts()["download"] != 1 {
		t.Fatalf("expected one recorded attempt, got %v", j.AttemptCounts())
	}
	stats := store.Stats()
	if stats.UsedBytes != 0 || stats.Reserved != stats.Released {
		t.Fatalf("reservation not released: %+v", stats)
	}
}

func TestDownloaderPrepareRejectsOversizedEstimate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	j, _ := job.New(job.Spec{UserID: 1, SizeLimitBytes: 100, Format: media.FormatOption{SourceURL: "http://x", EstimatedSizeBytes: 101}})
	handler := download.NewDownloader(cfg, nil, nil, nil)
	w := stage.NewWork(j, nil, nil)
	if err := handler.Prepare(context.Background(), w); !errors.Is(err, services.ErrSizeLimitExceeded) {
		t.Fatalf("expected size limit error, got %v", err)
	}
}

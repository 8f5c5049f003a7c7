package history_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fetchbot/internal/history"
	"fetchbot/internal/job"
	"fetchbot/internal/media"
	"fetchbot/internal/services"
	"fetchbot/internal/testsupport"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(testsupport.NewConfig(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func finishedSnapshot(t *testing.T, userID int64, outcome error) job.Snapshot {
	t.Helper()
	j, err := job.New(job.Spec{
		UserID:         userID,
		SourceURL:      "https://example.com/v",
		Format:         media.FormatOption{ID: "18", Label: "Video 360p"},
		Info:           media.Info{Title: "Clip"},
		SizeLimitBytes: 1024,
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = j.Transition(job.StateDownloading)
	j.RecordAttempt("download", time.Time{})
	j.SetProgress("download", 512, 1024)
	if _, err := j.Finish(outcome); err != nil {
		t.Fatal(err)
	}
	return j.Snapshot()
}

func TestRecordAndReadOutcomes(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	ok := history.OutcomeFromSnapshot(finishedSnapshot(t, 1, nil))
	failed := history.OutcomeFromSnapshot(finishedSnapshot(t, 2, services.Wrap(services.ErrSizeLimitExceeded, "download", "", "too big", nil)))
	failed.FinishedAt = ok.FinishedAt.Add(time.Second)

	for _, o := range []history.Outcome{ok, failed} {
		if err := store.RecordOutcome(ctx, o); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].JobID != failed.JobID {
		t.Fatalf("expected newest first, got %+v", recent)
	}
	if recent[0].ErrorKind != string(services.KindSizeLimitExceeded) || recent[0].State != job.StateFailed {
		t.Fatalf("failure not recorded: %+v", recent[0])
	}
	if recent[1].Title != "Clip" || recent[1].Attempts != 1 || recent[1].BytesTransferred != 512 {
		t.Fatalf("success row mismatch: %+v", recent[1])
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[job.StateSucceeded] != 1 || counts[job.StateFailed] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestRecordOutcomeRequiresID(t *testing.T) {
	if err := openStore(t).RecordOutcome(context.Background(), history.Outcome{}); err == nil {
		t.Fatal("expected error for empty job id")
	}
}

func TestPreferencesDefaultAndUpsert(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	prefs, err := store.GetPreferences(ctx, 42)
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if prefs.NamingTemplate != "{title}" || prefs.VideoAsDocument {
		t.Fatalf("unexpected defaults %+v", prefs)
	}

	prefs.NamingTemplate = "{title} - {uploader}"
	prefs.VideoAsDocument = true
	if err := store.SavePreferences(ctx, prefs); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}
	prefs.VideoAsDocument = false
	if err := store.SavePreferences(ctx, prefs); err != nil {
		t.Fatalf("SavePreferences update: %v", err)
	}

	got, err := store.GetPreferences(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if got.NamingTemplate != "{title} - {uploader}" || got.VideoAsDocument || got.UpdatedAt.IsZero() {
		t.Fatalf("unexpected stored preferences %+v", got)
	}
}

func TestReopenKeepsData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := history.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SavePreferences(context.Background(), history.Preferences{UserID: 1, VideoAsDocument: true}); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	reopened, err := history.OpenPath(cfg.HistoryDBPath())
	if err != nil {
		if errors.Is(err, history.ErrSchemaMismatch) {
			t.Fatalf("schema version should match on reopen: %v", err)
		}
		t.Fatal(err)
	}
	defer reopened.Close()
	prefs, _ := reopened.GetPreferences(context.Background(), 1)
	if !prefs.VideoAsDocument {
		t.Fatal("preferences lost across reopen")
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := history.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.DB().Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	if _, err := history.OpenPath(cfg.HistoryDBPath()); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

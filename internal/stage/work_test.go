package stage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"fetchbot/internal/job"
	"fetchbot/internal/services"
)

func TestWorkTagsProgressWithStage(t *testing.T) {
	j, err := job.New(job.Spec{UserID: 1})
	if err != nil {
		t.Fatal(err)
	}
	var gotStage string
	var gotBytes int64
	w := NewWork(j, func(stage string, bytes, _ int64) {
		gotStage, gotBytes = stage, bytes
	}, nil)
	w.Enter("download")
	w.Progress(42, 100)
	w.Percent(10)
	if gotStage != "download" || gotBytes != 42 {
		t.Fatalf("unexpected progress %q %d", gotStage, gotBytes)
	}
	if n := w.BeginAttempt(0); n != 1 {
		t.Fatalf("expected first attempt, got %d", n)
	}
	if j.AttemptCounts()["download"] != 1 {
		t.Fatalf("attempt not recorded: %v", j.AttemptCounts())
	}
}

func TestRequireArtifact(t *testing.T) {
	j, _ := job.New(job.Spec{UserID: 1})
	w := NewWork(j, nil, nil)
	w.Enter("upload")
	if _, err := w.RequireArtifact(); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	path := filepath.Join(t.TempDir(), "out.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	w.Artifact = path
	info, err := w.RequireArtifact()
	if err != nil || info.Size() != 1 {
		t.Fatalf("RequireArtifact: %v", err)
	}
}

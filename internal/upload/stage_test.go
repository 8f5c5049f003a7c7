package upload_test

import (
	"context"
	"testing"

	"fetchbot/internal/job"
	"fetchbot/internal/media"
	"fetchbot/internal/stage"
	"fetchbot/internal/testsupport"
	"fetchbot/internal/upload"
)

func TestUploaderDeliversToJobUser(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sender := &fakeSender{}
	j, _ := job.New(job.Spec{
		UserID:         77,
		SizeLimitBytes: 1 << 20,
		FileName:       "Artist - Song",
		SendAsDocument: true,
		Info:           media.Info{Title: "Song"},
		Format:         media.FormatOption{ID: "18", Kind: media.KindVideo, ContainerHint: "mp4"},
	})
	w := stage.NewWork(j, nil, nil)
	w.Artifact = artifact(t, 64)
	w.Enter("upload")

	handler := upload.NewUploader(cfg, sender, nil)
	if err := handler.Prepare(context.Background(), w); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := handler.Execute(context.Background(), w); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if w.DeliveryID != "msg-42" || j.Snapshot().DeliveryID != "msg-42" {
		t.Fatalf("delivery id not recorded: %q", w.DeliveryID)
	}
	file := sender.files[0]
	if file.ChatID != 77 || file.FileName != "Artist - Song.mp4" || !file.AsDocument || file.Caption != "Song" {
		t.Fatalf("unexpected request %+v", file)
	}
	if j.AttemptCounts()["upload"] != 1 {
		t.Fatalf("expected one attempt, got %v", j.AttemptCounts())
	}
}

func TestUploaderHealthRequiresSender(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if upload.NewUploader(cfg, nil, nil).HealthCheck(context.Background()).Ready {
		t.Fatal("uploader without sender should be unhealthy")
	}
}

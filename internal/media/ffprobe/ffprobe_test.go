package ffprobe

import (
	"context"
	"strings"
	"testing"
	"time"

	"fetchbot/internal/testsupport"
)

const probeJSON = `{
  "streams": [
    {"codec_type": "video", "codec_name": "vp9", "height": 1080},
    {"codec_type": "video", "codec_name": "mjpeg", "height": 360},
    {"codec_type": "audio", "codec_name": "opus"}
  ],
  "format": {"duration": "61.500000", "size": "4096"}
}`

func TestDecodeAccessors(t *testing.T) {
	p, err := Decode([]byte(probeJSON))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Duration() != 61500*time.Millisecond {
		t.Fatalf("duration = %s", p.Duration())
	}
	if p.Size() != 4096 || p.Height() != 1080 {
		t.Fatalf("size=%d height=%d", p.Size(), p.Height())
	}
	if p.Count("video") != 2 || p.Count("AUDIO") != 1 || p.Count("subtitle") != 0 {
		t.Fatalf("unexpected stream counts in %+v", p.Streams)
	}
}

func TestUnknownValuesAreZero(t *testing.T) {
	var p Probe
	p.Format.Duration = "N/A"
	p.Format.Size = "-5"
	if p.Duration() != 0 || p.Size() != 0 || p.Height() != 0 {
		t.Fatalf("expected zero values, got %s %d %d", p.Duration(), p.Size(), p.Height())
	}
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRunUsesBinary(t *testing.T) {
	stub := testsupport.StubScript(t, "ffprobe", "cat <<'JSON'\n"+probeJSON+"\nJSON")
	p, err := Run(context.Background(), stub, "/tmp/in.webm")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.Count("audio") != 1 {
		t.Fatalf("unexpected probe %+v", p)
	}
}

func TestRunReportsStderr(t *testing.T) {
	stub := testsupport.StubScript(t, "ffprobe", "echo 'Invalid data found' >&2\nexit 1")
	_, err := Run(context.Background(), stub, "/tmp/in.webm")
	if err == nil || !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
	if _, err := Run(context.Background(), stub, "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

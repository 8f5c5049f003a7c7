package transcode

import (
	"slices"
	"strings"
	"testing"

	"fetchbot/internal/media"
)

func TestBuildArgsAudio(t *testing.T) {
	args := BuildArgs("in.webm", "out.mp3", Target{Kind: media.KindAudio, AudioBitrateKbps: 160})
	joined := strings.Join(args, " ")
	for _, want := range []string{"-i in.webm", "-vn", "-c:a libmp3lame", "-b:a 160k", "-progress pipe:2"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in %q", want, joined)
		}
	}
	if args[len(args)-1] != "out.mp3" {
		t.Fatalf("destination should be last, got %v", args)
	}
}

func TestBuildArgsVideo(t *testing.T) {
	args := BuildArgs("in.webm", "out.mp4", Target{Kind: media.KindVideo})
	if !slices.Contains(args, "libx264") || !slices.Contains(args, "+faststart") {
		t.Fatalf("unexpected video args %v", args)
	}
	if slices.Contains(args, "-vn") {
		t.Fatal("video conversion must keep the video stream")
	}
}

func TestProgressReaderParsesOutTime(t *testing.T) {
	var seen []float64
	reader := &progressReader{duration: 10, report: func(p float64) { seen = append(seen, p) }}
	input := strings.Join([]string{
		"Input #0, matroska,webm, from 'in.webm':",
		"frame=10",
		"out_time_us=2500000",
		"out_time_us=20000000",
		"out_time_us=bogus",
		"Conversion failed!",
		"progress=end",
	}, "\n")
	reader.consume(strings.NewReader(input))

	want := []float64{25, 100, 100}
	if !slices.Equal(seen, want) {
		t.Fatalf("percents = %v, want %v", seen, want)
	}
	if diag := reader.diagnostics(); !strings.Contains(diag, "Conversion failed!") || strings.Contains(diag, "frame=") {
		t.Fatalf("unexpected diagnostics %q", diag)
	}
}

func TestProgressReaderWithoutDurationReportsOnlyEnd(t *testing.T) {
	var seen []float64
	reader := &progressReader{report: func(p float64) { seen = append(seen, p) }}
	reader.consume(strings.NewReader("out_time_us=1000\nprogress=end\n"))
	if !slices.Equal(seen, []float64{100}) {
		t.Fatalf("unexpected percents %v", seen)
	}
}

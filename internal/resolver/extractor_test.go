package resolver_test

import (
	"context"
	"errors"
	"testing"

	"fetchbot/internal/resolver"
	"fetchbot/internal/services"
	"fetchbot/internal/testsupport"
)

const sampleJSON = `{"title":"Song","uploader":"Band","duration":61.5,"webpage_url":"https://example.com/w","formats":[` +
	`{"format_id":"140","ext":"m4a","vcodec":"none","acodec":"mp4a.40.2","abr":129.5,"protocol":"https","url":"https://cdn/a","filesize":1000,"http_headers":{"User-Agent":"x"}},` +
	`{"format_id":"hls-1","ext":"mp4","vcodec":"avc1","acodec":"mp4a","height":720,"protocol":"m3u8_native","url":"https://cdn/h"}]}`

func TestYtDlpExtractorParsesOutput(t *testing.T) {
	bin := testsupport.StubScript(t, "yt-dlp", "cat <<'JSON'\n"+sampleJSON+"\nJSON")
	info, formats, err := resolver.YtDlpExtractor{Binary: bin}.Extract(context.Background(), "https://example.com/w")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if info.Title != "Song" || info.Uploader != "Band" || info.DurationSeconds != 61.5 {
		t.Fatalf("unexpected info %+v", info)
	}
	if len(formats) != 1 || formats[0].ID != "140" || formats[0].Headers["User-Agent"] != "x" {
		t.Fatalf("expected only the direct https format, got %+v", formats)
	}
}

func TestYtDlpExtractorCategorizesFailures(t *testing.T) {
	unsupported := testsupport.StubScript(t, "yt-dlp", "echo 'ERROR: Unsupported URL: https://example.com' >&2; exit 1")
	_, _, err := resolver.YtDlpExtractor{Binary: unsupported}.Extract(context.Background(), "https://example.com")
	if !errors.Is(err, services.ErrUnsupportedSource) {
		t.Fatalf("expected unsupported source, got %v", err)
	}

	flaky := testsupport.StubScript(t, "yt-dlp", "echo 'ERROR: Unable to download webpage: timed out' >&2; exit 1")
	_, _, err = resolver.YtDlpExtractor{Binary: flaky}.Extract(context.Background(), "https://example.com")
	if !errors.Is(err, services.ErrResolution) || !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient resolution error, got %v", err)
	}
}

func TestParseYtDlpOutputRejectsGarbage(t *testing.T) {
	if _, _, err := resolver.ParseYtDlpOutput([]byte("{"), "u"); !errors.Is(err, services.ErrResolution) {
		t.Fatalf("expected resolution error, got %v", err)
	}
}

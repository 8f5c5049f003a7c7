package resolver

import (
	"net/url"
	"testing"
	"time"

	"fetchbot/internal/media"
)

func TestBuildOptionsFiltersDedupsAndOrders(t *testing.T) {
	formats := []RawFormat{
		{ID: "18", Ext: "mp4", VCodec: "avc1", ACodec: "mp4a", Height: 360, URL: "u"},
		{ID: "43", Ext: "webm", VCodec: "vp8", ACodec: "vorbis", Height: 360, URL: "u", FileSize: 100},
		{ID: "137", Ext: "mp4", VCodec: "avc1", ACodec: "none", Height: 1080, URL: "u"},
		{ID: "22", Ext: "mp4", VCodec: "avc1", ACodec: "mp4a", Height: 720, URL: "u", FileSizeApprox: 5000},
		{ID: "251", Ext: "webm", VCodec: "none", ACodec: "opus", ABR: 160.4, URL: "u"},
		{ID: "140", Ext: "m4a", VCodec: "none", ACodec: "mp4a", ABR: 129.5, URL: "u"},
		{ID: "sb0", Ext: "mhtml", VCodec: "none", ACodec: "none", URL: "u"},
	}
	options := BuildOptions(formats)

	var ids []string
	for _, option := range options {
		ids = append(ids, option.ID)
	}
	want := []string{"22", "18", "251", "140"}
	if len(ids) != len(want) {
		t.Fatalf("got %v want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v want %v", ids, want)
		}
	}
	if options[0].EstimatedSizeBytes != 5000 {
		t.Fatalf("approximate size should be used, got %d", options[0].EstimatedSizeBytes)
	}
	if options[1].RequiresTranscode {
		t.Fatal("native mp4 should win the 360p slot")
	}
	if !options[2].RequiresTranscode || options[2].Label != "Audio 160 kbps" {
		t.Fatalf("unexpected opus option %+v", options[2])
	}
	if options[3].RequiresTranscode || options[3].Label != "Audio 130 kbps" {
		t.Fatalf("unexpected m4a option %+v", options[3])
	}
	if options[0].Kind != media.KindVideo || options[3].Kind != media.KindAudio {
		t.Fatal("video options should precede audio")
	}
}

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"https://www.Example.com/watch?v=1&a=2#frag": "https://example.com/watch?a=2&v=1",
		"http://m.example.com:80/":                   "http://example.com",
		"https://example.com:8443/x":                 "https://example.com:8443/x",
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatal(err)
		}
		if got := NormalizeKey(u); got != want {
			t.Fatalf("NormalizeKey(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newResolutionCache(2, time.Minute)
	c.put("a", media.Resolution{URL: "a"})
	c.put("b", media.Resolution{URL: "b"})
	if _, ok := c.get("a"); !ok {
		t.Fatal("expected a")
	}
	c.put("c", media.Resolution{URL: "c"})
	if _, ok := c.get("b"); ok {
		t.Fatal("least recently used entry should be evicted")
	}
	stats := c.stats()
	if stats.Evictions != 1 || stats.Entries != 2 || stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestCacheExpiresEntries(t *testing.T) {
	c := newResolutionCache(4, 50*time.Millisecond)
	c.put("a", media.Resolution{URL: "a"})
	if _, ok := c.get("a"); !ok {
		t.Fatal("fresh entry should hit")
	}
	time.Sleep(80 * time.Millisecond)
	if _, ok := c.get("a"); ok {
		t.Fatal("expired entry should miss")
	}
	if stats := c.stats(); stats.Entries != 0 {
		t.Fatalf("expired entries should not be counted: %+v", stats)
	}
}

func TestCacheDisabledWithoutCapacity(t *testing.T) {
	c := newResolutionCache(0, time.Minute)
	c.put("a", media.Resolution{URL: "a"})
	if _, ok := c.get("a"); ok {
		t.Fatal("disabled cache should never hit")
	}
}

func TestCacheReturnsCopies(t *testing.T) {
	c := newResolutionCache(1, time.Minute)
	c.put("a", media.Resolution{Options: []media.FormatOption{{ID: "1"}}})
	got, _ := c.get("a")
	got.Options[0].ID = "changed"
	again, _ := c.get("a")
	if again.Options[0].ID != "1" {
		t.Fatal("cache entries must not alias caller slices")
	}
}

func TestBuildOptionsLabelsDubbedAudio(t *testing.T) {
	formats := []RawFormat{
		{ID: "140-0", Ext: "m4a", VCodec: "none", ACodec: "mp4a", ABR: 128, Language: "ja", URL: "u"},
		{ID: "140-1", Ext: "m4a", VCodec: "none", ACodec: "mp4a", ABR: 128, Language: "en-US", URL: "u"},
		{ID: "18", Ext: "mp4", VCodec: "avc1", ACodec: "mp4a", Height: 360, Language: "ja", URL: "u"},
	}
	options := BuildOptions(formats)
	if len(options) != 3 {
		t.Fatalf("each audio language should be its own option, got %+v", options)
	}
	if options[0].Label != "Video 360p" || options[0].Language != "" {
		t.Fatalf("video label should not carry a language: %+v", options[0])
	}
	if options[1].Label != "Audio 128 kbps (English)" || options[2].Label != "Audio 128 kbps (Japanese)" {
		t.Fatalf("unexpected audio labels %q, %q", options[1].Label, options[2].Label)
	}
}

func TestBuildOptionsSingleLanguageKeepsPlainLabels(t *testing.T) {
	options := BuildOptions([]RawFormat{
		{ID: "140", Ext: "m4a", VCodec: "none", ACodec: "mp4a", ABR: 128, Language: "en", URL: "u"},
	})
	if len(options) != 1 || options[0].Label != "Audio 128 kbps" {
		t.Fatalf("unexpected options %+v", options)
	}
}

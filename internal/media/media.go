package media

import (
	"fmt"
	"strings"
)

// Kind distinguishes video renditions from audio-only ones.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// FormatOption is one selectable rendition returned by resolution.
type FormatOption struct {
	ID                  string `json:"id"`
	Kind                Kind   `json:"kind"`
	Label               string `json:"label"`
	ContainerHint       string `json:"container_hint"`
	ResolutionOrBitrate int    `json:"resolution_or_bitrate"`
	// EstimatedSizeBytes is 0 when the extractor could not estimate a size.
	EstimatedSizeBytes int64 `json:"estimated_size_bytes,omitempty"`
	RequiresTranscode  bool  `json:"requires_transcode"`
	// Language is the base language of an audio rendition ("en"), if known.
	Language string `json:"language,omitempty"`

	// SourceURL and Headers locate the direct stream. They stay in-process.
	SourceURL string            `json:"-"`
	Headers   map[string]string `json:"-"`
}

// SizeKnown reports whether the extractor provided a size estimate.
func (f FormatOption) SizeKnown() bool {
	return f.EstimatedSizeBytes > 0
}

// TargetContainer is the container the delivered file ends up in.
func (f FormatOption) TargetContainer() string {
	if !f.RequiresTranscode {
		return f.ContainerHint
	}
	if f.Kind == KindAudio {
		return "mp3"
	}
	return "mp4"
}

// DedupKey identifies renditions that are interchangeable for the user.
// Audio tracks in different languages are never interchangeable.
func (f FormatOption) DedupKey() string {
	if f.Language != "" {
		return fmt.Sprintf("%s:%d:%s", f.Kind, f.ResolutionOrBitrate, f.Language)
	}
	return fmt.Sprintf("%s:%d", f.Kind, f.ResolutionOrBitrate)
}

// Label renders the user-facing label for a rendition.
func Label(kind Kind, resolutionOrBitrate int) string {
	if kind == KindAudio {
		if resolutionOrBitrate <= 0 {
			return "Audio"
		}
		return fmt.Sprintf("Audio %d kbps", resolutionOrBitrate)
	}
	return fmt.Sprintf("Video %dp", resolutionOrBitrate)
}

// Info is the descriptive metadata accompanying a resolution.
type Info struct {
	Title           string  `json:"title"`
	Uploader        string  `json:"uploader,omitempty"`
	Playlist        string  `json:"playlist,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	WebpageURL      string  `json:"webpage_url"`
}

// DisplayTitle returns the title or a placeholder.
func (i Info) DisplayTitle() string {
	if title := strings.TrimSpace(i.Title); title != "" {
		return title
	}
	return "Untitled"
}

// Resolution is the outcome of resolving one URL.
type Resolution struct {
	URL     string         `json:"url"`
	Info    Info           `json:"info"`
	Options []FormatOption `json:"options"`
}

// Find returns the option with id.
func (r Resolution) Find(id string) (FormatOption, bool) {
	for _, option := range r.Options {
		if option.ID == id {
			return option, true
		}
	}
	return FormatOption{}, false
}

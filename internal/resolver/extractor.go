package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strings"

	"fetchbot/internal/media"
	"fetchbot/internal/services"
)

// RawFormat is one rendition as reported by the extraction collaborator.
type RawFormat struct {
	ID             string
	Ext            string
	VCodec         string
	ACodec         string
	Protocol       string
	URL            string
	Height         int
	ABR            float64
	TBR            float64
	FileSize       int64
	FileSizeApprox int64
	// Language is the audio language tag as reported, e.g. "en-US".
	Language string
	Headers  map[string]string
}

// Extractor resolves a page URL into metadata and raw formats.
type Extractor interface {
	Extract(ctx context.Context, url string) (media.Info, []RawFormat, error)
}

// YtDlpExtractor drives the yt-dlp binary.
type YtDlpExtractor struct {
	Binary string
}

type ytdlpFormat struct {
	FormatID       string            `json:"format_id"`
	Ext            string            `json:"ext"`
	VCodec         string            `json:"vcodec"`
	ACodec         string            `json:"acodec"`
	Protocol       string            `json:"protocol"`
	URL            string            `json:"url"`
	Height         int               `json:"height"`
	ABR            float64           `json:"abr"`
	TBR            float64           `json:"tbr"`
	FileSize       int64             `json:"filesize"`
	FileSizeApprox float64           `json:"filesize_approx"`
	Language       string            `json:"language"`
	HTTPHeaders    map[string]string `json:"http_headers"`
}

type ytdlpOutput struct {
	Title         string        `json:"title"`
	Uploader      string        `json:"uploader"`
	PlaylistTitle string        `json:"playlist_title"`
	Duration      float64       `json:"duration"`
	WebpageURL    string        `json:"webpage_url"`
	Formats       []ytdlpFormat `json:"formats"`
}

// Extract runs yt-dlp in metadata mode and keeps formats reachable over
// plain HTTP(S).
func (e YtDlpExtractor) Extract(ctx context.Context, url string) (media.Info, []RawFormat, error) {
	binary := strings.TrimSpace(e.Binary)
	if binary == "" {
		binary = "yt-dlp"
	}
	cmd := exec.CommandContext(ctx, binary, "--dump-single-json", "--no-playlist", "--no-warnings", url)
	output, err := cmd.Output()
	if err != nil {
		if ctxErr := services.ContextError(ctx); ctxErr != nil {
			return media.Info{}, nil, ctxErr
		}
		var stderr string
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			stderr = string(exitErr.Stderr)
		}
		return media.Info{}, nil, categorizeExtractError(err, stderr)
	}
	return ParseYtDlpOutput(output, url)
}

// ParseYtDlpOutput decodes yt-dlp's --dump-single-json document.
func ParseYtDlpOutput(data []byte, url string) (media.Info, []RawFormat, error) {
	var payload ytdlpOutput
	if err := json.Unmarshal(data, &payload); err != nil {
		return media.Info{}, nil, services.Wrap(services.ErrResolution, "resolve", "parse", "decode extractor output", services.Transient(err))
	}
	info := media.Info{
		Title:           strings.TrimSpace(payload.Title),
		Uploader:        strings.TrimSpace(payload.Uploader),
		Playlist:        strings.TrimSpace(payload.PlaylistTitle),
		DurationSeconds: payload.Duration,
		WebpageURL:      payload.WebpageURL,
	}
	if info.WebpageURL == "" {
		info.WebpageURL = url
	}
	formats := make([]RawFormat, 0, len(payload.Formats))
	for _, f := range payload.Formats {
		if f.Protocol != "" && f.Protocol != "http" && f.Protocol != "https" {
			continue
		}
		if f.URL == "" || f.FormatID == "" {
			continue
		}
		formats = append(formats, RawFormat{
			ID:             f.FormatID,
			Ext:            strings.ToLower(f.Ext),
			VCodec:         f.VCodec,
			ACodec:         f.ACodec,
			Protocol:       f.Protocol,
			URL:            f.URL,
			Height:         f.Height,
			ABR:            f.ABR,
			TBR:            f.TBR,
			FileSize:       f.FileSize,
			FileSizeApprox: int64(f.FileSizeApprox),
			Language:       f.Language,
			Headers:        f.HTTPHeaders,
		})
	}
	return info, formats, nil
}

// categorizeExtractError maps yt-dlp failures onto the error taxonomy.
func categorizeExtractError(err error, stderr string) error {
	lower := strings.ToLower(stderr)
	detail := firstLine(stderr)
	switch {
	case strings.Contains(lower, "unsupported url") || strings.Contains(lower, "no suitable extractor"):
		return services.Wrap(services.ErrUnsupportedSource, "resolve", "yt-dlp", detail, err)
	case strings.Contains(lower, "video unavailable") || strings.Contains(lower, "is private") ||
		strings.Contains(lower, "private video") || strings.Contains(lower, "sign in to confirm your age"):
		return services.Wrap(services.ErrResolution, "resolve", "yt-dlp", detail, err)
	case errors.Is(err, exec.ErrNotFound):
		return services.Wrap(services.ErrConfiguration, "resolve", "yt-dlp", "extractor binary not found", err)
	default:
		return services.Wrap(services.ErrResolution, "resolve", "yt-dlp", detail, services.Transient(err))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimPrefix(s, "ERROR: ")
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "extractor failed"
	}
	return s
}

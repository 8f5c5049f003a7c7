package transcode

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fetchbot/internal/media"
)

const (
	progressPipeTarget = "pipe:2"
	progressTimePrefix = "out_time_us="
	stderrTailLines    = 8
)

// Target describes the wanted output.
type Target struct {
	Kind             media.Kind
	Container        string
	AudioBitrateKbps int
	// DurationSeconds comes from extraction metadata; 0 means probe the file.
	DurationSeconds float64
	SizeLimitBytes  int64
}

// BuildArgs returns the ffmpeg arguments for converting src into dest.
func BuildArgs(src, dest string, target Target) []string {
	args := []string{"-y", "-hide_banner", "-i", src}
	if target.Kind == media.KindAudio {
		bitrate := target.AudioBitrateKbps
		if bitrate <= 0 {
			bitrate = 192
		}
		args = append(args,
			"-vn",
			"-c:a", "libmp3lame",
			"-b:a", fmt.Sprintf("%dk", bitrate),
		)
	} else {
		args = append(args,
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-crf", "23",
			"-c:a", "aac",
			"-b:a", "128k",
			"-movflags", "+faststart",
		)
	}
	return append(args, "-progress", progressPipeTarget, "-nostats", dest)
}

// progressReader consumes ffmpeg's stderr, reporting percentages from the
// -progress key/value stream and keeping the last diagnostic lines.
type progressReader struct {
	duration float64
	report   func(float64)
	tail     []string
}

func (p *progressReader) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if value, ok := strings.CutPrefix(line, progressTimePrefix); ok {
			p.handleTime(value)
			continue
		}
		if line == "progress=end" {
			if p.report != nil {
				p.report(100)
			}
			continue
		}
		if strings.Contains(line, "=") && !strings.Contains(line, " ") {
			// Other -progress keys (frame=, bitrate=, speed=...).
			continue
		}
		p.tail = append(p.tail, line)
		if len(p.tail) > stderrTailLines {
			p.tail = p.tail[1:]
		}
	}
}

func (p *progressReader) handleTime(value string) {
	micros, err := strconv.ParseInt(value, 10, 64)
	if err != nil || micros < 0 || p.duration <= 0 || p.report == nil {
		return
	}
	percent := float64(micros) / 1e6 / p.duration * 100
	if percent > 100 {
		percent = 100
	}
	p.report(percent)
}

func (p *progressReader) diagnostics() string {
	return strings.Join(p.tail, "; ")
}

package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Probe is the subset of `ffprobe -show_entries` output the transcoder reads.
type Probe struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Height    int    `json:"height,omitempty"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

var entries = "format=duration,size:stream=codec_type,codec_name,height"

// Run probes path with binary (default "ffprobe"). The child is killed when
// ctx ends.
func Run(ctx context.Context, binary, path string) (Probe, error) {
	if strings.TrimSpace(path) == "" {
		return Probe{}, errors.New("ffprobe: no input path")
	}
	if binary == "" {
		binary = "ffprobe"
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-show_entries", entries, "-of", "json", "--", path)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Probe{}, fmt.Errorf("ffprobe %s: %w (%s)", path, err, msg)
		}
		return Probe{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return Decode(out)
}

func Decode(data []byte) (Probe, error) {
	var p Probe
	if err := json.Unmarshal(data, &p); err != nil {
		return Probe{}, fmt.Errorf("decode ffprobe output: %w", err)
	}
	return p, nil
}

// Duration is zero when ffprobe reported nothing usable.
func (p Probe) Duration() time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(p.Format.Duration), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// Size is the container size in bytes, zero when unknown.
func (p Probe) Size() int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(p.Format.Size), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Count returns how many streams of codecType ("audio", "video") exist.
func (p Probe) Count(codecType string) int {
	n := 0
	for _, s := range p.Streams {
		if strings.EqualFold(s.CodecType, codecType) {
			n++
		}
	}
	return n
}

// Height of the tallest video stream.
func (p Probe) Height() int {
	h := 0
	for _, s := range p.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			h = max(h, s.Height)
		}
	}
	return h
}

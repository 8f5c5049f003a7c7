package deps

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

const versionTimeout = 5 * time.Second

// readVersion runs binary with args and extracts a version from the first
// output line. ffmpeg-family banners ("ffmpeg version 7.1 Copyright ...")
// are reduced to the version token. Failures yield "".
func readVersion(ctx context.Context, binary string, args []string) string {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	raw, err := exec.CommandContext(ctx, binary, args...).Output()
	if err != nil {
		return ""
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(raw)), "\n")
	fields := strings.Fields(first)
	if len(fields) >= 3 && fields[1] == "version" {
		return fields[2]
	}
	return strings.TrimSpace(first)
}

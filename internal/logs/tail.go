package logs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const maxLineBytes = 1024 * 1024

// Filter selects lines to show. An empty filter matches everything.
type Filter struct {
	// JobID keeps lines mentioning the job identifier.
	JobID string
	// Contains keeps lines containing the substring.
	Contains string
}

// Match reports whether line passes the filter.
func (f Filter) Match(line string) bool {
	if f.JobID != "" && !mentionsJob(line, f.JobID) {
		return false
	}
	if f.Contains != "" && !strings.Contains(line, f.Contains) {
		return false
	}
	return true
}

// mentionsJob accepts the full id (JSON lines) or the eight character
// prefix the console handler prints after "Job ".
func mentionsJob(line, id string) bool {
	if strings.Contains(line, id) {
		return true
	}
	return len(id) > 8 && strings.Contains(line, "Job "+id[:8])
}

// Last returns up to n trailing lines of path that match filter, and the
// byte offset at which following should resume. A missing file yields no
// lines and offset 0.
func Last(path string, n int, filter Filter) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	if n <= 0 {
		return nil, info.Size(), nil
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	ring := make([]string, 0, n)
	start := 0
	var offset int64
	for scanner.Scan() {
		offset += int64(len(scanner.Bytes())) + 1
		line := scanner.Text()
		if !filter.Match(line) {
			continue
		}
		if len(ring) < n {
			ring = append(ring, line)
			continue
		}
		ring[start] = line
		start = (start + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	if offset > info.Size() {
		offset = info.Size()
	}
	return append(ring[start:], ring[:start]...), offset, nil
}

// Follow polls path from offset and calls emit for each complete new line
// that matches filter until ctx ends. When the file shrinks or is replaced
// by a shorter one, reading restarts from the beginning.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, filter Filter, emit func(string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var partial []byte
	for {
		next, chunk, err := readFrom(path, offset)
		if err != nil {
			return err
		}
		if next < offset {
			partial = nil
		}
		offset = next
		partial = append(partial, chunk...)
		for {
			idx := bytes.IndexByte(partial, '\n')
			if idx < 0 {
				break
			}
			line := string(partial[:idx])
			partial = partial[idx+1:]
			if filter.Match(line) {
				emit(line)
			}
		}
		if len(partial) > maxLineBytes {
			partial = nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// readFrom returns everything in path past offset and the new end offset.
// A file shorter than offset is read from the start.
func readFrom(path string, offset int64) (int64, []byte, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil, nil
		}
		return offset, nil, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return offset, nil, nil
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, nil, fmt.Errorf("seek log file: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(file, info.Size()-offset))
	if err != nil {
		return offset, nil, fmt.Errorf("read log file: %w", err)
	}
	return offset + int64(len(data)), data, nil
}

package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fetchbot/internal/logs"
)

func TestLastReturnsTrailingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fetchbot.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	lines, offset, err := logs.Last(path, 2, logs.Filter{})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != 6 {
		t.Fatalf("expected offset at end of file, got %d", offset)
	}
}

func TestLastAppliesFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fetchbot.log")
	content := "job_id=abc start\njob_id=def start\njob_id=abc done\nother\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	lines, _, err := logs.Last(path, 10, logs.Filter{JobID: "abc"})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[1] != "job_id=abc done" {
		t.Fatalf("unexpected filtered lines: %#v", lines)
	}
}

func TestFilterMatchesConsoleJobPrefix(t *testing.T) {
	filter := logs.Filter{JobID: "0192f3aa-bbbb-7ccc-8ddd-eeeeffff0000"}
	if !filter.Match("2026-10-16 INFO [scheduler] Job 0192f3aa (download) – stage completed") {
		t.Fatal("console line with the short job prefix should match")
	}
	if !filter.Match(`{"msg":"x","job_id":"0192f3aa-bbbb-7ccc-8ddd-eeeeffff0000"}`) {
		t.Fatal("json line with the full id should match")
	}
	if filter.Match("INFO [scheduler] Job 0192f3ab (download) – other job") {
		t.Fatal("a different job should not match")
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), 5, logs.Filter{})
	if err != nil || len(lines) != 0 || offset != 0 {
		t.Fatalf("missing file should be empty, got %v %d %v", lines, offset, err)
	}
}

type lineSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *lineSink) add(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *lineSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func waitForLines(t *testing.T, sink *lineSink, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := sink.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d lines, have %#v", n, sink.snapshot())
	return nil
}

func TestFollowEmitsAppendedLinesAndSurvivesReplacement(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fetchbot.log")
	if err := os.WriteFile(path, []byte("start\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	_, offset, err := logs.Last(path, 1, logs.Filter{})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sink := &lineSink{}
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, 10*time.Millisecond, logs.Filter{}, sink.add)
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("later"); err != nil {
		t.Fatalf("append: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := sink.snapshot(); len(got) != 0 {
		t.Fatalf("partial line should be held back, got %#v", got)
	}
	if _, err := f.WriteString("\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = f.Close()

	if got := waitForLines(t, sink, 1); got[0] != "later" {
		t.Fatalf("unexpected first line %#v", got)
	}

	if err := os.WriteFile(path, []byte("new\n"), 0o644); err != nil {
		t.Fatalf("replace log: %v", err)
	}
	if got := waitForLines(t, sink, 2); got[1] != "new" {
		t.Fatalf("expected replacement file to be read from start, got %#v", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Follow: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}

package daemonrun

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"fetchbot/internal/logging"
	"fetchbot/internal/telegram"
	"fetchbot/internal/testsupport"
)

func TestEnsureCurrentLogPointerReplacesLink(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "fetchbot-1.log")
	second := filepath.Join(dir, "fetchbot-2.log")
	for _, p := range []string{first, second} {
		if err := os.WriteFile(p, []byte(filepath.Base(p)), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatal(err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "fetchbot.log"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "fetchbot-2.log" {
		t.Fatalf("pointer should follow the newest log, got %q", data)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fetchbot.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file contents %q", data)
	}
}

func TestBuildWiresDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	bot := telegram.NewClient(cfg, nil, logging.NewNop())
	d, err := build(cfg, bot, logging.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer d.Close()

	status := d.Status(t.Context())
	if status.Running {
		t.Fatal("daemon should not run before Start")
	}
	for _, name := range []string{"download", "transcode", "upload"} {
		if _, ok := status.Scheduler.StageHealth[name]; !ok {
			t.Fatalf("stage %s not configured: %+v", name, status.Scheduler.StageHealth)
		}
	}
}

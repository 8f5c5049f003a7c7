package daemonctl_test

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"fetchbot/internal/daemonctl"
)

func TestStopReportsNotRunning(t *testing.T) {
	dir := t.TempDir()
	_, err := daemonctl.StopAndTerminate(daemonctl.Paths{
		Socket: filepath.Join(dir, "fetchbot.sock"),
		PID:    filepath.Join(dir, "fetchbot.pid"),
	}, time.Second)
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestRunningWithoutSocket(t *testing.T) {
	running, pid, err := daemonctl.Running(filepath.Join(t.TempDir(), "absent.sock"))
	if err != nil || running || pid != 0 {
		t.Fatalf("Running = %v, %d, %v", running, pid, err)
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := daemonctl.Launch(daemonctl.LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable")
	}
}

func TestForceKillUsesPIDFile(t *testing.T) {
	sleeper := exec.Command("sleep", "30")
	if err := sleeper.Start(); err != nil {
		t.Skipf("sleep unavailable: %v", err)
	}
	waited := make(chan error, 1)
	go func() { waited <- sleeper.Wait() }()

	pidPath := filepath.Join(t.TempDir(), "fetchbot.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(sleeper.Process.Pid)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pid, err := daemonctl.ForceKill(pidPath, 0)
	if err != nil {
		t.Fatalf("ForceKill: %v", err)
	}
	if pid != sleeper.Process.Pid {
		t.Fatalf("killed pid %d, want %d", pid, sleeper.Process.Pid)
	}
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("process survived SIGKILL")
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("pid file should be removed, stat err %v", err)
	}
}

func TestForceKillRefusesSelf(t *testing.T) {
	if _, err := daemonctl.ForceKill(filepath.Join(t.TempDir(), "none.pid"), os.Getpid()); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
}

func TestForceKillWithoutPID(t *testing.T) {
	if _, err := daemonctl.ForceKill(filepath.Join(t.TempDir(), "none.pid"), 0); err == nil {
		t.Fatal("expected error without a pid")
	}
}

// Package daemonctl starts, stops and restarts a detached fetchbot daemon
// from the CLI, talking to it over the IPC socket.
package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"fetchbot/internal/ipc"
)

// ErrDaemonNotRunning indicates the daemon socket is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

const pollInterval = 200 * time.Millisecond

// Paths locates the daemon's socket and pid file.
type Paths struct {
	Socket string
	PID    string
}

// LaunchOptions controls how the daemon process is spawned.
type LaunchOptions struct {
	Executable string
	ConfigPath string
	LogLevel   string
}

// StartState describes what EnsureStarted did.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult reports the outcome of EnsureStarted.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult reports the outcome of StopAndTerminate.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// Launch spawns `fetchbot run` in its own session so it outlives the CLI.
func Launch(opts LaunchOptions) error {
	if strings.TrimSpace(opts.Executable) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}
	args := []string{"run"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(opts.Executable, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient polls the socket until the daemon accepts a connection.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(pollInterval)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless one already answers on the socket.
func EnsureStarted(paths Paths, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	state := StartStateAlreadyRunning
	client, err := ipc.Dial(paths.Socket)
	if err != nil {
		if !isUnavailable(err) {
			return StartResult{}, err
		}
		if err := Launch(opts); err != nil {
			return StartResult{}, err
		}
		client, err = WaitForClient(paths.Socket, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		state = StartStateStarted
	}
	defer client.Close()

	resp, err := client.Status()
	if err != nil {
		return StartResult{}, fmt.Errorf("query daemon status: %w", err)
	}
	return StartResult{State: state, PID: resp.Status.PID}, nil
}

// Running reports whether a daemon answers on the socket and is running,
// with its PID when known.
func Running(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	resp, err := client.Status()
	if err != nil {
		return true, 0, err
	}
	return resp.Status.Running, resp.Status.PID, nil
}

// WaitForShutdown waits until the daemon stops answering or reports it is
// no longer running.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		running, _, err := Running(socketPath)
		if err == nil && !running {
			return nil
		}
		time.Sleep(pollInterval)
	}
	return errors.New("daemon did not stop within the grace period")
}

// StopAndTerminate asks the daemon to stop and kills it if it is still
// running after grace.
func StopAndTerminate(paths Paths, grace time.Duration) (StopResult, error) {
	client, err := ipc.Dial(paths.Socket)
	if err != nil {
		if isUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	var result StopResult
	if status, err := client.Status(); err == nil {
		result.PID = status.Status.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return result, err
	}
	result.StopAcknowledged = resp.Stopped

	if WaitForShutdown(paths.Socket, grace) == nil {
		return result, nil
	}
	pid, err := ForceKill(paths.PID, result.PID)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	_ = os.Remove(paths.Socket)
	result.ForcedKill = true
	result.PID = pid
	return result, nil
}

// ForceKill sends SIGKILL to the daemon named by pidPath, falling back to
// fallbackPID, and removes the pid file.
func ForceKill(pidPath string, fallbackPID int) (int, error) {
	pid := fallbackPID
	data, err := os.ReadFile(pidPath)
	switch {
	case err == nil:
		if parsed, parseErr := strconv.Atoi(strings.TrimSpace(string(data))); parseErr == nil && parsed > 0 {
			pid = parsed
		}
	case !errors.Is(err, os.ErrNotExist):
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return pid, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	return pid, nil
}

func isUnavailable(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

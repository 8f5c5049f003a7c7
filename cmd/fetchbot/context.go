package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"fetchbot/internal/config"
	"fetchbot/internal/daemonctl"
	"fetchbot/internal/ipc"
)

// commandContext is shared by every subcommand of one invocation. The
// configuration is loaded at most once, on first use.
type commandContext struct {
	socketFlag *string
	configPath string
	load       func() (*config.Config, error)
}

func newCommandContext(socketFlag, configFlag *string) *commandContext {
	c := &commandContext{socketFlag: socketFlag}
	c.load = sync.OnceValues(func() (*config.Config, error) {
		cfg, resolved, _, err := config.Load(strings.TrimSpace(deref(configFlag)))
		if err != nil {
			return nil, err
		}
		c.configPath = resolved
		return cfg, nil
	})
	return c
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	return c.load()
}

// socketPath prefers --socket, then the configured state directory.
func (c *commandContext) socketPath() string {
	if s := strings.TrimSpace(deref(c.socketFlag)); s != "" {
		return s
	}
	if cfg, err := c.load(); err == nil {
		return cfg.SocketPath()
	}
	return filepath.Join(os.TempDir(), "fetchbot.sock")
}

// daemonPaths leaves PID empty without a config, so a forced stop has no
// process to kill.
func (c *commandContext) daemonPaths() daemonctl.Paths {
	paths := daemonctl.Paths{Socket: c.socketPath()}
	if cfg, err := c.load(); err == nil {
		paths.PID = cfg.PIDPath()
	}
	return paths
}

func (c *commandContext) launchOptions(logLevel string) (daemonctl.LaunchOptions, error) {
	if _, err := c.load(); err != nil {
		return daemonctl.LaunchOptions{}, err
	}
	exe, err := os.Executable()
	if err != nil {
		return daemonctl.LaunchOptions{}, fmt.Errorf("locate fetchbot binary: %w", err)
	}
	return daemonctl.LaunchOptions{Executable: exe, ConfigPath: c.configPath, LogLevel: logLevel}, nil
}

// withClient dials the daemon, runs fn and hangs up.
func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return explainDialError(socket, err)
	}
	defer client.Close()
	return fn(client)
}

func explainDialError(socket string, err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOENT) {
		return fmt.Errorf("daemon not running (no socket at %s); start it with `fetchbot run` or `fetchbot start`", socket)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("daemon not answering on %s; it may have crashed, check `fetchbot logs`", socket)
	}
	return fmt.Errorf("connect to daemon at %s: %w", socket, err)
}

// shouldSkipConfig is true for commands annotated skipConfigLoad, such as
// `config init`, which must work before a config exists.
func shouldSkipConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

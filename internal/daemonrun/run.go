package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"fetchbot/internal/config"
	"fetchbot/internal/daemon"
	"fetchbot/internal/download"
	"fetchbot/internal/ephemeral"
	"fetchbot/internal/history"
	"fetchbot/internal/ipc"
	"fetchbot/internal/logging"
	"fetchbot/internal/notifications"
	"fetchbot/internal/orchestrator"
	"fetchbot/internal/preflight"
	"fetchbot/internal/resolver"
	"fetchbot/internal/session"
	"fetchbot/internal/telegram"
	"fetchbot/internal/transcode"
	"fetchbot/internal/upload"
	"fetchbot/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Version     string
}

// Run starts the fetchbot daemon and blocks until a signal arrives or the
// daemon is stopped over IPC.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.ValidateForDaemon(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("fetchbot-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
		Secrets:     []string{cfg.Telegram.BotToken},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update fetchbot.log link: %v\n", err)
	}
	logging.PruneLogs(logger, cfg.Paths.LogDir, "fetchbot-*.log", cfg.Logging.RetentionDays, logPath)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	bot := telegram.NewClient(cfg, nil, logger)
	if err := runPreflight(signalCtx, logger, cfg, bot); err != nil {
		return err
	}

	d, err := build(cfg, bot, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running instance and the state directory"),
			logging.String(logging.FieldImpact, "no messages will be processed"),
		)
		return err
	}
	announce(signalCtx, logger, cfg, opts.Version)

	select {
	case <-signalCtx.Done():
	case <-d.Done():
	}
	logger.Info("fetchbot daemon shutting down")
	return nil
}

// build wires every component around the shared Telegram client.
func build(cfg *config.Config, bot *telegram.Client, logger *slog.Logger) (*daemon.Daemon, error) {
	store, err := ephemeral.NewManager(cfg.Paths.EphemeralDir, cfg.Limits.EphemeralQuotaBytes, logger)
	if err != nil {
		return nil, fmt.Errorf("open ephemeral store: %w", err)
	}
	hist, err := history.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	notifier := notifications.NewService(cfg)
	res := resolver.New(cfg, nil, logger)
	facade := orchestrator.New(telegram.NewNotifier(bot), hist, logger)

	sched := workflow.NewScheduler(cfg, store, logger,
		workflow.WithObserver(facade),
		workflow.WithHistory(hist),
		workflow.WithNotifier(notifier),
	)
	sched.ConfigureStages(workflow.StageSet{
		Downloader: download.NewDownloader(cfg, store, nil, logger),
		Transcoder: transcode.NewTranscoder(cfg, store, logger),
		Uploader:   upload.NewUploader(cfg, bot, logger),
	})

	sessions := session.NewManager(cfg, res, sched, logger,
		session.WithListener(facade),
		session.WithPreferences(hist),
	)
	facade.Bind(sessions, sched)

	poller := telegram.NewPoller(bot, facade, time.Duration(cfg.Telegram.PollTimeoutSeconds)*time.Second, logger)
	d, err := daemon.New(cfg, daemon.Components{
		Scheduler: sched,
		Sessions:  sessions,
		Store:     store,
		History:   hist,
		Resolver:  res,
		Poller:    poller,
		Notifier:  notifier,
	}, logger)
	if err != nil {
		_ = hist.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return d, nil
}

func runPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, bot preflight.BotProber) error {
	results := preflight.RunAll(ctx, cfg, bot)
	for _, r := range results {
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "preflight_check"),
			logging.String("check", r.Name),
			logging.Bool("passed", r.Passed),
			logging.String("detail", r.Detail),
		}
		if r.Passed {
			logger.Info("preflight check", logging.Args(attrs...)...)
			continue
		}
		logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
			append(attrs,
				logging.String(logging.FieldErrorHint, "fix the reported check and restart"),
				logging.String(logging.FieldImpact, "daemon will not start"),
			)...,
		)
	}
	return preflight.Err(results)
}

func announce(ctx context.Context, logger *slog.Logger, cfg *config.Config, version string) {
	notifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := notifications.NewService(cfg).Publish(notifyCtx, notifications.EventDaemonStarted, notifications.Payload{"version": version})
	if err != nil {
		logging.WarnWithContext(logger, "startup notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "operator was not told the daemon started"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "fetchbot.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

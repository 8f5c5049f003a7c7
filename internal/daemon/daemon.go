package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"fetchbot/internal/config"
	"fetchbot/internal/deps"
	"fetchbot/internal/ephemeral"
	"fetchbot/internal/history"
	"fetchbot/internal/job"
	"fetchbot/internal/logging"
	"fetchbot/internal/notifications"
	"fetchbot/internal/preflight"
	"fetchbot/internal/resolver"
	"fetchbot/internal/session"
	"fetchbot/internal/workflow"
)

// Runner is a background loop bound to the daemon lifetime, such as the
// Telegram poller.
type Runner interface {
	Run(ctx context.Context) error
}

// Components are the collaborators the daemon drives. Scheduler, Sessions
// and Store are required.
type Components struct {
	Scheduler *workflow.Scheduler
	Sessions  *session.Manager
	Store     *ephemeral.Manager
	History   *history.Store
	Resolver  *resolver.Resolver
	Poller    Runner
	Notifier  notifications.Service
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	c      Components

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool                   `json:"running"`
	PID           int                    `json:"pid"`
	LockFilePath  string                 `json:"lock_file_path"`
	HistoryDBPath string                 `json:"history_db_path"`
	Scheduler     workflow.StatusSummary `json:"scheduler"`
	Sessions      int                    `json:"sessions"`
	Resolver      resolver.CacheStats    `json:"resolver"`
	Dependencies  []deps.Status          `json:"dependencies"`
}

// New constructs a daemon around initialized components.
func New(cfg *config.Config, c Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || c.Scheduler == nil || c.Sessions == nil || c.Store == nil {
		return nil, errors.New("daemon requires config, scheduler, sessions, and ephemeral store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if c.Notifier == nil {
		c.Notifier = notifications.NewService(cfg)
	}
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		c:        c,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
		done:     make(chan struct{}),
	}, nil
}

// Start acquires the daemon lock, reclaims stale ephemeral files and launches
// the scheduler, session sweeper, ephemeral sweep loop and poller.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if d.stopped {
		return errors.New("daemon already stopped")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another fetchbot daemon instance is already running")
	}

	// No job is live yet, so everything left over from a previous run is stale.
	if result := d.c.Store.Sweep(ctx, 0, nil); len(result.Removed) > 0 {
		d.logger.Info("reclaimed ephemeral files from previous run",
			logging.String(logging.FieldEventType, "ephemeral_startup_sweep"),
			logging.Int("removed", len(result.Removed)),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.c.Scheduler.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}
	d.c.Sessions.Start(runCtx)

	d.wg.Add(1)
	go d.sweepLoop(runCtx)

	if d.c.Poller != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.c.Poller.Run(runCtx); err != nil && runCtx.Err() == nil {
				logging.ErrorWithContext(d.logger, "poller exited", "poller_exited",
					logging.Error(err),
					logging.String(logging.FieldImpact, "incoming messages are no longer processed"),
					logging.String(logging.FieldErrorHint, "restart the daemon"),
				)
			}
		}()
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("fetchbot daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.Int("workers", d.cfg.Limits.MaxConcurrentJobs),
		logging.Int("queue_length", d.cfg.Limits.MaxQueueLength),
	)
	return nil
}

// Stop halts intake, cancels live jobs and releases the daemon lock. It is
// safe to call more than once.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.cancel()
	d.wg.Wait()
	d.c.Sessions.Stop()
	d.c.Scheduler.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"),
			logging.String(logging.FieldImpact, "the next start may report another instance"),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath),
		)
	}
	d.running.Store(false)
	d.stopped = true
	close(d.done)
	d.logger.Info("fetchbot daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Done is closed once Stop has completed.
func (d *Daemon) Done() <-chan struct{} { return d.done }

// Close stops the daemon and closes the history store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.c.History != nil {
		return d.c.History.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		Scheduler:    d.c.Scheduler.Status(ctx),
		Sessions:     d.c.Sessions.Len(),
		Dependencies: preflight.CheckSystemDeps(ctx, d.cfg),
	}
	if d.c.History != nil {
		status.HistoryDBPath = d.c.History.Path()
	}
	if d.c.Resolver != nil {
		status.Resolver = d.c.Resolver.Stats()
	}
	return status
}

// Jobs lists the live jobs.
func (d *Daemon) Jobs() []job.Snapshot {
	return d.c.Scheduler.Jobs()
}

// ErrJobNotFound is returned when a job reference matches no live job.
var ErrJobNotFound = errors.New("no live job matches")

// errCancelledByOperator is the cancel reason for jobs cancelled over IPC.
var errCancelledByOperator = errors.New("cancelled by operator")

// CancelJob cancels the live job whose ID equals ref or ends with it. A
// suffix must identify exactly one job.
func (d *Daemon) CancelJob(ref string) (job.Snapshot, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return job.Snapshot{}, fmt.Errorf("%w: empty job reference", ErrJobNotFound)
	}
	var matches []job.Snapshot
	for _, snap := range d.c.Scheduler.Jobs() {
		if snap.ID == ref {
			matches = []job.Snapshot{snap}
			break
		}
		if strings.HasSuffix(snap.ID, ref) {
			matches = append(matches, snap)
		}
	}
	switch len(matches) {
	case 0:
		return job.Snapshot{}, fmt.Errorf("%w %q", ErrJobNotFound, ref)
	case 1:
	default:
		return job.Snapshot{}, fmt.Errorf("job reference %q is ambiguous (%d matches)", ref, len(matches))
	}
	target := matches[0]
	if !d.c.Scheduler.Cancel(target.ID, errCancelledByOperator) {
		return job.Snapshot{}, fmt.Errorf("%w %q", ErrJobNotFound, ref)
	}
	d.logger.Info("job cancelled by operator",
		logging.JobID(target.ID),
		logging.UserID(target.UserID),
		logging.String(logging.FieldEventType, "job_cancel_requested"),
	)
	return target, nil
}

// History returns the most recent outcomes and per-state totals.
func (d *Daemon) History(ctx context.Context, limit int) ([]history.Outcome, map[job.State]int, error) {
	if d.c.History == nil {
		return nil, nil, errors.New("history store unavailable")
	}
	recent, err := d.c.History.Recent(ctx, limit)
	if err != nil {
		return nil, nil, err
	}
	counts, err := d.c.History.Counts(ctx)
	if err != nil {
		return nil, nil, err
	}
	return recent, counts, nil
}

// Sweep reclaims ephemeral files whose job is no longer live.
func (d *Daemon) Sweep(ctx context.Context) ephemeral.SweepResult {
	grace := time.Duration(d.cfg.Ephemeral.SweepGraceSeconds) * time.Second
	return d.c.Store.Sweep(ctx, grace, d.c.Scheduler.Live)
}

// TestNotification publishes a test alert using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.c.Notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

func (d *Daemon) sweepLoop(ctx context.Context) {
	defer d.wg.Done()
	interval := time.Duration(d.cfg.Ephemeral.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if result := d.Sweep(ctx); len(result.Removed) > 0 {
				d.logger.Info("ephemeral sweep reclaimed files",
					logging.String(logging.FieldEventType, "ephemeral_sweep"),
					logging.Int("removed", len(result.Removed)),
				)
			}
		}
	}
}

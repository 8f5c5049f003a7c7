package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fetchbot/internal/config"
	"fetchbot/internal/ephemeral"
	"fetchbot/internal/history"
	"fetchbot/internal/job"
	"fetchbot/internal/logging"
	"fetchbot/internal/notifications"
	"fetchbot/internal/stage"
)

// Observer receives job lifecycle events. JobTerminal is the acknowledgement
// point: the job's files are released once it returns or the ack timeout
// passes.
type Observer interface {
	JobStarted(ctx context.Context, snap job.Snapshot)
	JobProgress(ctx context.Context, snap job.Snapshot)
	JobTerminal(ctx context.Context, snap job.Snapshot) error
}

// HistoryRecorder stores terminal outcomes.
type HistoryRecorder interface {
	RecordOutcome(ctx context.Context, outcome history.Outcome) error
}

// StageSet bundles the concrete handlers the scheduler drives.
type StageSet struct {
	Downloader stage.Handler
	Transcoder stage.Handler
	Uploader   stage.Handler
}

type pipelineStage struct {
	name    string
	handler stage.Handler
	state   job.State
	// applies reports whether the stage runs for j; nil means always.
	applies func(j *job.Job) bool
}

// Scheduler admits jobs and runs them on a fixed worker pool.
type Scheduler struct {
	cfg      *config.Config
	store    *ephemeral.Manager
	logger   *slog.Logger
	notifier notifications.Service
	history  HistoryRecorder
	observer Observer

	workers          int
	maxQueue         int
	ackTimeout       time.Duration
	cancelGrace      time.Duration
	progressInterval time.Duration

	stages []pipelineStage

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*job.Job
	running  map[int64]*job.Job
	users    map[int64]string
	jobs     map[string]*job.Job
	started  bool
	stopping bool
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	lastErr  error
	lastJob  *job.Snapshot
}

// Option configures optional Scheduler behavior.
type Option func(*Scheduler)

// WithObserver sets the lifecycle observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithHistory sets the outcome recorder.
func WithHistory(h HistoryRecorder) Option {
	return func(s *Scheduler) { s.history = h }
}

// WithNotifier sets the operator notification service.
func WithNotifier(n notifications.Service) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// WithCancelGrace overrides how long a cancelled stage may take to stop.
func WithCancelGrace(d time.Duration) Option {
	return func(s *Scheduler) { s.cancelGrace = d }
}

// NewScheduler constructs a scheduler. Stages must be configured before Start.
func NewScheduler(cfg *config.Config, store *ephemeral.Manager, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Scheduler{
		cfg:              cfg,
		store:            store,
		logger:           logging.NewComponentLogger(logger, "scheduler"),
		notifier:         notifications.NewService(cfg),
		workers:          cfg.Limits.MaxConcurrentJobs,
		maxQueue:         cfg.Limits.MaxQueueLength,
		ackTimeout:       time.Duration(cfg.Stages.AckTimeoutSeconds) * time.Second,
		cancelGrace:      time.Duration(cfg.Stages.CancelGraceSeconds) * time.Second,
		progressInterval: time.Duration(cfg.Stages.ProgressIntervalSeconds) * time.Second,
		running:          make(map[int64]*job.Job),
		users:            make(map[int64]string),
		jobs:             make(map[string]*job.Job),
	}
	if s.workers < 1 {
		s.workers = 1
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConfigureStages registers the concrete stage handlers. Transcode only runs
// for formats that require it.
func (s *Scheduler) ConfigureStages(set StageSet) {
	var stages []pipelineStage
	if set.Downloader != nil {
		stages = append(stages, pipelineStage{name: "download", handler: set.Downloader, state: job.StateDownloading})
	}
	if set.Transcoder != nil {
		stages = append(stages, pipelineStage{
			name:    "transcode",
			handler: set.Transcoder,
			state:   job.StateTranscoding,
			applies: func(j *job.Job) bool { return j.Format().RequiresTranscode },
		})
	}
	if set.Uploader != nil {
		stages = append(stages, pipelineStage{name: "upload", handler: set.Uploader, state: job.StateUploading})
	}

	s.mu.Lock()
	s.stages = stages
	s.mu.Unlock()
}

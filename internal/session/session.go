package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"fetchbot/internal/config"
	"fetchbot/internal/history"
	"fetchbot/internal/job"
	"fetchbot/internal/logging"
	"fetchbot/internal/media"
)

// State is the conversation state of a session.
type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingFormatChoice State = "awaiting_format_choice"
	StateJobInFlight          State = "job_in_flight"
)

// Resolver turns a URL into format choices.
type Resolver interface {
	Resolve(ctx context.Context, url string) (media.Resolution, error)
}

// Scheduler admits jobs and cancels them.
type Scheduler interface {
	Submit(j *job.Job) error
	Cancel(jobID string, reason error) bool
}

// PreferenceStore supplies per-user delivery preferences.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID int64) (history.Preferences, error)
}

// Listener is told when an asynchronous resolution finishes. Superseded
// resolutions are never reported.
type Listener interface {
	ResolutionFinished(ctx context.Context, userID int64, res media.Resolution, err error)
}

// Session is a point-in-time copy of one user's conversation.
type Session struct {
	ID             string               `json:"id"`
	UserID         int64                `json:"user_id"`
	State          State                `json:"state"`
	PendingURL     string               `json:"pending_url,omitempty"`
	Resolving      bool                 `json:"resolving"`
	Info           media.Info           `json:"info"`
	FormatOptions  []media.FormatOption `json:"format_options,omitempty"`
	ActiveJobID    string               `json:"active_job_id,omitempty"`
	LastActivityAt time.Time            `json:"last_activity_at"`
	TTL            time.Duration        `json:"ttl"`
	Expired        bool                 `json:"expired"`
}

type entry struct {
	mu sync.Mutex

	id           string
	userID       int64
	state        State
	pendingURL   string
	resolving    bool
	generation   uint64
	info         media.Info
	options      []media.FormatOption
	activeJob    *job.Job
	lastActivity time.Time
	finishedAt   time.Time
	// expired marks a JobInFlight session past its TTL; the next progress
	// tick cancels the job.
	expired bool
	evicted bool
}

// Manager owns every live session.
type Manager struct {
	cfg       *config.Config
	resolver  Resolver
	scheduler Scheduler
	prefs     PreferenceStore
	listener  Listener
	logger    *slog.Logger
	now       func() time.Time

	ttl           time.Duration
	grace         time.Duration
	sweepInterval time.Duration
	sizeLimit     int64

	resolvePool *semaphore.Weighted

	mu       sync.Mutex
	sessions map[int64]*entry

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithListener sets the resolution listener.
func WithListener(l Listener) Option {
	return func(m *Manager) { m.listener = l }
}

// WithPreferences sets the preference source consulted when a job is created.
func WithPreferences(p PreferenceStore) Option {
	return func(m *Manager) { m.prefs = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager constructs a session manager.
func NewManager(cfg *config.Config, resolver Resolver, scheduler Scheduler, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	workers := cfg.Limits.ResolveWorkers
	if workers < 1 {
		workers = 1
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:           cfg,
		resolver:      resolver,
		scheduler:     scheduler,
		logger:        logging.NewComponentLogger(logger, "sessions"),
		now:           time.Now,
		ttl:           cfg.SessionTTL(),
		grace:         time.Duration(cfg.Sessions.GraceSeconds) * time.Second,
		sweepInterval: time.Duration(cfg.Sessions.SweepIntervalSeconds) * time.Second,
		sizeLimit:     cfg.Telegram.MaxFileSizeBytes,
		resolvePool:   semaphore.NewWeighted(int64(workers)),
		sessions:      make(map[int64]*entry),
		baseCtx:       baseCtx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a copy of the user's session.
func (m *Manager) Get(userID int64) (Session, bool) {
	m.mu.Lock()
	e, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return Session{}, false
	}
	m.reconcileLocked(e)
	return m.snapshotLocked(e), true
}

// Sessions returns copies of every live session.
func (m *Manager) Sessions() []Session {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	out := make([]Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.evicted {
			m.reconcileLocked(e)
			out = append(out, m.snapshotLocked(e))
		}
		e.mu.Unlock()
	}
	return out
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) snapshotLocked(e *entry) Session {
	s := Session{
		ID:             e.id,
		UserID:         e.userID,
		State:          e.state,
		PendingURL:     e.pendingURL,
		Resolving:      e.resolving,
		Info:           e.info,
		FormatOptions:  append([]media.FormatOption(nil), e.options...),
		LastActivityAt: e.lastActivity,
		TTL:            m.ttl,
		Expired:        e.expired,
	}
	if e.activeJob != nil {
		s.ActiveJobID = e.activeJob.ID()
	}
	return s
}

// reconcileLocked drops a JobInFlight session whose job has already reached
// a terminal state back to Idle.
func (m *Manager) reconcileLocked(e *entry) {
	if e.state != StateJobInFlight || e.activeJob == nil {
		return
	}
	if !e.activeJob.State().Terminal() {
		return
	}
	finished := e.activeJob.Snapshot().FinishedAt
	if finished.IsZero() {
		finished = m.now()
	}
	e.state = StateIdle
	e.activeJob = nil
	e.finishedAt = finished
	e.expired = false
	e.pendingURL = ""
	e.info = media.Info{}
	e.options = nil
}

func (m *Manager) userLogger(userID int64) *slog.Logger {
	return m.logger.With(logging.UserID(userID))
}

package session

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"fetchbot/internal/history"
	"fetchbot/internal/job"
	"fetchbot/internal/logging"
	"fetchbot/internal/media"
	"fetchbot/internal/resolver"
	"fetchbot/internal/services"
	"fetchbot/internal/textutil"
)

var (
	errCancelledByUser = fmt.Errorf("%w: cancelled by user", services.ErrCancelled)
	errSessionTimedOut = fmt.Errorf("%w: %w", services.ErrCancelled, services.ErrSessionExpired)
)

// lockEntry returns the user's entry with its mutex held, creating it when
// create is set. It returns nil when no live entry exists.
func (m *Manager) lockEntry(userID int64, create bool) *entry {
	for {
		m.mu.Lock()
		e, ok := m.sessions[userID]
		if !ok && create {
			e = &entry{id: uuid.NewString(), userID: userID, state: StateIdle, lastActivity: m.now()}
			m.sessions[userID] = e
			ok = true
		}
		m.mu.Unlock()
		if !ok {
			return nil
		}
		e.mu.Lock()
		if !e.evicted {
			return e
		}
		e.mu.Unlock()
	}
}

// SubmitURL starts resolving rawURL for the user. It fails with Busy while
// the user's job is in flight and with a validation error for URLs that can
// never resolve. A newer submission supersedes a resolution still running.
func (m *Manager) SubmitURL(ctx context.Context, userID int64, rawURL string) error {
	if _, err := resolver.ValidateURL(rawURL, m.cfg.Resolver.AllowedSchemes); err != nil {
		return err
	}

	e := m.lockEntry(userID, true)
	defer e.mu.Unlock()
	m.reconcileLocked(e)
	if e.state == StateJobInFlight {
		return services.Wrap(services.ErrBusy, "session", "submit url", "a job is still running", nil)
	}

	e.generation++
	e.state = StateIdle
	e.pendingURL = strings.TrimSpace(rawURL)
	e.resolving = true
	e.info = media.Info{}
	e.options = nil
	e.lastActivity = m.now()
	e.finishedAt = time.Time{}
	e.expired = false

	m.wg.Add(1)
	go m.resolve(e, e.generation, e.pendingURL)

	m.userLogger(userID).Debug("url submitted",
		logging.String("url", e.pendingURL),
		logging.String(logging.FieldEventType, "session_url_submitted"),
	)
	return nil
}

// ChooseFormat creates a job for the chosen option and hands it to the
// scheduler. The session stays in AwaitingFormatChoice when the scheduler
// refuses the job so the user can choose again later.
func (m *Manager) ChooseFormat(ctx context.Context, userID int64, formatID string) (*job.Job, error) {
	e := m.lockEntry(userID, false)
	if e == nil {
		return nil, services.Wrap(services.ErrSessionExpired, "session", "choose format", "no active session", nil)
	}
	defer e.mu.Unlock()
	m.reconcileLocked(e)

	switch e.state {
	case StateJobInFlight:
		return nil, services.Wrap(services.ErrBusy, "session", "choose format", "a job is still running", nil)
	case StateAwaitingFormatChoice:
	default:
		return nil, services.Wrap(services.ErrSessionExpired, "session", "choose format", "no format choice pending", nil)
	}

	now := m.now()
	if m.ttl > 0 && now.Sub(e.lastActivity) > m.ttl {
		m.resetLocked(e)
		return nil, services.Wrap(services.ErrSessionExpired, "session", "choose format", "format choice timed out", nil)
	}

	idx := slices.IndexFunc(e.options, func(o media.FormatOption) bool { return o.ID == formatID })
	if idx < 0 {
		return nil, services.Wrap(services.ErrInvalidChoice, "session", "choose format", fmt.Sprintf("unknown format %q", formatID), nil)
	}
	format := e.options[idx]

	prefs := m.preferences(ctx, userID)
	j, err := job.New(job.Spec{
		UserID:         userID,
		SessionID:      e.id,
		SourceURL:      e.pendingURL,
		Format:         format,
		Info:           e.info,
		SizeLimitBytes: m.sizeLimit,
		FileName:       textutil.RenderName(prefs.NamingTemplate, e.info),
		SendAsDocument: prefs.VideoAsDocument,
	})
	if err != nil {
		return nil, err
	}
	e.lastActivity = now
	if err := m.scheduler.Submit(j); err != nil {
		return nil, err
	}

	e.state = StateJobInFlight
	e.activeJob = j
	e.expired = false
	m.userLogger(userID).Info("format chosen",
		logging.JobID(j.ID()),
		logging.String("format_label", format.Label),
		logging.String(logging.FieldEventType, "session_job_submitted"),
	)
	return j, nil
}

// CancelActive requests cancellation of the user's running job. Repeated
// calls while the job is still in flight are accepted without effect.
func (m *Manager) CancelActive(userID int64) (string, error) {
	e := m.lockEntry(userID, false)
	if e == nil {
		return "", services.Wrap(services.ErrNoActiveJob, "session", "cancel", "no active session", nil)
	}
	defer e.mu.Unlock()
	m.reconcileLocked(e)
	if e.state != StateJobInFlight {
		return "", services.Wrap(services.ErrNoActiveJob, "session", "cancel", "nothing to cancel", nil)
	}
	e.lastActivity = m.now()
	jobID := e.activeJob.ID()
	if m.scheduler.Cancel(jobID, errCancelledByUser) {
		m.userLogger(userID).Info("cancel requested",
			logging.JobID(jobID),
			logging.String(logging.FieldEventType, "session_cancel"),
		)
	}
	return jobID, nil
}

// JobFinished clears the user's in-flight marker once jobID is terminal.
func (m *Manager) JobFinished(userID int64, jobID string) {
	e := m.lockEntry(userID, false)
	if e == nil {
		return
	}
	defer e.mu.Unlock()
	if e.activeJob == nil || e.activeJob.ID() != jobID {
		return
	}
	m.reconcileLocked(e)
}

// ProgressTick is called on every progress report of jobID. A session that
// outlived its TTL while the job was running cancels the job here. It reports
// whether cancellation was requested.
func (m *Manager) ProgressTick(userID int64, jobID string) bool {
	e := m.lockEntry(userID, false)
	if e == nil {
		return false
	}
	defer e.mu.Unlock()
	if !e.expired || e.state != StateJobInFlight || e.activeJob == nil || e.activeJob.ID() != jobID {
		return false
	}
	if !m.scheduler.Cancel(jobID, errSessionTimedOut) {
		return false
	}
	logging.WarnWithContext(m.userLogger(userID), "session expired during job", "session_expired_cancel",
		logging.JobID(jobID),
		logging.Duration("ttl", m.ttl),
		logging.String(logging.FieldImpact, "job cancelled"),
		logging.String(logging.FieldErrorHint, "raise sessions.ttl_seconds for long downloads"),
	)
	return true
}

func (m *Manager) resetLocked(e *entry) {
	e.generation++
	e.state = StateIdle
	e.pendingURL = ""
	e.resolving = false
	e.info = media.Info{}
	e.options = nil
}

func (m *Manager) preferences(ctx context.Context, userID int64) history.Preferences {
	if m.prefs == nil {
		return history.DefaultPreferences(userID)
	}
	prefs, err := m.prefs.GetPreferences(ctx, userID)
	if err != nil {
		m.userLogger(userID).Warn("preferences unavailable; using defaults",
			logging.Error(err),
			logging.String(logging.FieldEventType, "preferences_load_failed"),
			logging.String(logging.FieldImpact, "default file naming applied"),
			logging.String(logging.FieldErrorHint, "check the history database"),
		)
		return history.DefaultPreferences(userID)
	}
	return prefs
}

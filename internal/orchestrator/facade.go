package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fetchbot/internal/history"
	"fetchbot/internal/job"
	"fetchbot/internal/logging"
	"fetchbot/internal/services"
	"fetchbot/internal/session"
	"fetchbot/internal/textutil"
)

// Sessions is the session manager surface the facade drives.
type Sessions interface {
	SubmitURL(ctx context.Context, userID int64, url string) error
	ChooseFormat(ctx context.Context, userID int64, formatID string) (*job.Job, error)
	CancelActive(userID int64) (string, error)
	JobFinished(userID int64, jobID string)
	ProgressTick(userID int64, jobID string) bool
	Get(userID int64) (session.Session, bool)
}

// Jobs exposes scheduler lookups.
type Jobs interface {
	QueuePosition(jobID string) int
	Lookup(jobID string) (*job.Job, bool)
}

// PreferenceStore loads and saves user preferences.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID int64) (history.Preferences, error)
	SavePreferences(ctx context.Context, prefs history.Preferences) error
}

type jobTrack struct {
	sampler *logging.ProgressSampler
	started bool
}

// Facade translates user events into session operations and job lifecycle
// callbacks into user notifications.
type Facade struct {
	notifier         Notifier
	prefs            PreferenceStore
	logger           *slog.Logger
	progressStep     float64
	progressInterval time.Duration

	mu       sync.Mutex
	sessions Sessions
	jobs     Jobs
	tracks   map[string]*jobTrack
	requests map[int64]string
	seq      uint64
}

// New constructs a facade. Bind must be called before events are handled.
func New(notifier Notifier, prefs PreferenceStore, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Facade{
		notifier:         notifier,
		prefs:            prefs,
		logger:           logging.NewComponentLogger(logger, "orchestrator"),
		progressStep:     5,
		progressInterval: 3 * time.Second,
		tracks:           make(map[string]*jobTrack),
		requests:         make(map[int64]string),
	}
}

// Bind attaches the session manager and scheduler. They are created after
// the facade because both report back to it.
func (f *Facade) Bind(sessions Sessions, jobs Jobs) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = sessions
	f.jobs = jobs
}

func (f *Facade) bound() (Sessions, Jobs) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions, f.jobs
}

// HandleIncomingEvent routes ev. Rejections are reported to the user and
// also returned so the transport can log them.
func (f *Facade) HandleIncomingEvent(ctx context.Context, ev Event) error {
	sessions, jobs := f.bound()
	if sessions == nil {
		return services.Wrap(services.ErrConfiguration, "orchestrator", "handle event", "facade not bound", nil)
	}
	ctx = services.WithUserID(ctx, ev.User())

	switch e := ev.(type) {
	case URLSubmitted:
		if err := sessions.SubmitURL(ctx, e.UserID, e.URL); err != nil {
			return f.reject(ctx, e.UserID, err)
		}
		return f.notify(ctx, Notification{UserID: e.UserID, Text: "Looking up formats…", ReplaceKey: f.newRequestKey(e.UserID)})

	case FormatChosen:
		j, err := sessions.ChooseFormat(ctx, e.UserID, e.FormatID)
		if err != nil {
			return f.reject(ctx, e.UserID, err)
		}
		snap := j.Snapshot()
		_ = f.notify(ctx, Notification{
			UserID:     e.UserID,
			Text:       fmt.Sprintf("%s\nSelected: %s", snap.Title, snap.FormatLabel),
			ReplaceKey: f.requestKey(e.UserID),
		})
		f.mu.Lock()
		track, tracked := f.tracks[j.ID()]
		started := tracked && track.started
		f.mu.Unlock()
		if started || j.State() != job.StateQueued {
			return nil
		}
		position := 0
		if jobs != nil {
			position = jobs.QueuePosition(j.ID())
		}
		return f.notify(ctx, Notification{
			UserID:     e.UserID,
			Text:       queuedText(snap, position),
			Choices:    []Choice{cancelChoice()},
			ReplaceKey: jobKey(j.ID()),
		})

	case CancelRequested:
		jobID, err := sessions.CancelActive(e.UserID)
		if err != nil {
			return f.reject(ctx, e.UserID, err)
		}
		return f.notify(ctx, Notification{UserID: e.UserID, Text: "Cancelling…", ReplaceKey: jobKey(jobID)})

	case SettingsRequested:
		prefs, err := f.loadPreferences(ctx, e.UserID)
		if err != nil {
			return err
		}
		text, choices := settingsText(prefs)
		return f.notify(ctx, Notification{UserID: e.UserID, Text: text, Choices: choices, ReplaceKey: settingsKey})

	case SettingToggled:
		return f.toggleSetting(ctx, e)

	case StatusRequested:
		return f.notify(ctx, f.statusNotification(sessions, jobs, e.UserID))

	case HelpRequested:
		return f.notify(ctx, Notification{UserID: e.UserID, Text: helpText})

	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

func (f *Facade) reject(ctx context.Context, userID int64, err error) error {
	kind := services.KindOf(err)
	f.logger.Info("request rejected",
		logging.UserID(userID),
		logging.ErrorKind(kind),
		logging.Error(err),
		logging.String(logging.FieldEventType, "request_rejected"),
	)
	if notifyErr := f.notify(ctx, Notification{UserID: userID, Text: messageFor(err, 0)}); notifyErr != nil {
		return fmt.Errorf("%w (notify: %v)", err, notifyErr)
	}
	return err
}

func (f *Facade) toggleSetting(ctx context.Context, e SettingToggled) error {
	if f.prefs == nil {
		return services.Wrap(services.ErrConfiguration, "orchestrator", "settings", "no preference store", nil)
	}
	prefs, err := f.loadPreferences(ctx, e.UserID)
	if err != nil {
		return err
	}
	switch e.Setting {
	case SettingNamingTemplate:
		prefs.NamingTemplate = textutil.NextTemplate(prefs.NamingTemplate)
	case SettingVideoAsDocument:
		prefs.VideoAsDocument = !prefs.VideoAsDocument
	default:
		return services.Wrap(services.ErrInvalidChoice, "orchestrator", "settings", fmt.Sprintf("unknown setting %q", e.Setting), nil)
	}
	if err := f.prefs.SavePreferences(ctx, prefs); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	text, choices := settingsText(prefs)
	return f.notify(ctx, Notification{UserID: e.UserID, Text: text, Choices: choices, ReplaceKey: settingsKey})
}

func (f *Facade) loadPreferences(ctx context.Context, userID int64) (history.Preferences, error) {
	if f.prefs == nil {
		return history.DefaultPreferences(userID), nil
	}
	prefs, err := f.prefs.GetPreferences(ctx, userID)
	if err != nil {
		return history.Preferences{}, fmt.Errorf("load preferences: %w", err)
	}
	return prefs, nil
}

func (f *Facade) statusNotification(sessions Sessions, jobs Jobs, userID int64) Notification {
	n := Notification{UserID: userID}
	s, ok := sessions.Get(userID)
	switch {
	case !ok:
		n.Text = "Nothing in progress. Send a link to start."
	case s.State == session.StateJobInFlight && jobs != nil:
		j, found := jobs.Lookup(s.ActiveJobID)
		if !found {
			n.Text = "Finishing your last download."
			break
		}
		snap := j.Snapshot()
		if pos := jobs.QueuePosition(j.ID()); pos > 0 {
			n.Text = queuedText(snap, pos)
		} else {
			n.Text = progressText(snap)
		}
		n.Choices = []Choice{cancelChoice()}
	case s.State == session.StateAwaitingFormatChoice:
		n.Text = fmt.Sprintf("Waiting for you to choose a format for %s.", s.Info.DisplayTitle())
	case s.Resolving:
		n.Text = "Looking up formats for " + s.PendingURL
	default:
		n.Text = "Nothing in progress. Send a link to start."
	}
	return n
}

func (f *Facade) notify(ctx context.Context, n Notification) error {
	if f.notifier == nil {
		return nil
	}
	if err := f.notifier.Notify(ctx, n); err != nil {
		logging.WarnWithContext(f.logger, "user notification failed", "notify_failed",
			logging.UserID(n.UserID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "user did not receive an update"),
			logging.String(logging.FieldErrorHint, "check messaging platform connectivity"),
		)
		return err
	}
	return nil
}

// newRequestKey starts a fresh replace key for the user's next lookup so the
// messages of an earlier request are left alone.
func (f *Facade) newRequestKey(userID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	key := fmt.Sprintf("request:%d", f.seq)
	f.requests[userID] = key
	return key
}

func (f *Facade) requestKey(userID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[userID]
}

func (f *Facade) track(jobID string) *jobTrack {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tracks[jobID]
	if !ok {
		t = &jobTrack{sampler: logging.NewProgressSampler(f.progressStep, f.progressInterval)}
		f.tracks[jobID] = t
	}
	return t
}

func (f *Facade) forget(jobID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tracks, jobID)
}

package job

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fetchbot/internal/media"
	"fetchbot/internal/services"
)

// ErrInvalidTransition is returned for state changes the machine forbids.
var ErrInvalidTransition = errors.New("invalid job state transition")

// Spec describes a job to create.
type Spec struct {
	UserID         int64
	SessionID      string
	SourceURL      string
	Format         media.FormatOption
	Info           media.Info
	SizeLimitBytes int64
	// FileName is the sanitized base name (no extension) used for delivery.
	FileName       string
	SendAsDocument bool
}

// Progress is the latest progress report of the running stage.
type Progress struct {
	Stage   string  `json:"stage"`
	Bytes   int64   `json:"bytes"`
	Total   int64   `json:"total"`
	Percent float64 `json:"percent"`
}

// ErrorInfo is the classified terminal error.
type ErrorInfo struct {
	Kind    services.Kind `json:"kind"`
	Message string        `json:"message"`
}

// StateChange is one entry of a job's state history.
type StateChange struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
}

// Job is one pipeline execution. All methods are safe for concurrent use.
type Job struct {
	id        string
	spec      Spec
	createdAt time.Time

	mu              sync.RWMutex
	state           State
	history         []StateChange
	progress        Progress
	transferred     int64
	attempts        map[string]int
	lastError       *ErrorInfo
	paths           map[string]struct{}
	deadlineAt      time.Time
	deliveryID      string
	finishedAt      time.Time
	cancelRequested bool
	cancelReason    error

	cancelCh chan struct{}
	done     chan struct{}
}

// New creates a queued job with a time-ordered identifier.
func New(spec Spec) (*Job, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}
	now := time.Now()
	return &Job{
		id:        id.String(),
		spec:      spec,
		createdAt: now,
		state:     StateQueued,
		history:   []StateChange{{State: StateQueued, At: now}},
		progress:  Progress{Percent: -1},
		attempts:  make(map[string]int),
		paths:     make(map[string]struct{}),
		cancelCh:  make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

func (j *Job) ID() string                 { return j.id }
func (j *Job) UserID() int64              { return j.spec.UserID }
func (j *Job) SessionID() string          { return j.spec.SessionID }
func (j *Job) SourceURL() string          { return j.spec.SourceURL }
func (j *Job) Format() media.FormatOption { return j.spec.Format }
func (j *Job) Info() media.Info           { return j.spec.Info }
func (j *Job) SizeLimit() int64           { return j.spec.SizeLimitBytes }
func (j *Job) FileName() string           { return j.spec.FileName }
func (j *Job) SendAsDocument() bool       { return j.spec.SendAsDocument }
func (j *Job) CreatedAt() time.Time       { return j.createdAt }

// State returns the current state.
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Transition moves the job to next, enforcing the state machine.
func (j *Job) Transition(next State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(next)
}

func (j *Job) transitionLocked(next State) error {
	if !canTransition(j.state, next) || (next == StateCancelled && !j.cancelRequested) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.state, next)
	}
	now := time.Now()
	j.state = next
	j.history = append(j.history, StateChange{State: next, At: now})
	j.deadlineAt = time.Time{}
	if next.Terminal() {
		j.finishedAt = now
		close(j.done)
	}
	return nil
}

// Finish moves the job to its terminal state based on the pipeline outcome:
// nil succeeds, a cancellation after a cancel request cancels, anything else
// fails with the classified error recorded. The resulting state is returned.
func (j *Job) Finish(err error) (State, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return j.state, fmt.Errorf("%w: job already %s", ErrInvalidTransition, j.state)
	}
	if err == nil {
		return StateSucceeded, j.transitionLocked(StateSucceeded)
	}
	kind := services.KindOf(err)
	j.lastError = &ErrorInfo{Kind: kind, Message: err.Error()}
	if kind == services.KindCancelled && j.cancelRequested {
		return StateCancelled, j.transitionLocked(StateCancelled)
	}
	return StateFailed, j.transitionLocked(StateFailed)
}

// RequestCancel flags the job for cancellation and closes CancelCh. It reports
// whether this call was the first request. Requests on terminal jobs are ignored.
func (j *Job) RequestCancel(reason error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelRequested || j.state.Terminal() {
		return false
	}
	if reason == nil {
		reason = services.ErrCancelled
	}
	j.cancelRequested = true
	j.cancelReason = reason
	close(j.cancelCh)
	return true
}

// CancelRequested reports whether cancellation was requested.
func (j *Job) CancelRequested() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.cancelRequested
}

// CancelReason returns the reason given to RequestCancel.
func (j *Job) CancelReason() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.cancelReason
}

// CancelCh is closed once cancellation is requested.
func (j *Job) CancelCh() <-chan struct{} { return j.cancelCh }

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// RecordAttempt increments and returns the attempt counter for stage.
func (j *Job) RecordAttempt(stage string, deadline time.Time) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts[stage]++
	j.deadlineAt = deadline
	return j.attempts[stage]
}

// Deadline returns the deadline of the running attempt, or the zero time.
func (j *Job) Deadline() time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.deadlineAt
}

// ClearDeadline forgets the deadline once an attempt has returned.
func (j *Job) ClearDeadline() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.deadlineAt = time.Time{}
}

// AttemptCounts returns a copy of the per-stage attempt counters.
func (j *Job) AttemptCounts() map[string]int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make(map[string]int, len(j.attempts))
	for stage, count := range j.attempts {
		out[stage] = count
	}
	return out
}

// SetProgress records progress for stage. total<=0 means unknown.
func (j *Job) SetProgress(stage string, bytes, total int64) Progress {
	percent := -1.0
	if total > 0 {
		percent = float64(bytes) * 100 / float64(total)
		if percent > 100 {
			percent = 100
		}
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = Progress{Stage: stage, Bytes: bytes, Total: total, Percent: percent}
	if bytes > j.transferred {
		j.transferred = bytes
	}
	return j.progress
}

// SetPercent records a percentage-only progress report (e.g. transcoding).
func (j *Job) SetPercent(stage string, percent float64) Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = Progress{Stage: stage, Percent: percent}
	return j.progress
}

// Progress returns the latest progress report.
func (j *Job) Progress() Progress {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress
}

// TrackPath records an ephemeral artifact belonging to the job.
func (j *Job) TrackPath(path string) {
	if path == "" {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.paths[path] = struct{}{}
}

// UntrackPath forgets a removed artifact.
func (j *Job) UntrackPath(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.paths, path)
}

// Paths returns the tracked ephemeral artifacts in sorted order.
func (j *Job) Paths() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]string, 0, len(j.paths))
	for path := range j.paths {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// SetDeliveryID records the platform identifier of the delivered file.
func (j *Job) SetDeliveryID(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.deliveryID = id
}

// LastError returns the classified terminal error, if any.
func (j *Job) LastError() (ErrorInfo, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.lastError == nil {
		return ErrorInfo{}, false
	}
	return *j.lastError, true
}

// History returns the observed states in order.
func (j *Job) History() []StateChange {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]StateChange(nil), j.history...)
}

// Snapshot is a point-in-time copy of a job suitable for display and IPC.
type Snapshot struct {
	ID               string         `json:"id"`
	UserID           int64          `json:"user_id"`
	SourceURL        string         `json:"source_url"`
	Title            string         `json:"title"`
	FormatLabel      string         `json:"format_label"`
	State            State          `json:"state"`
	Progress         Progress       `json:"progress"`
	BytesTransferred int64          `json:"bytes_transferred"`
	SizeLimitBytes   int64          `json:"size_limit_bytes"`
	AttemptCounts    map[string]int `json:"attempt_counts,omitempty"`
	LastError        *ErrorInfo     `json:"last_error,omitempty"`
	EphemeralPaths   []string       `json:"ephemeral_paths,omitempty"`
	CancelRequested  bool           `json:"cancel_requested"`
	DeliveryID       string         `json:"delivery_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	DeadlineAt       time.Time      `json:"deadline_at,omitempty"`
	FinishedAt       time.Time      `json:"finished_at,omitempty"`
}

// Snapshot returns a copy of the job's observable state.
func (j *Job) Snapshot() Snapshot {
	paths := j.Paths()
	attempts := j.AttemptCounts()

	j.mu.RLock()
	defer j.mu.RUnlock()
	snap := Snapshot{
		ID:               j.id,
		UserID:           j.spec.UserID,
		SourceURL:        j.spec.SourceURL,
		Title:            j.spec.Info.DisplayTitle(),
		FormatLabel:      j.spec.Format.Label,
		State:            j.state,
		Progress:         j.progress,
		BytesTransferred: j.transferred,
		SizeLimitBytes:   j.spec.SizeLimitBytes,
		AttemptCounts:    attempts,
		EphemeralPaths:   paths,
		CancelRequested:  j.cancelRequested,
		DeliveryID:       j.deliveryID,
		CreatedAt:        j.createdAt,
		DeadlineAt:       j.deadlineAt,
		FinishedAt:       j.finishedAt,
	}
	if j.lastError != nil {
		errCopy := *j.lastError
		snap.LastError = &errCopy
	}
	return snap
}

package session_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"fetchbot/internal/history"
	"fetchbot/internal/job"
	"fetchbot/internal/logging"
	"fetchbot/internal/media"
	"fetchbot/internal/services"
	"fetchbot/internal/session"
	"fetchbot/internal/testsupport"
)

type fakeResolver struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	errs  map[string]error
	calls []string
}

func (r *fakeResolver) block(url string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gates == nil {
		r.gates = make(map[string]chan struct{})
	}
	gate := make(chan struct{})
	r.gates[url] = gate
	return gate
}

func (r *fakeResolver) fail(url string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.errs == nil {
		r.errs = make(map[string]error)
	}
	r.errs[url] = err
}

func (r *fakeResolver) Resolve(ctx context.Context, url string) (media.Resolution, error) {
	r.mu.Lock()
	r.calls = append(r.calls, url)
	gate := r.gates[url]
	err := r.errs[url]
	r.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return media.Resolution{}, services.ContextError(ctx)
		}
	}
	if err != nil {
		return media.Resolution{}, err
	}
	return media.Resolution{
		URL:  url,
		Info: media.Info{Title: "Clip of " + url, Uploader: "Someone"},
		Options: []media.FormatOption{
			{ID: "v720", Kind: media.KindVideo, Label: "Video 720p"},
			{ID: "a128", Kind: media.KindAudio, Label: "Audio 128 kbps"},
		},
	}, nil
}

type fakeScheduler struct {
	mu        sync.Mutex
	submitErr error
	submitted []*job.Job
	cancels   []error
}

func (s *fakeScheduler) Submit(j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return s.submitErr
	}
	s.submitted = append(s.submitted, j)
	return nil
}

func (s *fakeScheduler) Cancel(jobID string, reason error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.submitted {
		if j.ID() == jobID {
			s.cancels = append(s.cancels, reason)
			return j.RequestCancel(reason)
		}
	}
	return false
}

type resolution struct {
	userID int64
	res    media.Resolution
	err    error
}

type chanListener chan resolution

func (l chanListener) ResolutionFinished(_ context.Context, userID int64, res media.Resolution, err error) {
	l <- resolution{userID: userID, res: res, err: err}
}

type staticPrefs history.Preferences

func (p staticPrefs) GetPreferences(context.Context, int64) (history.Preferences, error) {
	return history.Preferences(p), nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	mgr       *session.Manager
	resolver  *fakeResolver
	scheduler *fakeScheduler
	results   chanListener
	clock     *clock
}

func newFixture(t *testing.T, opts ...session.Option) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Sessions.TTLSeconds = 60
	cfg.Sessions.GraceSeconds = 30
	cfg.Telegram.MaxFileSizeBytes = 50 << 20
	f := &fixture{
		resolver:  &fakeResolver{},
		scheduler: &fakeScheduler{},
		results:   make(chanListener, 8),
		clock:     &clock{now: time.Now()},
	}
	opts = append([]session.Option{session.WithListener(f.results), session.WithClock(f.clock.Now)}, opts...)
	f.mgr = session.NewManager(cfg, f.resolver, f.scheduler, logging.NewNop(), opts...)
	t.Cleanup(f.mgr.Stop)
	return f
}

func (f *fixture) await(t *testing.T) resolution {
	t.Helper()
	select {
	case r := <-f.results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("resolution never reported")
		return resolution{}
	}
}

func (f *fixture) resolved(t *testing.T, userID int64, url string) {
	t.Helper()
	if err := f.mgr.SubmitURL(context.Background(), userID, url); err != nil {
		t.Fatalf("SubmitURL: %v", err)
	}
	if r := f.await(t); r.err != nil {
		t.Fatalf("resolution failed: %v", r.err)
	}
}

func (f *fixture) inFlight(t *testing.T, userID int64) *job.Job {
	t.Helper()
	f.resolved(t, userID, "https://example.com/video")
	j, err := f.mgr.ChooseFormat(context.Background(), userID, "v720")
	if err != nil {
		t.Fatalf("ChooseFormat: %v", err)
	}
	return j
}

func TestSubmitURLRejectsInvalidURLWithoutSession(t *testing.T) {
	f := newFixture(t)
	err := f.mgr.SubmitURL(context.Background(), 1, "ftp://example.com/file")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.mgr.Len() != 0 {
		t.Fatal("invalid url must not create a session")
	}
}

func TestSubmitURLResolvesToFormatChoice(t *testing.T) {
	f := newFixture(t)
	if err := f.mgr.SubmitURL(context.Background(), 1, "https://example.com/video"); err != nil {
		t.Fatalf("SubmitURL: %v", err)
	}
	r := f.await(t)
	if r.err != nil || r.userID != 1 || len(r.res.Options) != 2 {
		t.Fatalf("unexpected resolution %+v", r)
	}
	s, ok := f.mgr.Get(1)
	if !ok || s.State != session.StateAwaitingFormatChoice || len(s.FormatOptions) != 2 || s.Resolving {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestResolutionFailureReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	f.resolver.fail("https://example.com/missing", services.Wrap(services.ErrUnsupportedSource, "resolve", "extract", "no extractor", nil))
	if err := f.mgr.SubmitURL(context.Background(), 1, "https://example.com/missing"); err != nil {
		t.Fatalf("SubmitURL: %v", err)
	}
	r := f.await(t)
	if services.KindOf(r.err) != services.KindUnsupportedSource {
		t.Fatalf("expected unsupported source, got %v", r.err)
	}
	s, _ := f.mgr.Get(1)
	if s.State != session.StateIdle || s.PendingURL != "" {
		t.Fatalf("expected idle session, got %+v", s)
	}
}

func TestNewerSubmissionSupersedesPendingResolution(t *testing.T) {
	f := newFixture(t)
	gate := f.resolver.block("https://example.com/first")
	if err := f.mgr.SubmitURL(context.Background(), 1, "https://example.com/first"); err != nil {
		t.Fatal(err)
	}
	if err := f.mgr.SubmitURL(context.Background(), 1, "https://example.com/second"); err != nil {
		t.Fatal(err)
	}
	r := f.await(t)
	if r.res.URL != "https://example.com/second" {
		t.Fatalf("expected second url to win, got %q", r.res.URL)
	}
	close(gate)

	select {
	case stale := <-f.results:
		t.Fatalf("superseded resolution was reported: %+v", stale)
	case <-time.After(50 * time.Millisecond):
	}
	s, _ := f.mgr.Get(1)
	if s.PendingURL != "https://example.com/second" || s.State != session.StateAwaitingFormatChoice {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestChooseFormatCreatesJob(t *testing.T) {
	f := newFixture(t, session.WithPreferences(staticPrefs{NamingTemplate: "{title} - {uploader}", VideoAsDocument: true}))
	f.resolved(t, 1, "https://example.com/video")

	if _, err := f.mgr.ChooseFormat(context.Background(), 1, "nope"); !errors.Is(err, services.ErrInvalidChoice) {
		t.Fatalf("expected invalid choice, got %v", err)
	}
	j, err := f.mgr.ChooseFormat(context.Background(), 1, "v720")
	if err != nil {
		t.Fatalf("ChooseFormat: %v", err)
	}
	if j.Format().ID != "v720" || j.SizeLimit() != 50<<20 || !j.SendAsDocument() {
		t.Fatalf("unexpected job spec: format %+v limit %d", j.Format(), j.SizeLimit())
	}
	if !strings.HasSuffix(j.FileName(), "Someone") {
		t.Fatalf("unexpected file name %q", j.FileName())
	}
	s, _ := f.mgr.Get(1)
	if s.State != session.StateJobInFlight || s.ActiveJobID != j.ID() || s.ID != j.SessionID() {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestBusyWhileJobInFlight(t *testing.T) {
	f := newFixture(t)
	first := f.inFlight(t, 1)

	err := f.mgr.SubmitURL(context.Background(), 1, "https://example.com/other")
	if !errors.Is(err, services.ErrBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	if _, err := f.mgr.ChooseFormat(context.Background(), 1, "a128"); !errors.Is(err, services.ErrBusy) {
		t.Fatalf("expected busy on second choice, got %v", err)
	}
	if first.CancelRequested() {
		t.Fatal("first job must proceed unaffected")
	}
}

func TestChooseFormatWithoutSessionOrChoice(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mgr.ChooseFormat(context.Background(), 5, "v720"); !errors.Is(err, services.ErrSessionExpired) {
		t.Fatalf("expected expired without session, got %v", err)
	}

	gate := f.resolver.block("https://example.com/slow")
	defer close(gate)
	if err := f.mgr.SubmitURL(context.Background(), 5, "https://example.com/slow"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.ChooseFormat(context.Background(), 5, "v720"); !errors.Is(err, services.ErrSessionExpired) {
		t.Fatalf("expected expired while idle, got %v", err)
	}
}

func TestChooseFormatAfterTTLExpires(t *testing.T) {
	f := newFixture(t)
	f.resolved(t, 1, "https://example.com/video")
	f.clock.Advance(2 * time.Minute)
	if _, err := f.mgr.ChooseFormat(context.Background(), 1, "v720"); !errors.Is(err, services.ErrSessionExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if s, _ := f.mgr.Get(1); s.State != session.StateIdle {
		t.Fatalf("expired choice should reset to idle, got %s", s.State)
	}
}

func TestSchedulerRejectionKeepsChoice(t *testing.T) {
	f := newFixture(t)
	f.resolved(t, 1, "https://example.com/video")
	f.scheduler.submitErr = services.Wrap(services.ErrCapacityExceeded, "scheduler", "submit", "queue full", nil)

	if _, err := f.mgr.ChooseFormat(context.Background(), 1, "v720"); !errors.Is(err, services.ErrCapacityExceeded) {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}
	s, _ := f.mgr.Get(1)
	if s.State != session.StateAwaitingFormatChoice || s.ActiveJobID != "" {
		t.Fatalf("rejected job must not enter the session: %+v", s)
	}
}

func TestCancelActive(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mgr.CancelActive(1); !errors.Is(err, services.ErrNoActiveJob) {
		t.Fatalf("expected no active job, got %v", err)
	}
	j := f.inFlight(t, 1)

	id, err := f.mgr.CancelActive(1)
	if err != nil || id != j.ID() {
		t.Fatalf("CancelActive = %q, %v", id, err)
	}
	if !j.CancelRequested() {
		t.Fatal("job should be flagged for cancellation")
	}
	if _, err := f.mgr.CancelActive(1); err != nil {
		t.Fatalf("repeated cancel should be accepted, got %v", err)
	}
}

func TestSessionLeavesInFlightWhenJobTerminates(t *testing.T) {
	f := newFixture(t)
	j := f.inFlight(t, 1)
	if _, err := j.Finish(nil); err != nil {
		t.Fatal(err)
	}
	s, _ := f.mgr.Get(1)
	if s.State != session.StateIdle || s.ActiveJobID != "" {
		t.Fatalf("terminal job must clear in-flight state: %+v", s)
	}
	if _, err := f.mgr.CancelActive(1); !errors.Is(err, services.ErrNoActiveJob) {
		t.Fatalf("expected no active job after completion, got %v", err)
	}
	f.resolved(t, 1, "https://example.com/next")
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	f := newFixture(t)
	f.resolved(t, 1, "https://example.com/video")
	f.resolved(t, 2, "https://example.com/video")

	if n := f.mgr.SweepExpired(f.clock.Now().Add(30 * time.Second)); n != 0 {
		t.Fatalf("fresh sessions evicted: %d", n)
	}
	f.clock.Advance(90 * time.Second)
	if n := f.mgr.SweepExpired(f.clock.Now()); n != 2 {
		t.Fatalf("expected 2 evictions, got %d", n)
	}
	if f.mgr.Len() != 0 {
		t.Fatal("sessions should be gone")
	}
	if _, err := f.mgr.ChooseFormat(context.Background(), 1, "v720"); !errors.Is(err, services.ErrSessionExpired) {
		t.Fatalf("expected expired after eviction, got %v", err)
	}
}

func TestSweepKeepsSessionWithPendingResolution(t *testing.T) {
	f := newFixture(t)
	gate := f.resolver.block("https://example.com/slow")
	if err := f.mgr.SubmitURL(context.Background(), 1, "https://example.com/slow"); err != nil {
		t.Fatalf("SubmitURL: %v", err)
	}

	f.clock.Advance(2 * time.Minute)
	if n := f.mgr.SweepExpired(f.clock.Now()); n != 0 {
		t.Fatalf("resolving session must not be evicted, got %d", n)
	}
	close(gate)
	if r := f.await(t); r.err != nil || r.userID != 1 {
		t.Fatalf("resolution should still reach the user: %+v", r)
	}
	s, ok := f.mgr.Get(1)
	if !ok || s.State != session.StateAwaitingFormatChoice {
		t.Fatalf("expected format choice pending, got %+v", s)
	}
}

func TestSweepFlagsInFlightSessionAndProgressTickCancels(t *testing.T) {
	f := newFixture(t)
	j := f.inFlight(t, 1)

	if f.mgr.ProgressTick(1, j.ID()) {
		t.Fatal("fresh session must not cancel")
	}
	f.clock.Advance(2 * time.Minute)
	if n := f.mgr.SweepExpired(f.clock.Now()); n != 0 {
		t.Fatalf("in-flight session must not be evicted, got %d", n)
	}
	s, _ := f.mgr.Get(1)
	if !s.Expired || s.State != session.StateJobInFlight {
		t.Fatalf("expected flagged in-flight session, got %+v", s)
	}
	if !f.mgr.ProgressTick(1, j.ID()) {
		t.Fatal("progress tick should cancel the expired session's job")
	}
	if !errors.Is(j.CancelReason(), services.ErrSessionExpired) {
		t.Fatalf("unexpected cancel reason %v", j.CancelReason())
	}
}

func TestSweepEvictsAfterGraceFollowingJob(t *testing.T) {
	f := newFixture(t)
	j := f.inFlight(t, 1)
	if _, err := j.Finish(nil); err != nil {
		t.Fatal(err)
	}
	f.mgr.JobFinished(1, j.ID())

	finished := j.Snapshot().FinishedAt
	if n := f.mgr.SweepExpired(finished.Add(10 * time.Second)); n != 0 {
		t.Fatalf("evicted within grace: %d", n)
	}
	if n := f.mgr.SweepExpired(finished.Add(31 * time.Second)); n != 1 {
		t.Fatalf("expected eviction after grace, got %d", n)
	}
}

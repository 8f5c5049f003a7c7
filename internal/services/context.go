package services

import "context"

// Scope identifies who and what a context is working for. Log lines derive
// their job, user, stage and correlation fields from it.
type Scope struct {
	JobID     string
	UserID    int64
	HasUser   bool
	Stage     string
	RequestID string
}

type scopeKey struct{}

type attemptHooksKey struct{}

// ScopeFrom returns the scope attached to ctx, or the zero Scope.
func ScopeFrom(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}

func withScope(ctx context.Context, edit func(*Scope)) context.Context {
	s := ScopeFrom(ctx)
	edit(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithJobID is a no-op for an empty id, as are WithStage and WithRequestID.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return withScope(ctx, func(s *Scope) { s.JobID = id })
}

func WithUserID(ctx context.Context, id int64) context.Context {
	return withScope(ctx, func(s *Scope) { s.UserID, s.HasUser = id, true })
}

func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return withScope(ctx, func(s *Scope) { s.Stage = stage })
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return withScope(ctx, func(s *Scope) { s.RequestID = id })
}

func JobIDFromContext(ctx context.Context) (string, bool) {
	id := ScopeFrom(ctx).JobID
	return id, id != ""
}

func UserIDFromContext(ctx context.Context) (int64, bool) {
	s := ScopeFrom(ctx)
	return s.UserID, s.HasUser
}

func StageFromContext(ctx context.Context) (string, bool) {
	stage := ScopeFrom(ctx).Stage
	return stage, stage != ""
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	id := ScopeFrom(ctx).RequestID
	return id, id != ""
}

// AttemptHooks are called by RetryPolicy.Do around every attempt run under a
// context. Either func may be nil.
type AttemptHooks struct {
	Begin func(attempt int)
	End   func(attempt int, err error)
}

// WithAttemptHooks attaches hooks to ctx.
func WithAttemptHooks(ctx context.Context, hooks AttemptHooks) context.Context {
	if hooks.Begin == nil && hooks.End == nil {
		return ctx
	}
	return context.WithValue(ctx, attemptHooksKey{}, hooks)
}

// WithAttemptObserver makes RetryPolicy.Do call fn with the attempt number
// before every attempt run under ctx.
func WithAttemptObserver(ctx context.Context, fn func(attempt int)) context.Context {
	return WithAttemptHooks(ctx, AttemptHooks{Begin: fn})
}

func attemptHooksFrom(ctx context.Context) AttemptHooks {
	hooks, _ := ctx.Value(attemptHooksKey{}).(AttemptHooks)
	return hooks
}

package logging

import (
	"context"
	"log/slog"

	"fetchbot/internal/services"
)

// Structured keys shared by every handler and call site.
const (
	FieldComponent       = "component"
	FieldJobID           = "job_id"
	FieldUserID          = "user_id"
	FieldStage           = "stage"
	FieldCorrelationID   = "correlation_id"
	FieldAlert           = "alert"
	FieldEventType       = "event_type"
	FieldErrorHint       = "error_hint"
	FieldImpact          = "impact"
	FieldErrorKind       = "error_kind"
	FieldAttempt         = "attempt"
	FieldProgressPercent = "progress_percent"
)

// ContextFields turns the services.Scope carried by ctx into attributes.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	scope := services.ScopeFrom(ctx)
	var attrs []slog.Attr
	if scope.JobID != "" {
		attrs = append(attrs, slog.String(FieldJobID, scope.JobID))
	}
	if scope.HasUser {
		attrs = append(attrs, slog.Int64(FieldUserID, scope.UserID))
	}
	if scope.Stage != "" {
		attrs = append(attrs, slog.String(FieldStage, scope.Stage))
	}
	if scope.RequestID != "" {
		attrs = append(attrs, slog.String(FieldCorrelationID, scope.RequestID))
	}
	return attrs
}

// WithContext binds the scope fields of ctx to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	attrs := ContextFields(ctx)
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}

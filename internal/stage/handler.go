package stage

import (
	"context"
	"log/slog"
)

// Handler describes the contract the scheduler needs from each pipeline stage.
type Handler interface {
	Prepare(context.Context, *Work) error
	Execute(context.Context, *Work) error
	HealthCheck(context.Context) Health
}

// LoggerAware handlers receive the stage-scoped logger before Prepare.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

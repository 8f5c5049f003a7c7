package session

import (
	"context"

	"fetchbot/internal/logging"
	"fetchbot/internal/media"
	"fetchbot/internal/services"
)

// resolve runs on the resolve pool and publishes the result to the session
// if gen is still current.
func (m *Manager) resolve(e *entry, gen uint64, url string) {
	defer m.wg.Done()
	ctx := services.WithUserID(m.baseCtx, e.userID)

	var (
		res media.Resolution
		err error
	)
	if err = m.resolvePool.Acquire(ctx, 1); err != nil {
		err = services.ContextError(ctx)
	} else {
		res, err = m.resolver.Resolve(ctx, url)
		m.resolvePool.Release(1)
	}
	if err == nil && len(res.Options) == 0 {
		err = services.Wrap(services.ErrUnsupportedSource, "resolve", "formats", "no downloadable formats", nil)
	}
	m.completeResolution(ctx, e, gen, res, err)
}

func (m *Manager) completeResolution(ctx context.Context, e *entry, gen uint64, res media.Resolution, err error) {
	logger := logging.WithContext(ctx, m.logger)

	e.mu.Lock()
	if e.evicted || e.generation != gen {
		e.mu.Unlock()
		logger.Debug("discarding superseded resolution", logging.String(logging.FieldEventType, "resolution_superseded"))
		return
	}
	e.resolving = false
	e.lastActivity = m.now()
	if err != nil {
		e.state = StateIdle
		e.pendingURL = ""
	} else {
		e.state = StateAwaitingFormatChoice
		e.info = res.Info
		e.options = append([]media.FormatOption(nil), res.Options...)
	}
	e.mu.Unlock()

	if err != nil {
		logger.Info("resolution failed",
			logging.ErrorKind(services.KindOf(err)),
			logging.Error(err),
			logging.String(logging.FieldEventType, "resolution_failed"),
		)
	} else {
		logger.Info("resolution ready",
			logging.String("title", res.Info.DisplayTitle()),
			logging.Int("format_count", len(res.Options)),
			logging.String(logging.FieldEventType, "resolution_ready"),
		)
	}

	if m.listener == nil || m.baseCtx.Err() != nil {
		return
	}
	m.listener.ResolutionFinished(ctx, e.userID, res, err)
}

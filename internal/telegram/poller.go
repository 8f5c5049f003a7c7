package telegram

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fetchbot/internal/logging"
	"fetchbot/internal/orchestrator"
	"fetchbot/internal/services"
)

// EventHandler consumes translated events.
type EventHandler interface {
	HandleIncomingEvent(ctx context.Context, ev orchestrator.Event) error
}

// Poller long-polls getUpdates and feeds the handler in update order.
type Poller struct {
	client  *Client
	handler EventHandler
	timeout time.Duration
	backoff services.RetryPolicy
	logger  *slog.Logger
	offset  int64
}

// NewPoller constructs a poller with the given long-poll timeout.
func NewPoller(client *Client, handler EventHandler, timeout time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Poller{
		client:  client,
		handler: handler,
		timeout: timeout,
		backoff: services.RetryPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Jitter: 0.25},
		logger:  logging.NewComponentLogger(logger, "telegram-poller"),
	}
}

// Run polls until ctx ends.
func (p *Poller) Run(ctx context.Context) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := p.client.GetUpdates(ctx, p.offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			delay := p.backoff.Backoff(failures, err)
			logging.WarnWithContext(p.logger, "poll failed", "telegram_poll_failed",
				logging.Error(err),
				logging.Attempt(failures),
				logging.Duration("retry_in", delay),
				logging.String(logging.FieldImpact, "incoming messages delayed"),
				logging.String(logging.FieldErrorHint, "check network access and telegram.bot_token"),
			)
			if sleepErr := services.SleepWithContext(ctx, delay); sleepErr != nil {
				return nil
			}
			continue
		}
		failures = 0
		for _, u := range updates {
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			p.dispatch(ctx, u)
		}
	}
}

func (p *Poller) dispatch(ctx context.Context, u Update) {
	if u.CallbackQuery != nil {
		if err := p.client.AnswerCallbackQuery(ctx, u.CallbackQuery.ID, ""); err != nil {
			p.logger.Debug("answer callback failed", logging.Error(err))
		}
	}
	ev, ok := Translate(u)
	if !ok {
		return
	}
	err := p.handler.HandleIncomingEvent(ctx, ev)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrCancelled):
	case services.KindOf(err) != services.KindInternal:
		p.logger.Debug("event rejected",
			logging.UserID(ev.User()),
			logging.ErrorKind(services.KindOf(err)),
		)
	default:
		logging.WarnWithContext(p.logger, "event handling failed", "event_failed",
			logging.UserID(ev.User()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "user request dropped"),
			logging.String(logging.FieldErrorHint, "see error detail"),
		)
	}
}

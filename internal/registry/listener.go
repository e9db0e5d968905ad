package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ttrenholm/gatehouse/internal/models"
	"github.com/ttrenholm/gatehouse/internal/notify"
)

// Listener is the long-lived background subscriber run once per process
// instance. Every session event on the broadcast channel triggers a recount
// of live session keys, and the count is fanned out to this process's
// observers through the hub. Counts are eventually consistent: a recount
// racing a publish on another replica may briefly observe a stale value.
type Listener struct {
	store   SessionStore
	hub     *notify.Hub
	channel string
	logger  *slog.Logger

	// backoff bounds for re-subscribing after connection loss
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewListener(store SessionStore, hub *notify.Hub, channel string, logger *slog.Logger) *Listener {
	return &Listener{
		store:      store,
		hub:        hub,
		channel:    channel,
		logger:     logger,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// Run subscribes and consumes session events until ctx is cancelled,
// reconnecting with exponential backoff on subscription loss. A malformed
// message is logged and skipped, never fatal.
func (l *Listener) Run(ctx context.Context) {
	backoff := l.minBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		sub, err := l.store.Subscribe(ctx, l.channel)
		if err != nil {
			l.logger.Warn("session listener subscribe failed, retrying",
				slog.Duration("backoff", backoff),
				slog.Any("error", err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff *= 2; backoff > l.maxBackoff {
				backoff = l.maxBackoff
			}
			continue
		}

		backoff = l.minBackoff
		l.logger.Info("session listener subscribed", slog.String("channel", l.channel))

		// Publish an initial count so observers have a baseline.
		l.recount(ctx)

		l.consume(ctx, sub)
		sub.Close()
	}
}

// consume drains the subscription until it closes or ctx is cancelled.
func (l *Listener) consume(ctx context.Context, sub Subscription) {
	for {
		select {
		case payload, ok := <-sub.Events():
			if !ok {
				l.logger.Warn("session listener subscription closed")
				return
			}
			var event models.SessionEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				l.logger.Warn("session listener: malformed event, skipping",
					slog.Any("error", err))
				continue
			}
			l.logger.Debug("session event received",
				slog.String("session_id", event.SessionID),
				slog.String("action", event.Action))
			l.recount(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// recount enumerates live session keys and broadcasts the count.
func (l *Listener) recount(ctx context.Context) {
	keys, err := l.store.KeysByPrefix(ctx, SessionKeyPrefix)
	if err != nil {
		l.logger.Warn("session listener recount failed", slog.Any("error", err))
		return
	}
	l.hub.Broadcast(notify.CountUpdate{ActiveSessions: len(keys)})
}

package offline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// Background sync tags for queued form submissions.
const (
	SyncBookings = "sync-bookings"
	SyncContact  = "sync-contact"
)

// Push notification defaults.
const (
	DefaultNotificationTitle = "Kodeen Hunter Portfolio"
	DefaultNotificationBody  = "New notification"
	DefaultNotificationIcon  = "/favicon.svg"
)

// SyncHandler replays a queue of deferred submissions.
type SyncHandler func(ctx context.Context) error

// Notification is a notification to display.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	Badge string `json:"badge"`
}

// Notifier displays notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	l.Logger.Info().
		Str("title", n.Title).
		Str("body", n.Body).
		Msg("Notification")
	return nil
}

// RegisterSync installs the handler for a sync tag, replacing the no-op
// default. Only SyncBookings and SyncContact are dispatched.
func (c *Controller) RegisterSync(tag string, handler SyncHandler) error {
	if tag != SyncBookings && tag != SyncContact {
		return fmt.Errorf("unknown sync tag %q", tag)
	}

	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.syncHandlers[tag] = handler
	return nil
}

// Sync handles a background sync event. Unknown tags are ignored. Handler
// failures and panics are logged and returned, never propagated as a crash.
func (c *Controller) Sync(ctx context.Context, tag string) (err error) {
	if tag != SyncBookings && tag != SyncContact {
		c.logger.Debug().Str("tag", tag).Msg("Ignoring unknown sync tag")
		return nil
	}

	c.hooksMu.RLock()
	handler := c.syncHandlers[tag]
	c.hooksMu.RUnlock()

	if handler == nil {
		offlineHookEventsTotal.WithLabelValues("sync", "noop").Inc()
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync %s panicked: %v", tag, r)
		}
		if err != nil {
			offlineHookEventsTotal.WithLabelValues("sync", "failure").Inc()
			c.logger.Error().Err(err).Str("tag", tag).Msg("Background sync failed")
			return
		}
		offlineHookEventsTotal.WithLabelValues("sync", "success").Inc()
	}()

	return handler(ctx)
}

// Push handles a push event. payload is optional JSON {title?, body?};
// missing or malformed fields fall back to the defaults.
func (c *Controller) Push(ctx context.Context, payload []byte) (err error) {
	n := Notification{
		Title: DefaultNotificationTitle,
		Body:  DefaultNotificationBody,
		Icon:  DefaultNotificationIcon,
		Badge: DefaultNotificationIcon,
	}

	if len(payload) > 0 {
		var data struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		}
		if jsonErr := json.Unmarshal(payload, &data); jsonErr != nil {
			c.logger.Warn().Err(jsonErr).Msg("Malformed push payload, using defaults")
		} else {
			if data.Title != "" {
				n.Title = data.Title
			}
			if data.Body != "" {
				n.Body = data.Body
			}
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("push notifier panicked: %v", r)
		}
		if err != nil {
			offlineHookEventsTotal.WithLabelValues("push", "failure").Inc()
			c.logger.Error().Err(err).Msg("Push notification failed")
			return
		}
		offlineHookEventsTotal.WithLabelValues("push", "success").Inc()
	}()

	return c.notifier.Notify(ctx, n)
}

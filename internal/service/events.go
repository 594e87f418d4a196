package service

import (
	"context"

	"newsfeed/internal/middleware"
	"newsfeed/internal/notifications"
)

// broadcast publishes on a best-effort basis: a Redis failure is logged and never
// changes the outcome of the operation that produced the event.
func broadcast(ctx context.Context, n *notifications.Notifier, ev notifications.Event) {
	if err := n.PublishBroadcast(ctx, ev); err != nil {
		middleware.Logger.WarnContext(ctx, "publish event failed", "event", ev.Type, "error", err)
	}
}

func notifyUser(ctx context.Context, n *notifications.Notifier, userID uint, ev notifications.Event) {
	if err := n.PublishUser(ctx, userID, ev); err != nil {
		middleware.Logger.WarnContext(ctx, "publish event failed", "event", ev.Type, "user_id", userID, "error", err)
	}
}

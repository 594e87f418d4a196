// Package notifications publishes newsfeed events into Redis channels.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"newsfeed/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// Event types.
const (
	EventPostCreated    = "post_created"
	EventPostDeleted    = "post_deleted"
	EventCommentCreated = "comment_created"
	EventCommentDeleted = "comment_deleted"
	EventLikeToggled    = "like_toggled"
)

const (
	channelPrefix     = "notifications:"
	userChannelPrefix = channelPrefix + "user:"
	broadcastChannel  = channelPrefix + "broadcast"
)

// Event is the envelope of every published message.
type Event struct {
	Type    string         `json:"type"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Delivery is one event as seen by a subscriber. UserID is zero for
// broadcasts.
type Delivery struct {
	Channel string
	UserID  uint
	Event   Event
	Raw     string
}

// Notifier publishes and subscribes through Redis pub/sub. A nil client
// turns every call into a no-op.
type Notifier struct {
	rdb *redis.Client
	now func() time.Time
}

func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb, now: time.Now}
}

// PublishUser sends ev to one user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, ev Event) error {
	return n.publish(ctx, UserChannel(userID), ev)
}

// PublishBroadcast sends ev to every subscriber.
func (n *Notifier) PublishBroadcast(ctx context.Context, ev Event) error {
	return n.publish(ctx, broadcastChannel, ev)
}

func (n *Notifier) publish(ctx context.Context, channel string, ev Event) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	if ev.At.IsZero() {
		ev.At = n.now().UTC()
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	if err := n.rdb.Publish(ctx, channel, msg).Err(); err != nil {
		return fmt.Errorf("publish %s on %s: %w", ev.Type, channel, err)
	}
	return nil
}

// Subscribe listens on the broadcast channel and every user channel and
// hands each decoded event to fn until ctx is done. It returns once the
// subscription is confirmed. Undecodable payloads are logged and dropped; a
// panicking fn does not stop the subscription.
func (n *Notifier) Subscribe(ctx context.Context, fn func(Delivery)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPrefix+"*", broadcastChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	go func() {
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				d, err := decode(msg.Channel, msg.Payload)
				if err != nil {
					middleware.Logger.Warn("dropping notification", slog.String("channel", msg.Channel), slog.String("error", err.Error()))
					continue
				}
				deliver(fn, d)
			}
		}
	}()
	return nil
}

func deliver(fn func(Delivery), d Delivery) {
	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.Error("panic in notification subscriber",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	fn(d)
}

func decode(channel, payload string) (Delivery, error) {
	d := Delivery{Channel: channel, Raw: payload}
	if err := json.Unmarshal([]byte(payload), &d.Event); err != nil {
		return d, fmt.Errorf("decode event: %w", err)
	}
	if id, ok := strings.CutPrefix(channel, userChannelPrefix); ok {
		v, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return d, fmt.Errorf("bad user channel %q", channel)
		}
		d.UserID = uint(v)
	}
	return d, nil
}

// UserChannel is the channel carrying one user's events.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}

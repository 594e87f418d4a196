package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	ctx := context.Background()
	assert.NoError(t, n.PublishUser(ctx, 1, Event{Type: EventLikeToggled}))
	assert.NoError(t, n.PublishBroadcast(ctx, Event{Type: EventLikeToggled}))
	assert.NoError(t, n.Subscribe(ctx, func(Delivery) {}))
}

func TestUserChannel(t *testing.T) {
	assert.Equal(t, "notifications:user:1", UserChannel(1))
	assert.Equal(t, "notifications:user:100", UserChannel(100))
}

func TestDecode(t *testing.T) {
	d, err := decode("notifications:user:7", `{"type":"like_toggled","payload":{"liked":true}}`)
	require.NoError(t, err)
	assert.Equal(t, uint(7), d.UserID)
	assert.Equal(t, EventLikeToggled, d.Event.Type)

	d, err = decode(broadcastChannel, `{"type":"post_created"}`)
	require.NoError(t, err)
	assert.Zero(t, d.UserID)

	_, err = decode(broadcastChannel, `not json`)
	assert.ErrorContains(t, err, "decode event")

	_, err = decode("notifications:user:abc", `{"type":"x"}`)
	assert.ErrorContains(t, err, "bad user channel")
}

func TestNotifier_SubscriberReceivesUserAndBroadcast(t *testing.T) {
	mr, rdb := newRedis(t)
	n := NewNotifier(rdb)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Delivery, 4)
	require.NoError(t, n.Subscribe(ctx, func(d Delivery) { got <- d }))

	require.NoError(t, n.PublishUser(ctx, 7, Event{Type: EventLikeToggled, Payload: map[string]any{"liked": true}}))
	// Garbage on a watched channel is skipped.
	mr.Publish(broadcastChannel, "{")
	require.NoError(t, n.PublishBroadcast(ctx, Event{Type: EventPostCreated}))

	var msgs []Delivery
	for len(msgs) < 2 {
		select {
		case d := <-got:
			msgs = append(msgs, d)
		case <-time.After(time.Second):
			t.Fatalf("received %d of 2 events", len(msgs))
		}
	}

	assert.Equal(t, uint(7), msgs[0].UserID)
	assert.Equal(t, EventLikeToggled, msgs[0].Event.Type)
	assert.Equal(t, true, msgs[0].Event.Payload["liked"])
	assert.True(t, fixed.Equal(msgs[0].Event.At))
	assert.Equal(t, broadcastChannel, msgs[1].Channel)
	assert.Equal(t, EventPostCreated, msgs[1].Event.Type)
}

func TestNotifier_SubscriberSurvivesPanickingHandler(t *testing.T) {
	_, rdb := newRedis(t)
	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 2)
	require.NoError(t, n.Subscribe(ctx, func(Delivery) {
		calls <- struct{}{}
		panic("boom")
	}))

	require.NoError(t, n.PublishBroadcast(ctx, Event{Type: EventPostDeleted}))
	require.NoError(t, n.PublishBroadcast(ctx, Event{Type: EventPostDeleted}))

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatal("subscriber stopped after panic")
		}
	}
}

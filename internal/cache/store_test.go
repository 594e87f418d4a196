package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedPost struct {
	ID      uint   `json:"id"`
	Content string `json:"content"`
}

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb), mr
}

func TestStore_AsideFetchesOnceThenHits(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *cachedPost) func() error {
		return func() error {
			calls++
			*dest = cachedPost{ID: 1, Content: "hello"}
			return nil
		}
	}

	var first cachedPost
	require.NoError(t, store.Aside(ctx, PostKey(1), &first, PostTTL, fetch(&first)))
	var second cachedPost
	require.NoError(t, store.Aside(ctx, PostKey(1), &second, PostTTL, fetch(&second)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, "hello", second.Content)
	assert.True(t, mr.Exists("post:1"))

	mr.FastForward(PostTTL + time.Second)
	assert.False(t, mr.Exists("post:1"))
}

func TestStore_AsidePropagatesFetchError(t *testing.T) {
	store, mr := setupStore(t)

	var dest cachedPost
	err := store.Aside(context.Background(), PostKey(2), &dest, PostTTL, func() error {
		return errors.New("db down")
	})
	require.EqualError(t, err, "db down")
	assert.False(t, mr.Exists("post:2"))
}

func TestStore_InvalidatePost(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetJSON(ctx, PostKey(3), cachedPost{ID: 3}, PostTTL))
	store.InvalidatePost(ctx, 3)
	assert.False(t, mr.Exists("post:3"))
}

func TestStore_NilClientIsNoop(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	found, err := store.GetJSON(ctx, "k", &cachedPost{})
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, store.SetJSON(ctx, "k", cachedPost{}, time.Minute))
	store.Invalidate(ctx, "k")

	var dest cachedPost
	err = store.Aside(ctx, "k", &dest, time.Minute, func() error {
		dest.ID = 9
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, uint(9), dest.ID)
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), "redis://%zz")
	assert.Error(t, err)
}

func TestNewClient_Miniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), mr.Addr())
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Set(context.Background(), "a", "b", 0).Err())

	// A miss goes through the hook without counting as an error.
	assert.ErrorIs(t, client.Get(context.Background(), "missing").Err(), redis.Nil)
}

func TestNewClient_UnreachableStillReturnsClient(t *testing.T) {
	client, err := NewClient(context.Background(), "127.0.0.1:1")
	require.Error(t, err)
	require.NotNil(t, client)
	_ = client.Close()
}

func TestOptions(t *testing.T) {
	opts, err := Options("localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, dialTimeout, opts.DialTimeout)

	opts, err = Options("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	_, err = Options("  ")
	assert.Error(t, err)
}

// Package cache holds the Redis client and the key layout shared by the
// post cache, token blacklist, usage leaderboard and like events.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"newsfeed/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout = 3 * time.Second
	pingTimeout = 5 * time.Second
)

// instrumentation records latency, errors and a client span for every command.
// A cache miss (redis.Nil) is not an error.
type instrumentation struct{}

func (instrumentation) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (instrumentation) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		return observe(ctx, cmd.Name(), func(ctx context.Context) error { return next(ctx, cmd) })
	}
}

func (instrumentation) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		return observe(ctx, "pipeline", func(ctx context.Context) error { return next(ctx, cmds) })
	}
}

func observe(ctx context.Context, name string, run func(context.Context) error) error {
	ctx, span := observability.StartRedis(ctx, name)
	defer span.End()

	start := time.Now()
	err := run(ctx)
	observability.RedisCommandLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, redis.Nil) {
		observability.RedisErrors.WithLabelValues(name).Inc()
		observability.Fail(span, err)
	}
	return err
}

// Options turns REDIS_URL into client options. Both host:port and
// redis:// or rediss:// URLs are accepted.
func Options(addr string) (*redis.Options, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis address is empty")
	}
	if !strings.Contains(addr, "://") {
		return &redis.Options{Addr: addr, DialTimeout: dialTimeout}, nil
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL %q: %w", addr, err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = dialTimeout
	}
	return opts, nil
}

// NewClient builds an instrumented client and pings it. The client is
// returned even when the ping fails so callers can decide to run degraded.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := Options(addr)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	client.AddHook(instrumentation{})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return client, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

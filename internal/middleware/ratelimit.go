package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"newsfeed/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what happens to a request when the counter store is down.
type FailPolicy int

const (
	FailOpen FailPolicy = iota
	// FailClosed answers 503 instead of letting the request through.
	FailClosed
)

// fixedWindow increments the counter and starts its window on the first hit.
// It returns the new count and the milliseconds left in the window.
var fixedWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// Window is the outcome of one counted request.
type Window struct {
	Count     int64
	Remaining int
	ResetIn   time.Duration
	Allowed   bool
}

// RateLimiter counts requests per caller in fixed Redis windows.
type RateLimiter struct {
	rdb    *redis.Client
	name   string
	limit  int
	window time.Duration
	policy FailPolicy
}

// NewRateLimiter allows limit requests per window for each caller of the
// routes it guards. A limit of zero or less disables it.
func NewRateLimiter(rdb *redis.Client, name string, limit int, window time.Duration, policy FailPolicy) *RateLimiter {
	return &RateLimiter{rdb: rdb, name: name, limit: limit, window: window, policy: policy}
}

func (l *RateLimiter) key(caller string) string {
	return "rl:" + l.name + ":" + caller
}

// Take counts one request for caller.
func (l *RateLimiter) Take(ctx context.Context, caller string) (Window, error) {
	if l.rdb == nil {
		return Window{}, errors.New("rate limiter has no redis client")
	}
	res, err := fixedWindow.Run(ctx, l.rdb, []string{l.key(caller)}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("rate limit %s: %w", l.name, err)
	}
	if len(res) != 2 {
		return Window{}, fmt.Errorf("rate limit %s: unexpected reply %v", l.name, res)
	}

	w := Window{Count: res[0], ResetIn: time.Duration(res[1]) * time.Millisecond}
	w.Allowed = w.Count <= int64(l.limit)
	w.Remaining = max(l.limit-int(w.Count), 0)
	return w, nil
}

// Handler enforces the limit, keyed by principal when authenticated and by
// client IP otherwise.
func (l *RateLimiter) Handler() fiber.Handler {
	if l.limit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return func(c *fiber.Ctx) error {
		caller := "ip:" + c.IP()
		if p := PrincipalFrom(c); p != nil {
			caller = "user:" + strconv.FormatUint(uint64(p.UserID), 10)
		}

		w, err := l.Take(c.UserContext(), caller)
		if err != nil {
			if l.policy == FailOpen {
				return c.Next()
			}
			Logger.WarnContext(c.UserContext(), "rate limiter unavailable", "limiter", l.name, "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
				Error: "rate limit unavailable",
				Code:  models.CodeUnavailable,
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(w.Remaining))
		if !w.Allowed {
			retry := int((w.ResetIn + time.Second - 1) / time.Second)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(max(retry, 1)))
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "rate limit exceeded",
				Code:  models.CodeRateLimited,
			})
		}
		return c.Next()
	}
}

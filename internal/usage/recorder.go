// Package usage attributes handler wall time to the authenticated user.
package usage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newsfeed/internal/featureflags"
	"newsfeed/internal/middleware"
	"newsfeed/internal/models"
	"newsfeed/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// Handler groups whose time is recorded.
const (
	GroupNewsfeed = "newsfeed"
	GroupComment  = "comment"
	GroupLike     = "like"
	GroupUser     = "user"
)

// Sink persists elapsed time and returns the user's new total in milliseconds.
type Sink interface {
	Record(ctx context.Context, userID uint, elapsedMs int64) (int64, error)
}

// Recorder measures handler invocations and adds their duration to the caller's
// usage record. Recording never changes what the handler returns.
type Recorder struct {
	sink    Sink
	flags   *featureflags.Manager
	enabled bool
	now     func() time.Time
	logger  func() *slog.Logger
}

type Option func(*Recorder)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithFlags gates recording per user on the usage_tracking flag, when defined.
func WithFlags(flags *featureflags.Manager) Option {
	return func(r *Recorder) { r.flags = flags }
}

// WithEnabled turns the recorder into a pass-through when false.
func WithEnabled(enabled bool) Option {
	return func(r *Recorder) { r.enabled = enabled }
}

// WithLogger overrides the process logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = func() *slog.Logger { return l }
		}
	}
}

func NewRecorder(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{
		sink:    sink,
		enabled: true,
		now:     time.Now,
		logger:  func() *slog.Logger { return middleware.Logger },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Wrap returns next with its time recorded under group.
func (r *Recorder) Wrap(group string, next fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return r.Observe(c.UserContext(), group,
			func() any { return c.Locals(models.PrincipalLocalsKey) },
			func() error { return next(c) },
		)
	}
}

// Observe runs call and records its duration for the principal, which is resolved
// after call returns so that authentication inside call is taken into account.
// The result of call, and any panic it raises, pass through unchanged.
func (r *Recorder) Observe(ctx context.Context, group string, principal func() any, call func() error) error {
	if r == nil || !r.enabled || r.sink == nil {
		return call()
	}

	start := r.now()
	defer func() {
		r.record(ctx, group, principal, r.now().Sub(start))
	}()
	return call()
}

// record never panics. A panic here would surface after the handler already
// produced its response.
func (r *Recorder) record(ctx context.Context, group string, principal func() any, elapsed time.Duration) {
	defer func() {
		if v := recover(); v != nil {
			observability.UsageRecordings.WithLabelValues(group, "failed").Inc()
			r.logger().WarnContext(ctx, "[API Use Time] recording panicked",
				"group", group, "panic", fmt.Sprint(v))
		}
	}()

	p, ok := principal().(*models.Principal)
	if !ok || p == nil {
		observability.UsageRecordings.WithLabelValues(group, "skipped").Inc()
		return
	}
	if !r.flags.Allows(featureflags.UsageTracking, p.UserID) {
		observability.UsageRecordings.WithLabelValues(group, "skipped").Inc()
		return
	}

	elapsedMs := elapsed.Milliseconds()
	if elapsedMs < 0 {
		elapsedMs = 0
	}

	// The request may already be cancelled; the write still belongs to it.
	total, err := r.sink.Record(context.WithoutCancel(ctx), p.UserID, elapsedMs)
	if err != nil {
		observability.UsageRecordings.WithLabelValues(group, "failed").Inc()
		r.logger().WarnContext(ctx, "[API Use Time] failed to record",
			"username", p.Username, "group", group, "elapsed_ms", elapsedMs, "error", err)
		return
	}

	observability.UsageRecordings.WithLabelValues(group, "recorded").Inc()
	observability.RecordedHandlerDuration.WithLabelValues(group).Observe(elapsed.Seconds())
	r.logger().InfoContext(ctx, "[API Use Time]",
		"username", p.Username, "group", group, "elapsed_ms", elapsedMs, "total_ms", total)
}

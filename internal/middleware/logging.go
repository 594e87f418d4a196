package middleware

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"newsfeed/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Logger is the process logger. It is replaced by SetupLogger once
// configuration is loaded.
var Logger = NewLogger(os.Stdout, os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))

// SetupLogger replaces the process logger and the slog default.
func SetupLogger(env, level string) {
	Logger = NewLogger(os.Stdout, env, level)
	slog.SetDefault(Logger)
}

// NewLogger builds the request-aware logger: JSON in production, text otherwise.
func NewLogger(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if env == "production" || env == "prod" {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(requestHandler{h})
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

type logFieldsKey struct{}

// logFields is what the logger knows about the request a context belongs to.
type logFields struct {
	requestID string
	traceID   string
	userID    uint
	username  string
}

func fieldsFrom(ctx context.Context) logFields {
	f, _ := ctx.Value(logFieldsKey{}).(logFields)
	return f
}

// WithRequest tags ctx with the request and trace ids.
func WithRequest(ctx context.Context, requestID, traceID string) context.Context {
	f := fieldsFrom(ctx)
	f.requestID, f.traceID = requestID, traceID
	return context.WithValue(ctx, logFieldsKey{}, f)
}

// WithPrincipal tags ctx with the authenticated user.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	f := fieldsFrom(ctx)
	f.userID, f.username = p.UserID, p.Username
	return context.WithValue(ctx, logFieldsKey{}, f)
}

// requestHandler appends the request fields carried by the record's context.
// An explicit username attribute on the record wins over the context one.
type requestHandler struct {
	slog.Handler
}

func (h requestHandler) Handle(ctx context.Context, r slog.Record) error {
	f := fieldsFrom(ctx)
	if f.requestID != "" {
		r.AddAttrs(slog.String("request_id", f.requestID))
	}
	if f.traceID != "" {
		r.AddAttrs(slog.String("trace_id", f.traceID))
	}
	if f.userID != 0 {
		r.AddAttrs(slog.Any("user_id", f.userID))
	}
	if f.username != "" && !recordHas(r, "username") {
		r.AddAttrs(slog.String("username", f.username))
	}
	return h.Handler.Handle(ctx, r)
}

func (h requestHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return requestHandler{h.Handler.WithAttrs(attrs)}
}

func (h requestHandler) WithGroup(name string) slog.Handler {
	return requestHandler{h.Handler.WithGroup(name)}
}

func recordHas(r slog.Record, key string) bool {
	found := false
	r.Attrs(func(a slog.Attr) bool {
		found = a.Key == key
		return !found
	})
	return found
}

// RequestContext copies the request id and trace id from fiber locals into
// the user context so service code logs them.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid, _ := c.Locals("requestid").(string)
		tid, _ := c.Locals(TraceIDLocalsKey).(string)
		ctx := WithRequest(c.UserContext(), rid, tid)
		if p := PrincipalFrom(c); p != nil {
			ctx = WithPrincipal(ctx, p)
		}
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// AccessLog writes one line per request. Server errors log at error level,
// client errors at warn. Health probes are skipped.
func AccessLog() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if strings.HasPrefix(c.Path(), "/health") {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("route", c.Route().Path),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
		}
		level := slog.LevelInfo
		switch {
		case err != nil || status >= fiber.StatusInternalServerError:
			level = slog.LevelError
		case status >= fiber.StatusBadRequest:
			level = slog.LevelWarn
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		Logger.LogAttrs(c.UserContext(), level, "request", attrs...)
		return err
	}
}

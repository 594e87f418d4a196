package middleware

import (
	"net/http"

	"newsfeed/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

// TraceIDLocalsKey holds the hex trace id of the request span.
const TraceIDLocalsKey = "traceID"

// TraceHeader echoes the trace id so clients can quote it in bug reports.
const TraceHeader = "X-Trace-ID"

// TracingMiddleware opens a server span per request, continuing any W3C trace
// context the caller sent. The span is renamed to the matched route once the
// handler has run so that /api/newsfeeds/7 and /api/newsfeeds/8 share a name.
func TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		carrier := propagation.HeaderCarrier(http.Header(c.GetReqHeaders()))
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), carrier)

		ctx, span := observability.StartServer(ctx, c.Method(),
			attribute.String("http.request.method", c.Method()),
			attribute.String("url.path", c.Path()),
			attribute.String("client.address", c.IP()),
		)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		c.Locals(TraceIDLocalsKey, traceID)
		c.Set(TraceHeader, traceID)
		if rid, ok := c.Locals("requestid").(string); ok {
			span.SetAttributes(attribute.String("request.id", rid))
		}
		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		span.SetName(c.Method() + " " + c.Route().Path)
		span.SetAttributes(
			attribute.String("http.route", c.Route().Path),
			attribute.Int("http.response.status_code", status),
		)
		if p := PrincipalFrom(c); p != nil {
			span.SetAttributes(attribute.Int64("enduser.id", int64(p.UserID)))
		}
		if err != nil {
			observability.Fail(span, err)
		} else if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		return err
	}
}

package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// HeaderCorrelationID carries the id across the API and its relays.
	HeaderCorrelationID = "X-Correlation-ID"
	localCorrelationID  = "correlation_id"
	maxCorrelationIDLen = 128
)

type correlationCtxKey struct{}

// CorrelationID reuses the caller's id when it looks sane and mints one
// otherwise. Websocket clients cannot set headers, so the upgrade request
// may pass it as the correlation_id query parameter.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := firstValidCorrelationID(
			c.Get(HeaderCorrelationID),
			c.Get(fiber.HeaderXRequestID),
			c.Query(localCorrelationID),
		)
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(localCorrelationID, id)
		c.Set(HeaderCorrelationID, id)
		c.SetUserContext(ContextWithCorrelation(c.UserContext(), id))

		return c.Next()
	}
}

func firstValidCorrelationID(candidates ...string) string {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" || len(candidate) > maxCorrelationIDLen {
			continue
		}
		if strings.IndexFunc(candidate, func(r rune) bool { return r < 0x21 || r > 0x7e }) >= 0 {
			continue
		}
		return candidate
	}
	return ""
}

// CorrelationIDFromContext returns the id stored by ContextWithCorrelation.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationCtxKey{}).(string)
	return id
}

// GetCorrelationID returns the id bound to the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(localCorrelationID).(string); ok && id != "" {
		return id
	}
	return CorrelationIDFromContext(c.UserContext())
}

// ContextWithCorrelation attaches id to ctx. Blank ids leave ctx unchanged.
func ContextWithCorrelation(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationCtxKey{}, id)
}

package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tripmate-api/internal/observability"
)

// Observability records request metrics and writes one log line per API call.
// Long-lived streams are skipped since their duration is the session length.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// Let the app error handler set the status before it is recorded.
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
			err = nil
		}
		elapsed := time.Since(start)

		if !strings.HasPrefix(c.Path(), "/api") || isLongLived(c) {
			return err
		}

		route := c.Route().Path
		method := c.Method()
		status := c.Response().StatusCode()
		code := strconv.Itoa(status)

		observability.APIRequests().WithLabelValues(method, route, code).Inc()
		observability.APILatency().WithLabelValues(method, route).Observe(elapsed.Seconds())

		var event *zerolog.Event
		switch {
		case status >= fiber.StatusInternalServerError:
			observability.APIErrors().WithLabelValues(method, route, code).Inc()
			event = logger.Error()
		case status >= fiber.StatusBadRequest:
			observability.APIErrors().WithLabelValues(method, route, code).Inc()
			event = logger.Warn()
		default:
			event = logger.Debug()
		}

		event.
			Str("correlation_id", GetCorrelationID(c)).
			Str("method", method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Str("user_id", localString(c, LocalUserID)).
			Msg("request")

		return err
	}
}

func isLongLived(c *fiber.Ctx) bool {
	if strings.EqualFold(c.Get(fiber.HeaderUpgrade), "websocket") {
		return true
	}
	return strings.HasSuffix(c.Path(), "/stream") || strings.Contains(c.Path(), "/ws/")
}

func localString(c *fiber.Ctx, key string) string {
	value, _ := c.Locals(key).(string)
	return value
}

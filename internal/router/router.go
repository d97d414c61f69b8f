package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/tripmate-api/internal/config"
	"github.com/noah-isme/tripmate-api/internal/handler"
	"github.com/noah-isme/tripmate-api/internal/middleware"
	"github.com/noah-isme/tripmate-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	TripHandler         *handler.TripHandler
	ChatHandler         *handler.ChatHandler
	UploadHandler       *handler.UploadHandler
	NotificationHandler *handler.NotificationHandler
	PushHandler         *handler.PushHandler
	JWTMiddleware       fiber.Handler
	HealthProbes        []handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	authenticated := []fiber.Handler{jwtMiddleware, middleware.RequireUser(middleware.AuthOptions{})}

	// Push ingestion comes from the relay, not from a signed-in user.
	if deps.PushHandler != nil {
		deps.PushHandler.Register(api.Group("/push", middleware.RateLimit("push", 30, time.Second)))
	}

	if deps.TripHandler != nil {
		deps.TripHandler.Register(api.Group("/trips", authenticated...))
	}

	if deps.ChatHandler != nil {
		chat := api.Group("/chat", authenticated...)
		if deps.UploadHandler != nil {
			deps.UploadHandler.Register(chat.Group("/uploads", middleware.RateLimit("chat_upload", 5, time.Minute)))
		}
		deps.ChatHandler.Register(chat)
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(api.Group("/notifications", authenticated...))
	}

	app.Use(middleware.NotFound)
}

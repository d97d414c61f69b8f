package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/tripmate-api/internal/utils"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	// RequireEmail rejects tokens without an email claim.
	RequireEmail bool
}

// WithAuth wraps a handler so it only runs for an authenticated user.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals(LocalUserID).(string)
		if strings.TrimSpace(userID) == "" {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		if opts.RequireEmail {
			email, _ := c.Locals(LocalUserEmail).(string)
			if strings.TrimSpace(email) == "" {
				return utils.Fail(c, fiber.StatusForbidden, "email claim required", nil)
			}
		}

		return handler(c)
	}
}

// RequireUser is WithAuth as group middleware.
func RequireUser(opts AuthOptions) fiber.Handler {
	return WithAuth(func(c *fiber.Ctx) error { return c.Next() }, opts)
}

package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/renavest/renavest-next-sub002/internal/pkg/usercontext"
)

// Identity headers set by the upstream auth gateway. The service trusts
// them because the gateway strips client-supplied copies before proxying.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// UserContextMiddleware resolves the authenticated principal from the
// gateway identity headers and stores it in Locals for controllers.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := usercontext.UserContext{}

		rawID := strings.TrimSpace(c.Get(HeaderUserID))
		if id, err := strconv.ParseUint(rawID, 10, 32); err == nil && id > 0 {
			ctx.UserID = uint(id)
			ctx.Role = strings.TrimSpace(c.Get(HeaderUserRole))
			ctx.IsLoggedIn = true
		}

		c.Locals(usercontext.ContextKey, ctx)
		return c.Next()
	}
}

// RequireAuth rejects requests with no resolved principal.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !usercontext.IsLoggedIn(c) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Missing or invalid authentication",
			})
		}
		return c.Next()
	}
}

// RequireAdmin rejects requests whose principal is not an admin.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !usercontext.IsLoggedIn(c) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Missing or invalid authentication",
			})
		}
		if !usercontext.IsAdmin(c) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "forbidden",
				"message": "Admin role required",
			})
		}
		return c.Next()
	}
}

// RequireTherapist rejects requests whose principal is not a therapist.
func RequireTherapist() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !usercontext.IsLoggedIn(c) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Missing or invalid authentication",
			})
		}
		if !usercontext.IsTherapist(c) && !usercontext.IsAdmin(c) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "forbidden",
				"message": "Therapist role required",
			})
		}
		return c.Next()
	}
}

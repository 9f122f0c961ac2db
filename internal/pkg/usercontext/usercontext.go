package usercontext

import (
	"github.com/gofiber/fiber/v2"

	"github.com/renavest/renavest-next-sub002/app/models"
)

// ContextKey is the Locals key the middleware stores the context under.
const ContextKey = "USER_CONTEXT"

// UserContext represents the authenticated principal for a request
type UserContext struct {
	UserID     uint   `json:"user_id"`
	Role       string `json:"role"`
	IsLoggedIn bool   `json:"is_logged_in"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx := c.Locals(ContextKey); ctx != nil {
		return ctx.(UserContext)
	}
	return UserContext{IsLoggedIn: false}
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsTherapist checks if the current user holds the therapist role
func IsTherapist(c *fiber.Ctx) bool {
	return GetUserContext(c).Role == models.ROLE_THERAPIST
}

// IsAdmin checks if the current user holds the admin role
func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).Role == models.ROLE_ADMIN
}

// GetUserID returns the current user's ID, or 0 if not logged in
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}

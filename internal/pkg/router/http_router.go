package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/renavest/renavest-next-sub002/app/controllers"
	"github.com/renavest/renavest-next-sub002/internal/pkg/middleware"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware())

	// The webhook route is registered before the rate-limited /api group:
	// deliveries are authenticated by signature, and throttling them only
	// delays settlement.
	app.Post("/api/v1/webhooks/stripe", controllers.HandleStripeWebhook)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

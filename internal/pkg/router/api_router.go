package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/renavest/renavest-next-sub002/app/controllers"
	"github.com/renavest/renavest-next-sub002/internal/pkg/cache"
	"github.com/renavest/renavest-next-sub002/internal/pkg/env"
	"github.com/renavest/renavest-next-sub002/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	sessions := v1.Group("/sessions", middleware.RequireAuth())
	sessions.Post("/", controllers.HandleCreateSession)
	sessions.Get("/", controllers.HandleListMySessions)
	sessions.Get("/upcoming", middleware.RequireTherapist(), controllers.HandleListUpcomingSessions)
	sessions.Get("/:id", controllers.HandleGetSession)
	sessions.Post("/:id/cancel", controllers.HandleCancelSession)
	sessions.Post("/:id/complete", middleware.RequireTherapist(), controllers.HandleCompleteSession)

	v1.Get("/therapists", middleware.RequireAuth(), controllers.HandleListTherapists)
	v1.Post("/therapists/me/rate", middleware.RequireTherapist(), controllers.HandleSetMyRate)
	v1.Get("/payouts", middleware.RequireTherapist(), controllers.HandleListMyPayouts)

	admin := v1.Group("/admin", middleware.RequireAdmin())
	admin.Get("/settlement/counters", controllers.HandleGetSettlementCounters)
	admin.Post("/users", controllers.HandleCreateUser)
	admin.Get("/users", controllers.HandleListUsers)
	admin.Get("/users/:id/subsidy", controllers.HandleGetUserSubsidy)
	admin.Post("/pools", controllers.HandleCreatePool)
	admin.Get("/pools", controllers.HandleListPools)
	admin.Post("/pools/:id/deactivate", controllers.HandleDeactivatePool)
	admin.Post("/grants", controllers.HandleCreateGrant)
}

// newLimiterStorage backs the rate limiter with Redis so limits hold across
// instances. Connection details come from the existing cache client, using
// database 1 (cache uses DB 0).
func newLimiterStorage() *redis.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient := cache.GetClient(); cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

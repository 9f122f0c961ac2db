package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/renavest/renavest-next-sub002/internal/pkg/cache"
	"github.com/renavest/renavest-next-sub002/internal/pkg/database"
	"github.com/renavest/renavest-next-sub002/internal/pkg/env"
	"github.com/renavest/renavest-next-sub002/internal/pkg/gateway"
	"github.com/renavest/renavest-next-sub002/internal/pkg/router"
	"github.com/renavest/renavest-next-sub002/internal/pkg/settlement"
)

func main() {
	app, scheduler := NewApplication()

	scheduler.Start()
	defer scheduler.Stop()

	// graceful shutdown on SIGINT/SIGTERM
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		scheduler.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *settlement.Scheduler) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	gateway.Setup()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:     "renavest",
		BodyLimit:   1 * 1024 * 1024,
		ReadTimeout: 30 * time.Second,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	if _, err := os.Stat("public/docs/v1/openapi.yml"); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: "public/docs/v1/openapi.yml",
			Path:     "v1",
		}))
	}

	// ROUTER
	router.InstallRouter(app)

	// auto-completion sweeper
	processor := settlement.NewProcessorFromDB(database.GetDB())
	scheduler := settlement.NewScheduler(processor, settlement.ConfigFromEnv().SweepInterval)

	return app, scheduler
}

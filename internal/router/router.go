package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/medlink-health/medlink-api/internal/config"
	"github.com/medlink-health/medlink-api/internal/handler"
	"github.com/medlink-health/medlink-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChatHandler         *handler.ChatHandler
	NotificationHandler *handler.NotificationHandler
	AuthMiddleware      fiber.Handler
	DB                  *gorm.DB
	Redis               *redis.Client
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.DB, deps.Redis))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided auth middleware, or a no-op if nil
	authMiddleware := deps.AuthMiddleware
	if authMiddleware == nil {
		authMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	protected := api.Group("/", authMiddleware)

	if deps.ChatHandler != nil {
		deps.ChatHandler.Register(protected)
	}

	if deps.NotificationHandler != nil {
		notificationGroup := protected.Group("/notifications")
		deps.NotificationHandler.Register(notificationGroup)
	}
}

package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/medlink-health/medlink-api/internal/config"
	"github.com/medlink-health/medlink-api/internal/utils"
)

// HealthResponse reports service identity plus the reachability of the
// backing stores. The endpoint always answers 200; degraded dependencies
// show up in the per-dependency map so probes can alert without flapping
// the whole service.
type HealthResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Service      string            `json:"service"`
	Environment  string            `json:"environment"`
	Dependencies map[string]string `json:"dependencies"`
}

// HealthCheck returns a handler probing the database and Redis.
func HealthCheck(cfg config.Config, db *gorm.DB, redisClient *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deps := map[string]string{}
		status := "ok"

		if db != nil {
			deps["database"] = "ok"
			if sqlDB, err := db.DB(); err != nil {
				deps["database"] = err.Error()
				status = "degraded"
			} else if err := sqlDB.PingContext(c.UserContext()); err != nil {
				deps["database"] = err.Error()
				status = "degraded"
			}
		}

		if redisClient != nil {
			deps["redis"] = "ok"
			if err := redisClient.Ping(c.UserContext()).Err(); err != nil {
				deps["redis"] = err.Error()
				status = "degraded"
			}
		}

		payload := HealthResponse{
			Status:       status,
			Timestamp:    time.Now().UTC(),
			Service:      cfg.AppName,
			Environment:  cfg.AppEnv,
			Dependencies: deps,
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}

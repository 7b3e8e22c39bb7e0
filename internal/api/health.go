package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hubline-chat/hubline-server/internal/httputil"
)

// HealthHandler serves the health check endpoint. DB and Valkey are optional;
// a nil backend reports as disabled.
type HealthHandler struct {
	DB     *pgxpool.Pool
	Valkey *redis.Client
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(db *pgxpool.Pool, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{DB: db, Valkey: rdb}
}

// Health handles GET /health, pinging the configured backends.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c, 3*time.Second)
	defer cancel()

	pgStatus := "disabled"
	if h.DB != nil {
		pgStatus = "ok"
		if err := h.DB.Ping(ctx); err != nil {
			pgStatus = "unavailable"
		}
	}

	vkStatus := "disabled"
	if h.Valkey != nil {
		vkStatus = "ok"
		if err := h.Valkey.Ping(ctx).Err(); err != nil {
			vkStatus = "unavailable"
		}
	}

	overall := "ok"
	status := fiber.StatusOK
	if pgStatus == "unavailable" || vkStatus == "unavailable" {
		overall = "degraded"
		status = fiber.StatusServiceUnavailable
	}

	return httputil.SuccessStatus(c, status, fiber.Map{
		"status":   overall,
		"postgres": pgStatus,
		"valkey":   vkStatus,
	})
}

package handlers

import (
	"time"

	"teamup/internal/health"
	"teamup/internal/services"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	health *health.Service
	feed   *services.ChangeFeed
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(healthService *health.Service, feed *services.ChangeFeed) *HealthHandler {
	return &HealthHandler{health: healthService, feed: feed}
}

// Handle responds with server health status
// GET /health
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	h.health.CheckAll(c.UserContext())

	status, code := "healthy", fiber.StatusOK
	if !h.health.Healthy() {
		status, code = "degraded", fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":        status,
		"dependencies":  h.health.Components(),
		"subscriptions": h.feed.Active(),
		"timestamp":     time.Now().Format(time.RFC3339),
	})
}

package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is the store dependency of the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker is the forecast service dependency of the readiness probe
type HealthChecker interface {
	Health(ctx context.Context) error
}

type HealthHandler struct {
	startTime time.Time
	store     Pinger
	forecast  HealthChecker
}

// NewHealthHandler creates a HealthHandler. forecast is nil when no external
// forecast service is configured.
func NewHealthHandler(store Pinger, forecast HealthChecker) *HealthHandler {
	return &HealthHandler{
		startTime: time.Now(),
		store:     store,
		forecast:  forecast,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "esg-go-api",
		"version": "1.0.0",
		"uptime":  time.Since(h.startTime).String(),
		"time":    time.Now(),
	})
}

// Ready handles GET /health/ready. The store is required; the forecast
// service only degrades readiness since the local forecaster covers it.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	status, code := "ready", fiber.StatusOK
	checks := fiber.Map{"api": "ok"}

	if err := h.store.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		status, code = "unavailable", fiber.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	switch {
	case h.forecast == nil:
		checks["forecastService"] = "disabled"
	case h.forecast.Health(ctx) != nil:
		checks["forecastService"] = "unreachable"
		if code == fiber.StatusOK {
			status = "degraded"
		}
	default:
		checks["forecastService"] = "ok"
	}

	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"checks": checks,
	})
}

package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/kb-request-bot/internal/services"
)

// HealthReporter aggregates dependency checks.
type HealthReporter interface {
	Check(ctx context.Context) services.HealthReport
}

// HealthHandler handles health check requests
type HealthHandler struct {
	reporter HealthReporter
	timeout  time.Duration
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(reporter HealthReporter) *HealthHandler {
	return &HealthHandler{reporter: reporter, timeout: 10 * time.Second}
}

// Check returns the health status of the service. Unhealthy reports are
// returned with 503 so load balancers stop routing to the instance.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	report := h.reporter.Check(ctx)
	status := fiber.StatusOK
	if !report.Healthy() {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(report)
}

// Live reports that the process is up without touching dependencies.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "OK"})
}

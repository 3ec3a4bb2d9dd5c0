package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/appsearch/appsearch/internal/health"
)

// HealthHandler exposes the health of external dependencies.
type HealthHandler struct {
	health *health.Service
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(svc *health.Service) *HealthHandler {
	return &HealthHandler{health: svc}
}

// Report returns every tracked item and the overall status.
// GET /api/v1/health
func (h *HealthHandler) Report(c echo.Context) error {
	return c.JSON(http.StatusOK, h.health.Report())
}

// Package health exposes the liveness endpoint.
package health

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dealdesk/bramble/internal/platform/database"
)

// Handler handles the health endpoint
type Handler struct {
	db *database.DB
}

func NewHandler(db *database.DB) *Handler {
	return &Handler{db: db}
}

// Register registers the health route
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.Check)
}

// Check reports service and database health.
func (h *Handler) Check(c echo.Context) error {
	if err := h.db.PingContext(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  "database unreachable",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

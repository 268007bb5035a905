package handler

import (
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
)

// HealthHandler reports process and database health. Exempt from both
// authentication and the kill switch.
type HealthHandler struct {
	db *sqlx.DB
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db *sqlx.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check pings the database and reports status.
func (h *HealthHandler) Check(c echo.Context) error {
	status := http.StatusOK
	dbStatus := "ok"
	if err := h.db.PingContext(c.Request().Context()); err != nil {
		status = http.StatusServiceUnavailable
		dbStatus = "unreachable"
	}

	return c.JSON(status, map[string]any{
		"status":   dbStatus,
		"database": dbStatus,
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

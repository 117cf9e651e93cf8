package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/trackcard/internal/healthcheck"
)

// HealthHandler exposes dependency readiness.
type HealthHandler struct {
	checkers []healthcheck.Checker
}

func NewHealthHandler(checkers ...healthcheck.Checker) *HealthHandler {
	return &HealthHandler{checkers: checkers}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health/checks", h.Checks)
}

// Checks responds 503 when any dependency is in error.
func (h *HealthHandler) Checks(c echo.Context) error {
	report := healthcheck.Run(c.Request().Context(), h.checkers...)
	code := http.StatusOK
	if report.Status == healthcheck.StatusError {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, report)
}

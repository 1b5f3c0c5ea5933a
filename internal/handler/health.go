package handler

import (
	"context"  // request-scoped deadlines for service calls
	"net/http" // HTTP status codes
	"time"     // per-request storage timeouts

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing
	"go.uber.org/zap"             // structured logging
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves liveness and readiness checks.
type HealthHandler struct {
	DB  Pinger
	Log *zap.Logger
}

func NewHealthHandler(db Pinger, log *zap.Logger) *HealthHandler {
	return &HealthHandler{DB: db, Log: log}
}

// Health is a simple liveness endpoint used by load balancers. It never
// touches the database.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Livez: GET /livez
func (h *HealthHandler) Livez(c echo.Context) error {
	return c.String(http.StatusOK, "Objection backend is up")
}

// Ready: GET /health and /health-pod. Answers 503 when MySQL does not
// respond within two seconds.
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.PingContext(ctx); err != nil {
		h.Log.Warn("health check failed", zap.String("route", c.Path()), zap.Error(err))
		return c.String(http.StatusServiceUnavailable, "DB connection failed")
	}
	return c.String(http.StatusOK, "OK")
}

package handler // HTTP handlers; they translate requests into service calls

import (
	"context"  // request-scoped deadlines for service calls
	"errors"   // errors.Is / errors.As against service sentinels
	"net/http" // HTTP status codes
	"time"     // per-request storage timeouts

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing
	"go.uber.org/zap"             // structured logging

	"github.com/iliyamo/farmer-objection-service/internal/service" // lifecycle, queries and accounts
)

// defaultDBTimeout bounds the storage work of a single request.
const defaultDBTimeout = 5 * time.Second

func requestContext(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = defaultDBTimeout
	}
	return context.WithTimeout(c.Request().Context(), d)
}

// respondError maps the service error taxonomy onto HTTP statuses. Storage
// failures are logged with their cause but answered with a generic 503 so
// internals never leak to clients.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": ve.Fields})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, service.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidTransition):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, service.ErrInvalidResetCode):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired code"})
	case errors.Is(err, service.ErrStorageUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		log.Error("storage unavailable", zap.String("route", c.Path()), zap.Error(err))
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service temporarily unavailable"})
	}
	log.Error("unhandled error", zap.String("route", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}

// bindValid binds the request body into v and runs the echo validator.
// It writes the 400 response itself and reports whether to continue.
func bindValid(c echo.Context, v any) (bool, error) {
	if err := c.Bind(v); err != nil {
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(v); err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": ve.Fields})
		}
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	return true, nil
}

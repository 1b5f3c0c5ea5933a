package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/farmer-objection-service/internal/service"
)

// RequireRole returns a middleware that lets the request through only when
// the role stored by JWTAuth is one of roles. Anything else, including a
// missing role, is answered with 403.
func RequireRole(roles ...service.Role) echo.MiddlewareFunc {
	allowed := make(map[service.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(KeyRole).(string)
			if !ok || !allowed[service.Role(role)] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

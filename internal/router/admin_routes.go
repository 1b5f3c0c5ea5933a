package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/farmer-objection-service/internal/middleware"
	"github.com/iliyamo/farmer-objection-service/internal/service"
)

// RegisterAdmin registers the admin login and the admin-only listing and
// transition endpoints under /admin.
func RegisterAdmin(e *echo.Echo, h Handlers) {
	e.POST("/admin/login", h.Auth.AdminLogin, limited(h)...)

	g := e.Group(
		"/admin",
		middleware.JWTAuth(h.JWTSecret),
		middleware.RequireRole(service.RoleAdmin),
	)
	g.GET("/objections", h.Admin.ListActive)
	g.GET("/archive", h.Admin.ListArchive)
	g.POST("/objection/:id/review", h.Admin.Review)
	g.POST("/objection/:id/resolve", h.Admin.Resolve)
	g.POST("/resolve-objection", h.Admin.ResolveByBody)
}

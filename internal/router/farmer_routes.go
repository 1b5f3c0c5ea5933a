package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/farmer-objection-service/internal/middleware"
	"github.com/iliyamo/farmer-objection-service/internal/service"
)

// RegisterFarmer registers the farmer account endpoints under /farmer and
// the farmer's own objection endpoints under /objection.
func RegisterFarmer(e *echo.Echo, h Handlers) {
	rl := limited(h)

	acct := e.Group("/farmer")
	acct.POST("/register", h.Auth.Register)
	acct.POST("/login", h.Auth.Login, rl...)
	acct.POST("/forgot-password", h.Auth.ForgotPassword, rl...)
	acct.POST("/verify-code", h.Auth.VerifyCode, rl...)
	acct.POST("/reset-password", h.Auth.ResetPassword, rl...)

	// admin login predates the /admin prefix and is still served here
	e.POST("/objection/admin/login", h.Auth.AdminLogin, rl...)

	g := e.Group(
		"/objection",
		middleware.JWTAuth(h.JWTSecret),
		middleware.RequireRole(service.RoleFarmer),
	)
	g.GET("", h.Farmer.List)
	g.GET("/can-submit", h.Farmer.CanSubmit)
	g.POST("", h.Farmer.Submit)
}

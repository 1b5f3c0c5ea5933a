package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/farmer-objection-service/internal/handler"
	"github.com/iliyamo/farmer-objection-service/internal/metrics"
	"github.com/iliyamo/farmer-objection-service/internal/middleware"
)

// Handlers groups everything the route tables need. RateLimit guards the
// unauthenticated account endpoints; a nil value leaves them unlimited.
type Handlers struct {
	Auth      *handler.AuthHandler
	Farmer    *handler.FarmerObjectionHandler
	Admin     *handler.AdminObjectionHandler
	Health    *handler.HealthHandler
	RateLimit echo.MiddlewareFunc
	JWTSecret string
}

// ContentSecurityPolicy restricts every resource type to the API's own origin.
const ContentSecurityPolicy = "default-src 'self'; script-src 'self'; style-src 'self'; font-src 'self'; img-src 'self'"

// SecureHeaders is applied to every response. HSTS is only sent on TLS
// requests (or X-Forwarded-Proto: https), which echo decides per request.
var SecureHeaders = echomw.SecureConfig{
	XSSProtection:         "0",
	ContentTypeNosniff:    "nosniff",
	XFrameOptions:         "SAMEORIGIN",
	HSTSMaxAge:            15552000,
	ContentSecurityPolicy: ContentSecurityPolicy,
	ReferrerPolicy:        "no-referrer",
}

// New builds the echo instance with the shared middleware chain and every
// route registered.
func New(h Handlers, m *metrics.Metrics, log *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.Validator{}

	e.Use(echomw.SecureWithConfig(SecureHeaders)) // CSP, nosniff, frame and referrer policy
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(m.Middleware())

	RegisterRoutes(e, h.Health, m)
	RegisterFarmer(e, h)
	RegisterAdmin(e, h)
	return e
}

// RegisterRoutes registers the health checks and the metrics endpoint. None of
// them require authentication.
func RegisterRoutes(e *echo.Echo, hh *handler.HealthHandler, m *metrics.Metrics) {
	e.GET("/healthz", handler.Health)
	e.GET("/livez", hh.Livez)
	e.GET("/health", hh.Ready)
	e.GET("/health-pod", hh.Ready)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
}

func limited(h Handlers) []echo.MiddlewareFunc {
	if h.RateLimit == nil {
		return nil
	}
	return []echo.MiddlewareFunc{h.RateLimit}
}

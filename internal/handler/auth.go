package handler

import (
	"context"  // request-scoped deadlines for service calls
	"net/http" // HTTP status codes
	"time"     // per-request storage timeouts

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing
	"go.uber.org/zap"             // structured logging

	"github.com/iliyamo/farmer-objection-service/internal/model"   // objection and farmer rows
	"github.com/iliyamo/farmer-objection-service/internal/service" // lifecycle, queries and accounts
)

// Accounts is the account service as seen by the HTTP layer.
type Accounts interface {
	Register(ctx context.Context, in service.RegisterInput) (model.Farmer, error)
	Login(ctx context.Context, in service.LoginInput) (service.LoginResult, error)
	AdminLogin(ctx context.Context, in service.AdminLoginInput) (service.LoginResult, error)
	ForgotPassword(ctx context.Context, in service.ForgotPasswordInput) error
	VerifyCode(ctx context.Context, in service.VerifyCodeInput) (string, error)
	ResetPassword(ctx context.Context, in service.ResetPasswordInput) error
}

// AuthHandler bundles dependencies for the farmer and admin auth endpoints.
type AuthHandler struct {
	Accounts Accounts
	Log      *zap.Logger
	Timeout  time.Duration
}

func NewAuthHandler(a Accounts, log *zap.Logger, timeout time.Duration) *AuthHandler {
	return &AuthHandler{Accounts: a, Log: log, Timeout: timeout}
}

// Register: POST /farmer/register
func (h *AuthHandler) Register(c echo.Context) error {
	var req service.RegisterInput
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	// the password is hashed inside the service
	f, err := h.Accounts.Register(ctx, req)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Registered",
		"farmer":  service.FarmerProfile{ID: f.ID, FirstName: f.FirstName, LastName: f.LastName},
	})
}

// Login: POST /farmer/login
func (h *AuthHandler) Login(c echo.Context) error {
	var req service.LoginInput
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	res, err := h.Accounts.Login(ctx, req)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// AdminLogin: POST /admin/login and POST /objection/admin/login
func (h *AuthHandler) AdminLogin(c echo.Context) error {
	var req service.AdminLoginInput
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	// admin credentials come from config, so no storage deadline is needed
	res, err := h.Accounts.AdminLogin(c.Request().Context(), req)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ForgotPassword: POST /farmer/forgot-password. The code is sent out of
// band; the response only acknowledges the request.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req service.ForgotPasswordInput
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	if err := h.Accounts.ForgotPassword(ctx, req); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "verification code sent"})
}

// VerifyCode: POST /farmer/verify-code
func (h *AuthHandler) VerifyCode(c echo.Context) error {
	var req service.VerifyCodeInput
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	token, err := h.Accounts.VerifyCode(ctx, req)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reset_token": token})
}

// ResetPassword: POST /farmer/reset-password
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req service.ResetPasswordInput
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	if err := h.Accounts.ResetPassword(ctx, req); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Password reset"})
}

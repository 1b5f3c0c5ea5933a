package handler

import (
	"context"  // request-scoped deadlines for service calls
	"net/http" // HTTP status codes
	"time"     // per-request storage timeouts

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing
	"go.uber.org/zap"             // structured logging

	"github.com/iliyamo/farmer-objection-service/internal/middleware" // actor extracted from the JWT
	"github.com/iliyamo/farmer-objection-service/internal/model"      // objection and farmer rows
	"github.com/iliyamo/farmer-objection-service/internal/service"    // lifecycle, queries and accounts
)

// Lifecycle is the objection lifecycle manager as seen by the HTTP layer.
type Lifecycle interface {
	CanSubmit(ctx context.Context, farmerID uint64) (bool, error)
	Submit(ctx context.Context, farmerID uint64, transactionNumber string) (model.Objection, error)
	ListForFarmer(ctx context.Context, farmerID uint64) ([]model.Objection, error)
	Review(ctx context.Context, id uint64, role service.Role) (model.Objection, error)
	Resolve(ctx context.Context, id uint64, role service.Role) (model.Objection, error)
}

// FarmerObjectionHandler serves the farmer's own objection endpoints.
type FarmerObjectionHandler struct {
	Objections Lifecycle
	Log        *zap.Logger
	Timeout    time.Duration
}

func NewFarmerObjectionHandler(l Lifecycle, log *zap.Logger, timeout time.Duration) *FarmerObjectionHandler {
	return &FarmerObjectionHandler{Objections: l, Log: log, Timeout: timeout}
}

// ----- DTOs -----

type submitReq struct {
	TransactionNumber string `json:"transaction_number" validate:"required"`
}

// farmerFrom writes 401 itself and returns a zero id when the caller is not a farmer.
func farmerFrom(c echo.Context) (uint64, error) {
	a, ok := middleware.ActorFrom(c)
	if !ok || a.Role != service.RoleFarmer {
		return 0, c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return a.FarmerID, nil
}

// List: GET /objection
func (h *FarmerObjectionHandler) List(c echo.Context) error {
	fid, err := farmerFrom(c)
	if fid == 0 {
		return err
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	list, err := h.Objections.ListForFarmer(ctx, fid)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// CanSubmit: GET /objection/can-submit
func (h *FarmerObjectionHandler) CanSubmit(c echo.Context) error {
	fid, err := farmerFrom(c)
	if fid == 0 {
		return err
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	ok, err := h.Objections.CanSubmit(ctx, fid)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"canSubmit": ok})
}

// Submit: POST /objection
func (h *FarmerObjectionHandler) Submit(c echo.Context) error {
	fid, err := farmerFrom(c)
	if fid == 0 {
		return err
	}
	var req submitReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	// a farmer with an active objection gets 409 from respondError
	o, err := h.Objections.Submit(ctx, fid, req.TransactionNumber)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "Submitted", "objection": o})
}

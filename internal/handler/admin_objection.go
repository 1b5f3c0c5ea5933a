package handler

import (
	"context"  // request-scoped deadlines for service calls
	"net/http" // HTTP status codes
	"strconv"  // path parameter parsing
	"time"     // per-request storage timeouts

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing
	"go.uber.org/zap"             // structured logging

	"github.com/iliyamo/farmer-objection-service/internal/middleware" // actor extracted from the JWT
	"github.com/iliyamo/farmer-objection-service/internal/model"      // objection and farmer rows
	"github.com/iliyamo/farmer-objection-service/internal/service"    // lifecycle, queries and accounts
)

// AdminQueries is the admin query engine as seen by the HTTP layer.
type AdminQueries interface {
	ListActive(ctx context.Context, page int, searchTerm string, role service.Role) (service.Page[model.Objection], error)
	ListArchive(ctx context.Context, page int, searchTerm string, role service.Role) (service.Page[model.ArchivedObjection], error)
}

// AdminObjectionHandler serves the admin listings and status transitions.
// The role is passed down from the token so the services enforce it too.
type AdminObjectionHandler struct {
	Objections Lifecycle
	Queries    AdminQueries
	Log        *zap.Logger
	Timeout    time.Duration
}

func NewAdminObjectionHandler(l Lifecycle, q AdminQueries, log *zap.Logger, timeout time.Duration) *AdminObjectionHandler {
	return &AdminObjectionHandler{Objections: l, Queries: q, Log: log, Timeout: timeout}
}

// ----- DTOs -----

type resolveReq struct {
	ObjectionID uint64 `json:"objection_id" validate:"required,gt=0"`
}

func roleFrom(c echo.Context) service.Role {
	a, _ := middleware.ActorFrom(c)
	return a.Role
}

// ListActive: GET /admin/objections?page=&search=
func (h *AdminObjectionHandler) ListActive(c echo.Context) error {
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	// out-of-range or garbage pages fall back to page 1
	page, err := h.Queries.ListActive(ctx, service.ParsePage(c.QueryParam("page")), c.QueryParam("search"), roleFrom(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, page)
}

// ListArchive: GET /admin/archive?page=&search=
func (h *AdminObjectionHandler) ListArchive(c echo.Context) error {
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	page, err := h.Queries.ListArchive(ctx, service.ParsePage(c.QueryParam("page")), c.QueryParam("search"), roleFrom(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, page)
}

// Review: POST /admin/objection/:id/review
func (h *AdminObjectionHandler) Review(c echo.Context) error {
	return h.transition(c, h.Objections.Review, "Objection reviewed")
}

// Resolve: POST /admin/objection/:id/resolve
func (h *AdminObjectionHandler) Resolve(c echo.Context) error {
	return h.transition(c, h.Objections.Resolve, "Objection resolved")
}

// ResolveByBody: POST /admin/resolve-objection {"objection_id": n}
func (h *AdminObjectionHandler) ResolveByBody(c echo.Context) error {
	var req resolveReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	return h.apply(c, req.ObjectionID, h.Objections.Resolve, "Objection resolved")
}

type transitionFunc func(ctx context.Context, id uint64, role service.Role) (model.Objection, error)

func (h *AdminObjectionHandler) transition(c echo.Context, fn transitionFunc, msg string) error {
	// ids are positive; anything else is rejected before touching storage
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid objection id"})
	}
	return h.apply(c, id, fn, msg)
}

func (h *AdminObjectionHandler) apply(c echo.Context, id uint64, fn transitionFunc, msg string) error {
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	o, err := fn(ctx, id, roleFrom(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": msg, "objection": o})
}

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"marketplace/internal/config"
	"marketplace/internal/middleware"
	"marketplace/internal/usecase"
)

type DiscountCodeCreateRequest struct {
	Code                  string          `json:"code" validate:"required,min=3,max=64"`
	DiscountType          string          `json:"discount_type" validate:"required,oneof=percentage fixed_amount"`
	DiscountValue         decimal.Decimal `json:"discount_value"`
	MaximumDiscountAmount *int64          `json:"maximum_discount_amount" validate:"omitempty,gt=0"`
	UsageLimit            *int64          `json:"usage_limit" validate:"omitempty,gt=0"`
}

// /admin/discount-codes（adminだけ）
type AdminDiscountHandler struct {
	uc *usecase.DiscountUsecase
}

func NewAdminDiscountHandler(uc *usecase.DiscountUsecase) *AdminDiscountHandler {
	return &AdminDiscountHandler{uc: uc}
}

func (h *AdminDiscountHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/admin/discount-codes")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.AdminRoleGuard())

	g.POST("", h.create)
	g.GET("", h.list)
	g.PUT("/:code/deactivate", h.deactivate)
}

func (h *AdminDiscountHandler) create(c echo.Context) error {
	actor, ok := getActorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req DiscountCodeCreateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	d, err := h.uc.Create(c.Request().Context(), actor, usecase.CreateDiscountInput{
		Code:                  req.Code,
		DiscountType:          req.DiscountType,
		DiscountValue:         req.DiscountValue,
		MaximumDiscountAmount: req.MaximumDiscountAmount,
		UsageLimit:            req.UsageLimit,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *AdminDiscountHandler) list(c echo.Context) error {
	activeOnly := c.QueryParam("active") == "true"

	items, err := h.uc.List(c.Request().Context(), activeOnly)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *AdminDiscountHandler) deactivate(c echo.Context) error {
	actor, ok := getActorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.uc.Deactivate(c.Request().Context(), actor, c.Param("code")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "deactivated"})
}

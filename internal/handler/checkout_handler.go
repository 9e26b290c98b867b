package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"marketplace/internal/config"
	"marketplace/internal/domain/pricing"
	"marketplace/internal/middleware"
	"marketplace/internal/usecase"
)

type CartLineRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0,lte=100000"`
}

// 見積もりと注文で同じ形
type CartRequest struct {
	Items          []CartLineRequest `json:"items" validate:"required,min=1,max=100,dive"`
	DiscountCode   string            `json:"discount_code" validate:"max=64"`
	ShippingMethod string            `json:"shipping_method" validate:"omitempty,oneof=standard express"`
}

func (r CartRequest) lines() []pricing.CartLine {
	out := make([]pricing.CartLine, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, pricing.CartLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// POST /checkout/quote
type CheckoutHandler struct {
	uc *usecase.PricingUsecase
}

func NewCheckoutHandler(uc *usecase.PricingUsecase) *CheckoutHandler {
	return &CheckoutHandler{uc: uc}
}

func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, limiter *middleware.RateLimiter) {
	g := e.Group("/checkout")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(limiter.Middleware())

	g.POST("/quote", h.quote)
}

func (h *CheckoutHandler) quote(c echo.Context) error {
	var req CartRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.Price(c.Request().Context(), usecase.QuoteInput{
		Lines:          req.lines(),
		DiscountCode:   req.DiscountCode,
		ShippingMethod: req.ShippingMethod,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

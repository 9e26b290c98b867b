package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"marketplace/internal/handler"
	"marketplace/internal/middleware"
)

func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))

	// 見積もりと注文確定だけに掛ける
	limiter := middleware.NewRateLimiter(d.Config.RateLimit, d.Metrics.RateLimited)

	handler.NewProductHandler(d.Products).RegisterRoutes(e)
	handler.NewCheckoutHandler(d.Pricing).RegisterRoutes(e, d.Config, limiter)
	handler.NewOrderHandler(d.Orders).RegisterRoutes(e, d.Config, limiter)
	handler.NewAdminProductHandler(d.Products, d.Inventory).RegisterRoutes(e, d.Config)
	handler.NewAdminDiscountHandler(d.Discounts).RegisterRoutes(e, d.Config)
	handler.NewAdminOrderHandler(d.AdminOrders).RegisterRoutes(e, d.Config)
	handler.NewAdminAuditLogHandler(d.AuditLogs).RegisterRoutes(e, d.Config)
}

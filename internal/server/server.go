package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"marketplace/internal/config"
	"marketplace/internal/metrics"
	"marketplace/internal/middleware"
	"marketplace/internal/usecase"
	"marketplace/internal/validator"
)

// handlerに渡すusecase一式
type Deps struct {
	Config      config.Config
	Log         logrus.FieldLogger
	Metrics     *metrics.Registry
	Products    *usecase.ProductUsecase
	Pricing     *usecase.PricingUsecase
	Orders      *usecase.OrderUsecase
	Inventory   *usecase.InventoryUsecase
	Discounts   *usecase.DiscountUsecase
	AdminOrders *usecase.AdminOrderUsecase
	AuditLogs   *usecase.AuditLogUsecase
}

func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validator.New()

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(d.Log))

	RegisterRoutes(e, d)
	return e
}

// ctxがキャンセルされたら新規受付を止めて処理中のリクエストを待つ
func Start(ctx context.Context, e *echo.Echo, addr string, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}

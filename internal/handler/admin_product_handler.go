package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"marketplace/internal/config"
	"marketplace/internal/middleware"
	"marketplace/internal/usecase"
)

// 一覧以外の成功レスポンス
type SuccessResponse struct {
	Message string `json:"message"`
}

type ProductRequest struct {
	// adminのときだけ使う
	VendorID       string `json:"vendor_id" validate:"max=64"`
	Name           string `json:"name" validate:"required,max=200"`
	SKU            string `json:"sku" validate:"required,max=64"`
	Description    string `json:"description" validate:"max=2000"`
	Price          int64  `json:"price" validate:"gte=0"`
	InitialStock   int64  `json:"initial_stock" validate:"gte=0"`
	TrackInventory *bool  `json:"track_inventory"`
	IsActive       *bool  `json:"is_active"`
}

func (r ProductRequest) input() usecase.ProductInput {
	// 省略時はtrue
	track, active := true, true
	if r.TrackInventory != nil {
		track = *r.TrackInventory
	}
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return usecase.ProductInput{
		VendorID:       r.VendorID,
		Name:           r.Name,
		SKU:            r.SKU,
		Description:    r.Description,
		Price:          r.Price,
		InitialStock:   r.InitialStock,
		TrackInventory: track,
		IsActive:       active,
	}
}

type AdjustmentRequest struct {
	Delta        int64  `json:"delta" validate:"required,gte=-1000000000,lte=1000000000"`
	MovementType string `json:"movement_type" validate:"required,oneof=restock return adjustment damage cancellation"`
	Notes        string `json:"notes" validate:"max=500"`
}

// /admin/products と /admin/inventory をまとめる（admin と vendor）
type AdminProductHandler struct {
	products  *usecase.ProductUsecase
	inventory *usecase.InventoryUsecase
}

// DI
func NewAdminProductHandler(products *usecase.ProductUsecase, inventory *usecase.InventoryUsecase) *AdminProductHandler {
	return &AdminProductHandler{products: products, inventory: inventory}
}

func (h *AdminProductHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	guards := []echo.MiddlewareFunc{
		middleware.AuthJWT(cfg),
		middleware.RoleGuard(usecase.RoleAdmin, usecase.RoleVendor),
	}

	products := e.Group("/admin/products", guards...)
	products.POST("", h.createProduct)
	products.PUT("/:id", h.updateProduct)
	products.DELETE("/:id", h.deleteProduct)

	inventory := e.Group("/admin/inventory", guards...)
	inventory.POST("/:product_id/adjustments", h.adjust)
	inventory.GET("/:product_id/movements", h.movements)
}

func (h *AdminProductHandler) createProduct(c echo.Context) error {
	actor, ok := getActorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req ProductRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	p, err := h.products.CreateProduct(c.Request().Context(), actor, req.input())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *AdminProductHandler) updateProduct(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid id")
	}
	actor, ok := getActorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req ProductRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	p, err := h.products.UpdateProduct(c.Request().Context(), actor, id, req.input())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *AdminProductHandler) deleteProduct(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid id")
	}
	actor, ok := getActorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.products.DeleteProduct(c.Request().Context(), actor, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// 在庫の手動調整
func (h *AdminProductHandler) adjust(c echo.Context) error {
	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid product_id")
	}
	actor, ok := getActorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req AdjustmentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.inventory.Adjust(c.Request().Context(), usecase.AdjustInput{
		ProductID:    productID,
		Delta:        req.Delta,
		MovementType: req.MovementType,
		Notes:        req.Notes,
		ActorID:      actor.ID,
		ActorRole:    actor.Role,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminProductHandler) movements(c echo.Context) error {
	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid product_id")
	}
	actor, ok := getActorFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return badRequest(c, "invalid page")
	}
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return badRequest(c, "invalid limit")
	}

	out, err := h.inventory.ListMovements(c.Request().Context(), actor, productID, page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

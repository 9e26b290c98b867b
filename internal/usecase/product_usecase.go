package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"marketplace/internal/domain/model"
	"marketplace/internal/infra/events"
	"marketplace/internal/metrics"
	repo "marketplace/internal/repository"
)

type ProductUsecase struct {
	tx          repo.TransactionManager
	productRepo repo.ProductRepository
	publisher   events.Publisher
	metrics     *metrics.Registry
	log         logrus.FieldLogger
}

// DI
func NewProductUsecase(
	tx repo.TransactionManager,
	productRepo repo.ProductRepository,
	publisher events.Publisher,
	m *metrics.Registry,
	log logrus.FieldLogger,
) *ProductUsecase {
	return &ProductUsecase{
		tx:          tx,
		productRepo: productRepo,
		publisher:   publisher,
		metrics:     m,
		log:         log,
	}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page     int
	Limit    int
	Q        string
	VendorID string
	MinPrice *int64
	MaxPrice *int64
	Sort     string
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (u *ProductUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, validationError("invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, validationError("invalid limit")
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, validationError("q too long")
	}
	if in.MinPrice != nil && *in.MinPrice < 0 {
		return ProductListOutput{}, validationError("min_price must be >= 0")
	}
	if in.MaxPrice != nil && *in.MaxPrice < 0 {
		return ProductListOutput{}, validationError("max_price must be >= 0")
	}
	if in.MinPrice != nil && in.MaxPrice != nil && *in.MinPrice > *in.MaxPrice {
		return ProductListOutput{}, validationError("min_price must be <= max_price")
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc":
	default:
		return ProductListOutput{}, validationError("invalid sort")
	}

	items, total, err := u.productRepo.ListPublic(ctx, repo.ProductListQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Q:        strings.TrimSpace(in.Q),
		VendorID: strings.TrimSpace(in.VendorID),
		MinPrice: in.MinPrice,
		MaxPrice: in.MaxPrice,
		Sort:     in.Sort,
	})
	if err != nil {
		return ProductListOutput{}, persistenceFailure(u.log, "product", "ListPublicProducts", nil, true, err)
	}

	return ProductListOutput{
		Items: items,
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}, nil
}

func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, validationError("invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, notFoundError("not found")
	}
	if err != nil {
		return model.Product{}, persistenceFailure(u.log, "product", "GetProductDetail", map[string]any{"product_id": productID}, true, err)
	}

	if !p.IsActive {
		return model.Product{}, notFoundError("not found")
	}
	return p, nil
}

type ProductInput struct {
	// adminのときだけ指定（vendorは自分）
	VendorID       string
	Name           string
	SKU            string
	Description    string
	Price          int64
	InitialStock   int64
	TrackInventory bool
	IsActive       bool
}

func validateProductInput(in ProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return validationError("name required")
	}
	if strings.TrimSpace(in.SKU) == "" {
		return validationError("sku required")
	}
	if in.Price < 0 {
		return validationError("price must be >= 0")
	}
	if in.InitialStock < 0 {
		return validationError("initial_stock must be >= 0")
	}
	return nil
}

// 商品作成
// 初期在庫はinitialの移動として記録する
func (u *ProductUsecase) CreateProduct(ctx context.Context, actor Actor, in ProductInput) (model.Product, error) {
	if actor.ID == "" {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := validateProductInput(in); err != nil {
		return model.Product{}, err
	}
	vendorID := strings.TrimSpace(in.VendorID)
	if !actor.IsAdmin() {
		vendorID = actor.ID
	}
	if vendorID == "" {
		return model.Product{}, validationError("vendor_id required")
	}
	if !actor.CanManage(vendorID) {
		return model.Product{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}

	var created model.Product
	var initial *model.InventoryMovement
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().Create(ctx, model.Product{
			VendorID:       vendorID,
			Name:           strings.TrimSpace(in.Name),
			SKU:            strings.TrimSpace(in.SKU),
			Description:    in.Description,
			Price:          in.Price,
			TrackInventory: in.TrackInventory,
			IsActive:       in.IsActive,
		})
		if errors.Is(err, repo.ErrDuplicate) {
			return validationError("sku already exists for vendor")
		}
		if err != nil {
			return err
		}

		if in.InitialStock > 0 {
			m, err := recordMovement(ctx, r, p.ID, in.InitialStock, nil, model.InventoryMovement{
				MovementType:  model.MovementInitial,
				ReferenceType: "product",
				ReferenceID:   strconv.FormatInt(p.ID, 10),
				Notes:         "initial stock",
				CreatedBy:     actor.ID,
			})
			if err != nil {
				return err
			}
			p.StockQuantity = m.NewQuantity
			initial = &m
		}
		created = p
		return nil
	})
	if err != nil {
		return model.Product{}, wrapTxError(u.log, "product", "CreateProduct", map[string]any{"sku": in.SKU, "initial_stock": in.InitialStock}, err)
	}

	if initial != nil {
		u.metrics.InventoryAdjustments.WithLabelValues(string(model.MovementInitial)).Inc()
		publishMovements(ctx, u.publisher, u.log, "product", *initial)
	}
	return created, nil
}

// 在庫数は変えない（在庫は調整APIで）
func (u *ProductUsecase) UpdateProduct(ctx context.Context, actor Actor, productID int64, in ProductInput) (model.Product, error) {
	if actor.ID == "" {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return model.Product{}, validationError("invalid product id")
	}
	if err := validateProductInput(in); err != nil {
		return model.Product{}, err
	}

	var updated model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundError("not found")
		}
		if err != nil {
			return err
		}
		if !actor.CanManage(before.VendorID) {
			return notFoundError("not found")
		}

		after := before
		after.Name = strings.TrimSpace(in.Name)
		after.SKU = strings.TrimSpace(in.SKU)
		after.Description = in.Description
		after.Price = in.Price
		after.TrackInventory = in.TrackInventory
		after.IsActive = in.IsActive

		err = r.Products().Update(ctx, after)
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundError("not found")
		}
		if errors.Is(err, repo.ErrDuplicate) {
			return validationError("sku already exists for vendor")
		}
		if err != nil {
			return err
		}

		//監査ログ（誰が・何を・どう変えたか）
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorID:      actor.ID,
			Action:       model.AuditActionUpdateProduct,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   strconv.FormatInt(productID, 10),
			BeforeJSON:   toJSON(before),
			AfterJSON:    toJSON(after),
			CreatedAt:    time.Now(),
		}); err != nil {
			return err
		}
		updated = after
		return nil
	})
	if err != nil {
		return model.Product{}, wrapTxError(u.log, "product", "UpdateProduct", map[string]any{"product_id": productID}, err)
	}
	return updated, nil
}

func (u *ProductUsecase) DeleteProduct(ctx context.Context, actor Actor, productID int64) error {
	if actor.ID == "" {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return validationError("invalid product id")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundError("not found")
		}
		if err != nil {
			return err
		}
		if !actor.CanManage(before.VendorID) {
			return notFoundError("not found")
		}

		if err := r.Products().SoftDelete(ctx, productID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFoundError("not found")
			}
			return err
		}

		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorID:      actor.ID,
			Action:       model.AuditActionDeleteProduct,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   strconv.FormatInt(productID, 10),
			BeforeJSON:   toJSON(before),
			AfterJSON:    "{}",
			CreatedAt:    time.Now(),
		})
	})
	return wrapTxError(u.log, "product", "DeleteProduct", map[string]any{"product_id": productID}, err)
}

// 監査ログ用
func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

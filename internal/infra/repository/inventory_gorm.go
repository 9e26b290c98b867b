package repository

import (
	"context"
	"errors"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// 行ロック → 加算
// Tx外で呼ばれても、前の値を条件にした更新なので二重加算にはならない
func (r *InventoryGormRepository) ApplyDelta(ctx context.Context, productID int64, delta int64, floor *int64) (repo.StockChange, error) {
	var p model.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "stock_quantity").
		Where("id = ?", productID).
		First(&p).Error
	if isNotFound(err) {
		return repo.StockChange{}, repo.ErrNotFound
	}
	if err != nil {
		return repo.StockChange{}, err
	}

	newQty, err := model.CheckedSum(p.StockQuantity, delta)
	if err != nil {
		return repo.StockChange{}, err
	}
	if floor != nil && newQty < *floor {
		return repo.StockChange{}, repo.ErrFloorViolation
	}

	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND stock_quantity = ?", productID, p.StockQuantity).
		Update("stock_quantity", newQty)
	if res.Error != nil {
		return repo.StockChange{}, res.Error
	}
	if res.RowsAffected == 0 {
		return repo.StockChange{}, repo.ErrConflict
	}

	return repo.StockChange{
		ProductID:        productID,
		PreviousQuantity: p.StockQuantity,
		NewQuantity:      newQty,
	}, nil
}

// 移動履歴作成
func (r *InventoryGormRepository) CreateMovement(ctx context.Context, m model.InventoryMovement) (model.InventoryMovement, error) {
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return model.InventoryMovement{}, err
	}
	return m, nil
}

func (r *InventoryGormRepository) ListMovements(ctx context.Context, q repo.MovementListQuery) ([]model.InventoryMovement, int64, error) {
	tx := r.db.WithContext(ctx).Model(&model.InventoryMovement{}).Where("product_id = ?", q.ProductID)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return []model.InventoryMovement{}, 0, err
	}

	var items []model.InventoryMovement
	if err := tx.Order("id asc").Limit(q.Limit).Offset(q.Offset).Find(&items).Error; err != nil {
		return []model.InventoryMovement{}, 0, err
	}
	return items, total, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

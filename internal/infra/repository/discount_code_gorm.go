package repository

import (
	"context"
	"errors"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"gorm.io/gorm"
)

type DiscountCodeGormRepository struct {
	db *gorm.DB
}

func NewDiscountCodeGormRepository(db *gorm.DB) *DiscountCodeGormRepository {
	return &DiscountCodeGormRepository{db: db}
}

func (r *DiscountCodeGormRepository) FindActiveByCode(ctx context.Context, code string) (model.DiscountCode, error) {
	var d model.DiscountCode
	err := r.db.WithContext(ctx).
		Where("code = ? AND is_active = ?", model.NormalizeDiscountCode(code), true).
		First(&d).Error
	if isNotFound(err) {
		return model.DiscountCode{}, repo.ErrNotFound
	}
	if err != nil {
		return model.DiscountCode{}, err
	}
	return d, nil
}

func (r *DiscountCodeGormRepository) FindByCode(ctx context.Context, code string) (model.DiscountCode, error) {
	var d model.DiscountCode
	err := r.db.WithContext(ctx).Where("code = ?", model.NormalizeDiscountCode(code)).First(&d).Error
	if isNotFound(err) {
		return model.DiscountCode{}, repo.ErrNotFound
	}
	if err != nil {
		return model.DiscountCode{}, err
	}
	return d, nil
}

// 上限内のときだけ+1
func (r *DiscountCodeGormRepository) IncrementUsageIfAvailable(ctx context.Context, code string) error {
	res := r.db.WithContext(ctx).
		Model(&model.DiscountCode{}).
		Where("code = ? AND is_active = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", model.NormalizeDiscountCode(code), true).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrConflict
	}
	return nil
}

func (r *DiscountCodeGormRepository) Create(ctx context.Context, d model.DiscountCode) (model.DiscountCode, error) {
	d.Code = model.NormalizeDiscountCode(d.Code)
	if err := r.db.WithContext(ctx).Create(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return model.DiscountCode{}, repo.ErrDuplicate
		}
		return model.DiscountCode{}, err
	}
	return d, nil
}

func (r *DiscountCodeGormRepository) List(ctx context.Context, activeOnly bool) ([]model.DiscountCode, error) {
	q := r.db.WithContext(ctx).Model(&model.DiscountCode{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var items []model.DiscountCode
	if err := q.Order("id desc").Find(&items).Error; err != nil {
		return []model.DiscountCode{}, err
	}
	return items, nil
}

func (r *DiscountCodeGormRepository) Deactivate(ctx context.Context, code string) error {
	res := r.db.WithContext(ctx).
		Model(&model.DiscountCode{}).
		Where("code = ?", model.NormalizeDiscountCode(code)).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

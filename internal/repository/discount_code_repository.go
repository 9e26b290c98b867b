package repository

import (
	"context"

	"marketplace/internal/domain/model"
)

type DiscountCodeRepository interface {
	// 有効なコードだけ返す（無効・存在しないはErrNotFound）
	FindActiveByCode(ctx context.Context, code string) (model.DiscountCode, error)
	FindByCode(ctx context.Context, code string) (model.DiscountCode, error)

	// 上限内のときだけusage_countを+1（0件ならErrConflict）
	IncrementUsageIfAvailable(ctx context.Context, code string) error

	Create(ctx context.Context, d model.DiscountCode) (model.DiscountCode, error)
	List(ctx context.Context, activeOnly bool) ([]model.DiscountCode, error)
	Deactivate(ctx context.Context, code string) error
}

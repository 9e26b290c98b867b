package repository

import (
	"context"

	"marketplace/internal/domain/model"
)

// 在庫の更新結果
type StockChange struct {
	ProductID        int64
	PreviousQuantity int64
	NewQuantity      int64
}

type MovementListQuery struct {
	ProductID int64
	Limit     int
	Offset    int
}

// 在庫の更新と移動履歴
// 在庫数を変える経路はApplyDeltaだけ
type InventoryRepository interface {
	// 行ロックを取ってdeltaを加算する
	// floorがnil以外なら new < *floor のとき ErrFloorViolation
	ApplyDelta(ctx context.Context, productID int64, delta int64, floor *int64) (StockChange, error)

	// 移動履歴作成
	CreateMovement(ctx context.Context, m model.InventoryMovement) (model.InventoryMovement, error)

	// 古い順（previous → new が連鎖する）
	ListMovements(ctx context.Context, q MovementListQuery) ([]model.InventoryMovement, int64, error)
}

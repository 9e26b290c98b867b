package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"marketplace/internal/domain/model"
	"marketplace/internal/infra/events"
	"marketplace/internal/metrics"
	repo "marketplace/internal/repository"
)

const (
	maxMovementNotesLen = 500
	// 1回の手動調整で動かせる数量
	maxAdjustmentDelta = 1_000_000_000
)

type InventoryUsecase struct {
	tx        repo.TransactionManager
	products  repo.ProductRepository
	inventory repo.InventoryRepository
	publisher events.Publisher
	metrics   *metrics.Registry
	log       logrus.FieldLogger
}

// DI
func NewInventoryUsecase(
	tx repo.TransactionManager,
	products repo.ProductRepository,
	inventory repo.InventoryRepository,
	publisher events.Publisher,
	m *metrics.Registry,
	log logrus.FieldLogger,
) *InventoryUsecase {
	return &InventoryUsecase{
		tx:        tx,
		products:  products,
		inventory: inventory,
		publisher: publisher,
		metrics:   m,
		log:       log,
	}
}

type AdjustInput struct {
	ProductID    int64
	Delta        int64
	MovementType string
	Notes        string
	ActorID      string
	// vendorなら自分の商品だけ
	ActorRole string
}

type AdjustOutput struct {
	ProductID   int64                   `json:"product_id"`
	NewQuantity int64                   `json:"new_quantity"`
	Movement    model.InventoryMovement `json:"movement"`
}

type MovementListOutput struct {
	Items []model.InventoryMovement `json:"items"`
	Total int64                     `json:"total"`
	Page  int                       `json:"page"`
	Limit int                       `json:"limit"`
}

// 在庫数の変更と移動履歴を1つのTxで書く
// floorは呼び出し側が必要なときだけ渡す（手動調整では渡さない）
func recordMovement(ctx context.Context, r repo.TxRepos, productID, delta int64, floor *int64, m model.InventoryMovement) (model.InventoryMovement, error) {
	change, err := r.Inventory().ApplyDelta(ctx, productID, delta, floor)
	if errors.Is(err, model.ErrAmountOutOfRange) {
		return model.InventoryMovement{}, validationError("stock quantity out of range")
	}
	if err != nil {
		return model.InventoryMovement{}, err
	}

	m.ProductID = productID
	m.Quantity = delta
	m.PreviousQuantity = change.PreviousQuantity
	m.NewQuantity = change.NewQuantity

	created, err := r.Inventory().CreateMovement(ctx, m)
	if err != nil {
		return model.InventoryMovement{}, &movementWriteError{productID: productID, delta: delta, err: err}
	}
	return created, nil
}

// 在庫は書けたが履歴が書けなかった（Txごと戻る）
type movementWriteError struct {
	productID int64
	delta     int64
	err       error
}

func (e *movementWriteError) Error() string {
	return fmt.Sprintf("write movement product=%d delta=%d: %v", e.productID, e.delta, e.err)
}

func (e *movementWriteError) Unwrap() error { return e.err }

// 手動の在庫調整
// 結果がマイナスでも丸めない
func (u *InventoryUsecase) Adjust(ctx context.Context, in AdjustInput) (AdjustOutput, error) {
	actorID := strings.TrimSpace(in.ActorID)
	if actorID == "" {
		return AdjustOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.ProductID <= 0 {
		return AdjustOutput{}, validationError("invalid product id")
	}
	if in.Delta == 0 {
		return AdjustOutput{}, validationError("delta must not be 0")
	}
	if in.Delta > maxAdjustmentDelta || in.Delta < -maxAdjustmentDelta {
		return AdjustOutput{}, validationError(fmt.Sprintf("delta must be within ±%d", maxAdjustmentDelta))
	}
	mt := model.MovementType(strings.ToLower(strings.TrimSpace(in.MovementType)))
	if !mt.Manual() {
		return AdjustOutput{}, validationError("invalid movement_type")
	}
	notes := strings.TrimSpace(in.Notes)
	if utf8.RuneCountInString(notes) > maxMovementNotesLen {
		return AdjustOutput{}, validationError("notes too long")
	}
	actor := Actor{ID: actorID, Role: in.ActorRole}
	details := map[string]any{"product_id": in.ProductID, "delta": in.Delta}

	var out AdjustOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().FindByID(ctx, in.ProductID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundError("product not found")
		}
		if err != nil {
			return err
		}
		if !actor.CanManage(p.VendorID) {
			// 他の出品者の商品は存在しない扱い
			return notFoundError("product not found")
		}

		m, err := recordMovement(ctx, r, in.ProductID, in.Delta, nil, model.InventoryMovement{
			MovementType:  mt,
			ReferenceType: "manual",
			Notes:         notes,
			CreatedBy:     actorID,
		})
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundError("product not found")
		}
		if errors.Is(err, repo.ErrConflict) {
			return conflictError("stock changed concurrently, retry")
		}
		if err != nil {
			return err
		}

		out = AdjustOutput{ProductID: in.ProductID, NewQuantity: m.NewQuantity, Movement: m}
		return nil
	})
	if err != nil {
		return AdjustOutput{}, wrapTxError(u.log, "inventory", "Adjust", details, err)
	}

	u.metrics.InventoryAdjustments.WithLabelValues(string(mt)).Inc()
	u.publishMovements(ctx, out.Movement)
	return out, nil
}

// 古い順（previous → new の連鎖が読める）
func (u *InventoryUsecase) ListMovements(ctx context.Context, actor Actor, productID int64, page, limit int) (MovementListOutput, error) {
	if productID <= 0 {
		return MovementListOutput{}, validationError("invalid product id")
	}
	if page < 1 {
		return MovementListOutput{}, validationError("invalid page")
	}
	if limit < 1 || limit > 200 {
		return MovementListOutput{}, validationError("invalid limit")
	}

	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return MovementListOutput{}, notFoundError("product not found")
	}
	if err != nil {
		return MovementListOutput{}, persistenceFailure(u.log, "inventory", "ListMovements", map[string]any{"product_id": productID}, true, err)
	}
	if !actor.CanManage(p.VendorID) {
		return MovementListOutput{}, notFoundError("product not found")
	}

	items, total, err := u.inventory.ListMovements(ctx, repo.MovementListQuery{
		ProductID: productID,
		Limit:     limit,
		Offset:    (page - 1) * limit,
	})
	if err != nil {
		return MovementListOutput{}, persistenceFailure(u.log, "inventory", "ListMovements", map[string]any{"product_id": productID}, true, err)
	}
	return MovementListOutput{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (u *InventoryUsecase) publishMovements(ctx context.Context, ms ...model.InventoryMovement) {
	publishMovements(ctx, u.publisher, u.log, "inventory", ms...)
}

// best effort（失敗はログだけ）
func publishMovements(ctx context.Context, p events.Publisher, log logrus.FieldLogger, module string, ms ...model.InventoryMovement) {
	evs := make([]events.Event, 0, len(ms))
	for _, m := range ms {
		ev, err := events.InventoryMoved(m)
		if err != nil {
			log.WithError(err).WithField("module", module).Warn("build inventory event")
			continue
		}
		evs = append(evs, ev)
	}
	if err := p.Publish(ctx, evs...); err != nil {
		log.WithError(err).WithFields(logrus.Fields{"module": module, "events": len(evs)}).Warn("publish inventory events")
	}
}

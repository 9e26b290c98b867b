package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"marketplace/internal/domain/model"
	"marketplace/internal/infra/events"
	"marketplace/internal/metrics"
	repo "marketplace/internal/repository"
)

type AdminOrderUsecase struct {
	tx        repo.TransactionManager
	orders    repo.OrderRepository
	items     repo.OrderItemRepository
	publisher events.Publisher
	metrics   *metrics.Registry
	log       logrus.FieldLogger
}

func NewAdminOrderUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	items repo.OrderItemRepository,
	publisher events.Publisher,
	m *metrics.Registry,
	log logrus.FieldLogger,
) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, orders: orders, items: items, publisher: publisher, metrics: m, log: log}
}

type AdminUpdateOrderStatusInput struct {
	Status string
}

type AdminUpdatePaymentStatusInput struct {
	PaymentStatus string
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (OrderListOutput, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return OrderListOutput{}, validationError("invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return OrderListOutput{}, validationError("invalid limit")
	}
	if f.Status != "" {
		if _, ok := model.ParseOrderStatus(f.Status); !ok {
			return OrderListOutput{}, validationError("invalid status")
		}
	}
	if f.PaymentStatus != "" {
		if _, ok := model.ParsePaymentStatus(f.PaymentStatus); !ok {
			return OrderListOutput{}, validationError("invalid payment_status")
		}
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return OrderListOutput{}, validationError("from must be <= to")
	}

	orders, total, err := u.orders.ListAdmin(ctx, f)
	if err != nil {
		return OrderListOutput{}, persistenceFailure(u.log, "admin_order", "List", nil, true, err)
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items, err := u.items.ListByOrderID(ctx, o.ID)
		if err != nil {
			return OrderListOutput{}, persistenceFailure(u.log, "admin_order", "List", map[string]any{"order_id": o.ID}, true, err)
		}
		outs = append(outs, toOrderOutput(o, items))
	}
	return OrderListOutput{Items: outs, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// ステータス更新（cancelledなら在庫戻し）
// 割引コードの使用回数は戻さない
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actor Actor, orderID int64, in AdminUpdateOrderStatusInput) (OrderOutput, error) {
	if orderID <= 0 {
		return OrderOutput{}, validationError("invalid id")
	}
	newStatus, ok := model.ParseOrderStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	if !ok {
		return OrderOutput{}, validationError("invalid status")
	}

	var out OrderOutput
	var changed *model.Order
	var movements []model.InventoryMovement

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		changed, movements = nil, nil

		// 注文取得
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundError("not found")
		}
		if err != nil {
			return err
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return err
		}

		// すでに同じなら何もしない（200）
		if o.Status == newStatus {
			out = toOrderOutput(o, items)
			return nil
		}
		if !o.Status.CanTransitionTo(newStatus) {
			return validationError(fmt.Sprintf("cannot change %s order to %s", o.Status, newStatus))
		}

		// cancelledのときだけ在庫戻し
		if newStatus == model.OrderStatusCancelled && o.Status.Restockable() {
			for _, it := range items {
				p, err := r.Products().FindByID(ctx, it.ProductID)
				if errors.Is(err, repo.ErrNotFound) {
					// 削除済みの商品は戻さない
					continue
				}
				if err != nil {
					return err
				}
				if !p.TrackInventory {
					continue
				}
				m, err := recordMovement(ctx, r, it.ProductID, it.Quantity, nil, model.InventoryMovement{
					MovementType:  model.MovementCancellation,
					ReferenceType: "order",
					ReferenceID:   o.OrderNumber,
					Notes:         "order cancelled",
					CreatedBy:     actor.ID,
				})
				if errors.Is(err, repo.ErrConflict) {
					return conflictError("stock changed concurrently, retry")
				}
				if err != nil {
					return err
				}
				movements = append(movements, m)
			}
		}

		// ステータス更新
		before := o
		if err := r.Orders().UpdateStatus(ctx, orderID, newStatus); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFoundError("not found")
			}
			return err
		}
		o.Status = newStatus

		// 監査ログ（UPDATE_ORDER_STATUS）
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorID:      actor.ID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   strconv.FormatInt(orderID, 10),
			BeforeJSON:   `{"status":"` + string(before.Status) + `"}`,
			AfterJSON:    `{"status":"` + string(newStatus) + `"}`,
			CreatedAt:    time.Now(),
		}); err != nil {
			return err
		}

		out = toOrderOutput(o, items)
		changed = &o
		return nil
	})
	if err != nil {
		return OrderOutput{}, wrapTxError(u.log, "admin_order", "UpdateStatus", map[string]any{"order_id": orderID, "status": newStatus}, err)
	}

	if changed != nil {
		for _, m := range movements {
			u.metrics.InventoryAdjustments.WithLabelValues(string(m.MovementType)).Inc()
		}
		u.publishStatus(ctx, *changed)
		publishMovements(ctx, u.publisher, u.log, "admin_order", movements...)
	}
	return out, nil
}

func (u *AdminOrderUsecase) UpdatePaymentStatus(ctx context.Context, actor Actor, orderID int64, in AdminUpdatePaymentStatusInput) (OrderOutput, error) {
	if orderID <= 0 {
		return OrderOutput{}, validationError("invalid id")
	}
	newStatus, ok := model.ParsePaymentStatus(strings.ToLower(strings.TrimSpace(in.PaymentStatus)))
	if !ok {
		return OrderOutput{}, validationError("invalid payment_status")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundError("not found")
		}
		if err != nil {
			return err
		}
		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return err
		}

		if o.PaymentStatus == newStatus {
			out = toOrderOutput(o, items)
			return nil
		}
		if !o.PaymentStatus.CanTransitionTo(newStatus) {
			return validationError(fmt.Sprintf("cannot change payment %s to %s", o.PaymentStatus, newStatus))
		}

		before := o.PaymentStatus
		if err := r.Orders().UpdatePaymentStatus(ctx, orderID, newStatus); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFoundError("not found")
			}
			return err
		}
		o.PaymentStatus = newStatus

		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorID:      actor.ID,
			Action:       model.AuditActionUpdatePaymentStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   strconv.FormatInt(orderID, 10),
			BeforeJSON:   `{"payment_status":"` + string(before) + `"}`,
			AfterJSON:    `{"payment_status":"` + string(newStatus) + `"}`,
			CreatedAt:    time.Now(),
		}); err != nil {
			return err
		}

		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, wrapTxError(u.log, "admin_order", "UpdatePaymentStatus", map[string]any{"order_id": orderID, "payment_status": newStatus}, err)
	}
	return out, nil
}

func (u *AdminOrderUsecase) publishStatus(ctx context.Context, o model.Order) {
	ev, err := events.OrderStatusChanged(o)
	if err != nil {
		u.log.WithError(err).Warn("build order status event")
		return
	}
	if err := u.publisher.Publish(ctx, ev); err != nil {
		u.log.WithError(err).WithField("order_number", o.OrderNumber).Warn("publish order status event")
	}
}

// 期間パラメータでtime.Timeが必要なら、handlerでtime.Parseしてここに入れる
func ParseDateTimeRFC3339(s string) (*time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}

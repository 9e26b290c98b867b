package usecase

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marketplace/internal/domain/model"
	"marketplace/internal/domain/pricing"
	"marketplace/internal/infra/events"
	"marketplace/internal/infra/lock"
	"marketplace/internal/metrics"
	repo "marketplace/internal/repository"
)

const checkoutLockTTL = 30 * time.Second

type OrderUsecase struct {
	tx         repo.TransactionManager
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	pricing    *PricingUsecase
	locker     lock.Locker
	publisher  events.Publisher
	metrics    *metrics.Registry
	log        logrus.FieldLogger
	now        func() time.Time
}

func NewOrderUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	orderItems repo.OrderItemRepository,
	pricer *PricingUsecase,
	locker lock.Locker,
	publisher events.Publisher,
	m *metrics.Registry,
	log logrus.FieldLogger,
) *OrderUsecase {
	return &OrderUsecase{
		tx:         tx,
		orders:     orders,
		orderItems: orderItems,
		pricing:    pricer,
		locker:     locker,
		publisher:  publisher,
		metrics:    m,
		log:        log,
		now:        time.Now,
	}
}

type PlaceOrderInput struct {
	Lines          []pricing.CartLine
	DiscountCode   string
	ShippingMethod string
	IdempotencyKey string
}

type OrderItemOutput struct {
	ProductID   int64  `json:"product_id"`
	VendorID    string `json:"vendor_id"`
	ProductName string `json:"product_name"`
	ProductSKU  string `json:"product_sku"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int64  `json:"quantity"`
	TotalAmount int64  `json:"total_amount"`
}

type OrderOutput struct {
	ID             int64             `json:"id"`
	OrderNumber    string            `json:"order_number"`
	CustomerID     string            `json:"customer_id"`
	Subtotal       int64             `json:"subtotal"`
	DiscountAmount int64             `json:"discount_amount"`
	DiscountCode   string            `json:"discount_code,omitempty"`
	ShippingMethod string            `json:"shipping_method"`
	ShippingAmount int64             `json:"shipping_amount"`
	TaxAmount      int64             `json:"tax_amount"`
	TotalAmount    int64             `json:"total_amount"`
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	PaymentStatus  string            `json:"payment_status"`
	CreatedAt      time.Time         `json:"created_at"`
	Items          []OrderItemOutput `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// 注文確定
// 価格再計算・割引使用回数・在庫減算・注文作成を1つのTxで行う
func (u *OrderUsecase) PlaceOrder(ctx context.Context, customerID string, in PlaceOrderInput) (OrderOutput, error) {
	start := u.now()
	defer func() { u.metrics.CheckoutDurationSec.Observe(time.Since(start).Seconds()) }()

	out, placed, err := u.placeOrder(ctx, customerID, in)
	if err != nil {
		if he, ok := AsHTTPError(err); ok {
			u.metrics.CheckoutFailures.WithLabelValues(string(he.Kind)).Inc()
		}
		return OrderOutput{}, err
	}
	if placed != nil {
		u.metrics.OrdersPlaced.Inc()
		if placed.order.DiscountCode != "" {
			u.metrics.DiscountRedemptions.Inc()
		}
		u.publishPlaced(ctx, *placed)
	}
	return out, nil
}

// commit後に流すもの
type placedOrder struct {
	order     model.Order
	items     []model.OrderItem
	movements []model.InventoryMovement
}

func (u *OrderUsecase) placeOrder(ctx context.Context, customerID string, in PlaceOrderInput) (OrderOutput, *placedOrder, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return OrderOutput{}, nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" || len(key) > 255 {
		return OrderOutput{}, nil, validationError("invalid idempotency_key")
	}
	req, err := normalizeCart(QuoteInput{Lines: in.Lines, DiscountCode: in.DiscountCode, ShippingMethod: in.ShippingMethod})
	if err != nil {
		return OrderOutput{}, nil, err
	}

	// 二重送信をまとめる（Redisがなければ何もしない）
	lk, err := u.locker.Obtain(ctx, "checkout:"+customerID+":"+key, checkoutLockTTL)
	if errors.Is(err, lock.ErrNotObtained) {
		return OrderOutput{}, nil, conflictError("checkout already in progress")
	}
	if err != nil {
		// ロックが取れなくてもTxと一意制約で守れるので続ける
		u.log.WithError(err).WithField("customer_id", customerID).Warn("checkout lock unavailable; proceeding without lock")
	} else {
		defer func() {
			if rerr := lk.Release(context.WithoutCancel(ctx)); rerr != nil {
				u.log.WithError(rerr).Warn("release checkout lock")
			}
		}()
	}

	var out OrderOutput
	var placed *placedOrder
	details := map[string]any{"customer_id": customerID, "idempotency_key": key}

	//注文処理はトランザクション
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		placed = nil

		// 同じキーなら同じ結果
		existing, found, err := r.Orders().FindByIdempotencyKey(ctx, customerID, key)
		if err != nil {
			return err
		}
		if found {
			items, err := r.OrderItems().ListByOrderID(ctx, existing.ID)
			if err != nil {
				return err
			}
			out = toOrderOutput(existing, items)
			return nil
		}

		//Tx内で価格を再計算
		priced, err := u.pricing.priceWith(ctx, r.Products(), r.DiscountCodes(), req)
		if err != nil {
			return err
		}
		q := priced.quote
		orderNumber := newOrderNumber(u.now())

		//割引コードの使用回数（上限チェック付き）
		if priced.discount != nil {
			err := r.DiscountCodes().IncrementUsageIfAvailable(ctx, priced.discount.Code)
			if errors.Is(err, repo.ErrConflict) {
				return conflictError("discount code is no longer available")
			}
			if err != nil {
				return err
			}
		}

		//在庫減算（商品ID順にロックしてデッドロックを避ける）
		lines := append([]pricing.Line(nil), priced.lines...)
		sort.Slice(lines, func(i, j int) bool { return lines[i].Product.ID < lines[j].Product.ID })

		zero := int64(0)
		movements := make([]model.InventoryMovement, 0, len(lines))
		for _, l := range lines {
			if !l.Product.TrackInventory {
				continue
			}
			m, err := recordMovement(ctx, r, l.Product.ID, -l.Quantity, &zero, model.InventoryMovement{
				MovementType:  model.MovementSale,
				ReferenceType: "order",
				ReferenceID:   orderNumber,
				Notes:         "checkout",
				CreatedBy:     customerID,
			})
			if errors.Is(err, repo.ErrFloorViolation) {
				return insufficientStockError(l.Product.Name)
			}
			if errors.Is(err, repo.ErrNotFound) {
				return notFoundError("product not found")
			}
			if errors.Is(err, repo.ErrConflict) {
				return conflictError("stock changed concurrently, retry")
			}
			if err != nil {
				return err
			}
			movements = append(movements, m)
		}

		// 注文作成
		order := model.Order{
			OrderNumber:    orderNumber,
			CustomerID:     customerID,
			IdempotencyKey: key,
			Subtotal:       q.Subtotal,
			DiscountAmount: q.DiscountAmount,
			DiscountCode:   q.DiscountCode,
			ShippingMethod: q.ShippingMethod,
			ShippingAmount: q.ShippingAmount,
			TaxAmount:      q.TaxAmount,
			TotalAmount:    q.TotalAmount,
			Currency:       q.Currency,
			Status:         model.OrderStatusPending,
			PaymentStatus:  model.PaymentStatusPending,
		}
		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			return err
		}
		order.ID = orderID
		order.CreatedAt = u.now()

		//注文明細一括作成
		if err := r.OrderItems().CreateBulk(ctx, orderID, q.Items); err != nil {
			return err
		}

		out = toOrderOutput(order, q.Items)
		placed = &placedOrder{order: order, items: q.Items, movements: movements}
		return nil
	})

	if errors.Is(err, repo.ErrDuplicate) {
		//競合（同時で同じキーが入った等）はTxを戻したあと検索して同じ結果を返す
		return u.findExisting(ctx, customerID, key, details)
	}
	if err != nil {
		return OrderOutput{}, nil, wrapTxError(u.log, "order", "PlaceOrder", details, err)
	}
	return out, placed, nil
}

func (u *OrderUsecase) findExisting(ctx context.Context, customerID, key string, details map[string]any) (OrderOutput, *placedOrder, error) {
	o, found, err := u.orders.FindByIdempotencyKey(ctx, customerID, key)
	if err != nil {
		return OrderOutput{}, nil, persistenceFailure(u.log, "order", "PlaceOrder", details, true, err)
	}
	if !found {
		// order_numberの衝突など
		return OrderOutput{}, nil, conflictError("order conflict, retry")
	}
	items, err := u.orderItems.ListByOrderID(ctx, o.ID)
	if err != nil {
		return OrderOutput{}, nil, persistenceFailure(u.log, "order", "PlaceOrder", details, true, err)
	}
	return toOrderOutput(o, items), nil, nil
}

func (u *OrderUsecase) publishPlaced(ctx context.Context, p placedOrder) {
	ev, err := events.OrderPlaced(p.order, p.items)
	if err != nil {
		u.log.WithError(err).Warn("build order event")
		return
	}
	if err := u.publisher.Publish(ctx, ev); err != nil {
		u.log.WithError(err).WithField("order_number", p.order.OrderNumber).Warn("publish order event")
	}
	publishMovements(ctx, u.publisher, u.log, "order", p.movements...)
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, customerID string, page, limit int) (OrderListOutput, error) {
	if strings.TrimSpace(customerID) == "" {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		return OrderListOutput{}, validationError("invalid page")
	}
	if limit < 1 || limit > 100 {
		return OrderListOutput{}, validationError("invalid limit")
	}

	orders, total, err := u.orders.ListByCustomerID(ctx, customerID, page, limit)
	if err != nil {
		return OrderListOutput{}, persistenceFailure(u.log, "order", "ListMyOrders", nil, true, err)
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items, err := u.orderItems.ListByOrderID(ctx, o.ID)
		if err != nil {
			return OrderListOutput{}, persistenceFailure(u.log, "order", "ListMyOrders", map[string]any{"order_id": o.ID}, true, err)
		}
		outs = append(outs, toOrderOutput(o, items))
	}
	return OrderListOutput{Items: outs, Total: total, Page: page, Limit: limit}, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, customerID string, orderID int64) (OrderOutput, error) {
	if strings.TrimSpace(customerID) == "" {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, validationError("invalid id")
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return OrderOutput{}, notFoundError("not found")
	}
	if err != nil {
		return OrderOutput{}, persistenceFailure(u.log, "order", "GetMyOrderDetail", map[string]any{"order_id": orderID}, true, err)
	}
	if o.CustomerID != customerID {
		//他人の注文は「存在しない扱い」にする
		return OrderOutput{}, notFoundError("not found")
	}

	items, err := u.orderItems.ListByOrderID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, persistenceFailure(u.log, "order", "GetMyOrderDetail", map[string]any{"order_id": orderID}, true, err)
	}
	return toOrderOutput(o, items), nil
}

// BWW-YYYYMMDD-XXXXXXXX
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "BWW-" + now.UTC().Format("20060102") + "-" + suffix
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID:   it.ProductID,
			VendorID:    it.VendorID,
			ProductName: it.ProductName,
			ProductSKU:  it.ProductSKU,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			TotalAmount: it.TotalAmount,
		})
	}

	return OrderOutput{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		CustomerID:     o.CustomerID,
		Subtotal:       o.Subtotal,
		DiscountAmount: o.DiscountAmount,
		DiscountCode:   o.DiscountCode,
		ShippingMethod: string(o.ShippingMethod),
		ShippingAmount: o.ShippingAmount,
		TaxAmount:      o.TaxAmount,
		TotalAmount:    o.TotalAmount,
		Currency:       o.Currency,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		CreatedAt:      o.CreatedAt,
		Items:          outItems,
	}
}

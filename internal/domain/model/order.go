package model

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
)

// 注文ヘッダ
// TotalAmount = Subtotal - DiscountAmount + ShippingAmount + TaxAmount
type Order struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber    string         `gorm:"type:varchar(40);not null;uniqueIndex" json:"order_number"`
	CustomerID     string         `gorm:"type:varchar(64);not null;index;uniqueIndex:idx_orders_customer_idem" json:"customer_id"`
	IdempotencyKey string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_orders_customer_idem" json:"-"`
	Subtotal       int64          `gorm:"not null" json:"subtotal"`
	DiscountAmount int64          `gorm:"not null;default:0" json:"discount_amount"`
	DiscountCode   string         `gorm:"type:varchar(64)" json:"discount_code,omitempty"`
	ShippingMethod ShippingMethod `gorm:"type:varchar(20);not null" json:"shipping_method"`
	ShippingAmount int64          `gorm:"not null" json:"shipping_amount"`
	TaxAmount      int64          `gorm:"not null" json:"tax_amount"`
	TotalAmount    int64          `gorm:"not null" json:"total_amount"`
	Currency       string         `gorm:"type:varchar(3);not null" json:"currency"`
	Status         OrderStatus    `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentStatus  PaymentStatus  `gorm:"type:varchar(20);not null;index" json:"payment_status"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// キャンセル時に在庫を戻してよい状態か
func (s OrderStatus) Restockable() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing:
		return true
	}
	return false
}

// 終端
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusDelivered
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return OrderStatus(s), true
	}
	return "", false
}

func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	switch PaymentStatus(s) {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return PaymentStatus(s), true
	}
	return "", false
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, n := range orderTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusFailed:  {PaymentStatusPending, PaymentStatusPaid},
	PaymentStatusPaid:    {PaymentStatusRefunded},
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, n := range paymentTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

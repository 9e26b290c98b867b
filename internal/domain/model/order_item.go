package model

import "time"

// 注文明細
// 商品名・SKU・単価は注文時点のスナップショット（後から商品を編集しても変わらない）
type OrderItem struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     int64     `gorm:"not null;index" json:"order_id"`
	ProductID   int64     `gorm:"not null;index" json:"product_id"`
	VendorID    string    `gorm:"type:varchar(64);not null;index" json:"vendor_id"`
	ProductName string    `gorm:"type:varchar(255);not null" json:"product_name"`
	ProductSKU  string    `gorm:"column:product_sku;type:varchar(100);not null" json:"product_sku"`
	UnitPrice   int64     `gorm:"not null" json:"unit_price"`
	Quantity    int64     `gorm:"not null" json:"quantity"`
	TotalAmount int64     `gorm:"not null" json:"total_amount"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

// 商品からスナップショットを作る
// price*qtyがint64を超えるとErrAmountOutOfRange
func NewOrderItemSnapshot(p Product, qty int64) (OrderItem, error) {
	total, err := CheckedMul(p.Price, qty)
	if err != nil {
		return OrderItem{}, err
	}
	return OrderItem{
		ProductID:   p.ID,
		VendorID:    p.VendorID,
		ProductName: p.Name,
		ProductSKU:  p.SKU,
		UnitPrice:   p.Price,
		Quantity:    qty,
		TotalAmount: total,
	}, nil
}

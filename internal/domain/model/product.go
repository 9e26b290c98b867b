package model

import (
	"time"

	"gorm.io/gorm"
)

// 出品者（vendor）ごとの商品
// stock_quantityは在庫調整（InventoryMovement）経由でしか変えない
type Product struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	VendorID       string         `gorm:"type:varchar(64);not null;index;uniqueIndex:idx_products_vendor_sku" json:"vendor_id"`
	Name           string         `gorm:"type:varchar(255);not null" json:"name"`
	SKU            string         `gorm:"column:sku;type:varchar(100);not null;uniqueIndex:idx_products_vendor_sku" json:"sku"`
	Description    string         `gorm:"type:text" json:"description"`
	Price          int64          `gorm:"not null" json:"price"`
	StockQuantity  int64          `gorm:"not null;default:0" json:"stock_quantity"`
	TrackInventory bool           `gorm:"not null" json:"track_inventory"`
	IsActive       bool           `gorm:"not null" json:"is_active"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// 在庫チェックが必要な数量か
func (p Product) HasStockFor(qty int64) bool {
	if !p.TrackInventory {
		return true
	}
	return p.StockQuantity >= qty
}

package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypePercentage  DiscountType = "percentage"
	DiscountTypeFixedAmount DiscountType = "fixed_amount"
)

// 割引コード
// percentageのときDiscountValueは%（小数可）、fixed_amountのときは最小通貨単位
type DiscountCode struct {
	ID                    int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Code                  string          `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`
	DiscountType          DiscountType    `gorm:"type:varchar(20);not null" json:"discount_type"`
	DiscountValue         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"discount_value"`
	MaximumDiscountAmount *int64          `json:"maximum_discount_amount,omitempty"`
	UsageLimit            *int64          `json:"usage_limit,omitempty"`
	UsageCount            int64           `gorm:"not null;default:0" json:"usage_count"`
	IsActive              bool            `gorm:"not null;index" json:"is_active"`
	CreatedAt             time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 利用上限に達しているか
func (d DiscountCode) Exhausted() bool {
	return d.UsageLimit != nil && d.UsageCount >= *d.UsageLimit
}

// コードは大文字で比較する
func NormalizeDiscountCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Package pricing は注文金額の計算だけを行う（DBアクセスなし）。
// 金額はすべて最小通貨単位（セント）の int64。
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"marketplace/internal/domain/model"
)

var hundred = decimal.NewFromInt(100)

// 1行（重複行の合算後も含む）の数量上限
const MaxLineQuantity = 100000

// 税率・送料など
type Rules struct {
	TaxRate          decimal.Decimal
	ShippingStandard int64
	ShippingExpress  int64
	Currency         string

	// trueなら定額割引を小計で止める（既定は止めない）
	ClampFixedDiscount bool
}

// カートの1行（永続化しない）
type CartLine struct {
	ProductID int64
	Quantity  int64
}

// 価格計算に使う1行（商品は呼び出し側で取得済み）
type Line struct {
	Product  model.Product
	Quantity int64
}

type Quote struct {
	Subtotal       int64
	DiscountAmount int64
	DiscountCode   string
	ShippingMethod model.ShippingMethod
	ShippingAmount int64
	TaxAmount      int64
	TotalAmount    int64
	Currency       string
	Items          []model.OrderItem
}

// 在庫不足（1行でもあれば計算全体を中止）
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int64
	Available   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.ProductName)
}

// 同じ商品の行は数量を合算する（最初に出てきた順を保つ）
func MergeLines(lines []CartLine) []CartLine {
	idx := make(map[int64]int, len(lines))
	out := make([]CartLine, 0, len(lines))
	for _, l := range lines {
		if i, ok := idx[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

// express以外は標準
func (r Rules) ShippingAmount(method model.ShippingMethod) int64 {
	if method == model.ShippingExpress {
		return r.ShippingExpress
	}
	return r.ShippingStandard
}

// round_half_up(taxable * rate)
// 課税対象が0以下（定額割引が小計を超えた場合）は税0。マイナスの税は作らない
func (r Rules) Tax(taxable int64) int64 {
	if taxable <= 0 {
		return 0
	}
	return decimal.NewFromInt(taxable).Mul(r.TaxRate).Round(0).IntPart()
}

// 割引額
// 無効・上限到達のコードは0
// 定率はsubtotalを超えない。定額はClampFixedDiscountのときだけsubtotalで止める
func (r Rules) DiscountAmount(d *model.DiscountCode, subtotal int64) int64 {
	if d == nil || !d.IsActive || d.Exhausted() || subtotal <= 0 {
		return 0
	}

	var amount int64
	switch d.DiscountType {
	case model.DiscountTypePercentage:
		amount = decimal.NewFromInt(subtotal).Mul(d.DiscountValue).Div(hundred).Round(0).IntPart()
		if d.MaximumDiscountAmount != nil && amount > *d.MaximumDiscountAmount {
			amount = *d.MaximumDiscountAmount
		}
	case model.DiscountTypeFixedAmount:
		n, err := model.ToAmount(d.DiscountValue.Round(0))
		if err != nil {
			return 0
		}
		amount = n
		if r.ClampFixedDiscount && amount > subtotal {
			amount = subtotal
		}
	default:
		return 0
	}

	if amount < 0 {
		return 0
	}
	return amount
}

// 計算本体
// 在庫チェック → 小計 → 割引 → 送料 → 税 → 合計
func (r Rules) Compute(lines []Line, discount *model.DiscountCode, method model.ShippingMethod) (Quote, error) {
	if method == "" {
		method = model.ShippingStandard
	}

	q := Quote{
		ShippingMethod: method,
		Currency:       r.Currency,
		Items:          make([]model.OrderItem, 0, len(lines)),
	}

	for _, l := range lines {
		if !l.Product.HasStockFor(l.Quantity) {
			return Quote{}, &InsufficientStockError{
				ProductID:   l.Product.ID,
				ProductName: l.Product.Name,
				Requested:   l.Quantity,
				Available:   l.Product.StockQuantity,
			}
		}
		item, err := model.NewOrderItemSnapshot(l.Product, l.Quantity)
		if err != nil {
			return Quote{}, err
		}
		if q.Subtotal, err = model.CheckedSum(q.Subtotal, item.TotalAmount); err != nil {
			return Quote{}, err
		}
		q.Items = append(q.Items, item)
	}

	q.DiscountAmount = r.DiscountAmount(discount, q.Subtotal)
	if q.DiscountAmount > 0 {
		q.DiscountCode = discount.Code
	}

	q.ShippingAmount = r.ShippingAmount(method)

	// 定額割引が小計を超えると課税対象・合計はマイナスになりうる
	taxable, err := model.CheckedSum(q.Subtotal, -q.DiscountAmount)
	if err != nil {
		return Quote{}, err
	}
	q.TaxAmount = r.Tax(taxable)
	if q.TotalAmount, err = model.CheckedSum(taxable, q.ShippingAmount, q.TaxAmount); err != nil {
		return Quote{}, err
	}
	return q, nil
}

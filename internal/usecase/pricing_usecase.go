package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"marketplace/internal/config"
	"marketplace/internal/domain/model"
	"marketplace/internal/domain/pricing"
	"marketplace/internal/metrics"
	repo "marketplace/internal/repository"
)

const (
	maxCartLines       = 100
	maxDiscountCodeLen = 64
)

type PricingUsecase struct {
	products  repo.ProductRepository
	discounts repo.DiscountCodeRepository
	rules     pricing.Rules
	policy    string
	metrics   *metrics.Registry
	log       logrus.FieldLogger
}

// DI
func NewPricingUsecase(
	products repo.ProductRepository,
	discounts repo.DiscountCodeRepository,
	cfg config.PricingConfig,
	m *metrics.Registry,
	log logrus.FieldLogger,
) *PricingUsecase {
	return &PricingUsecase{
		products:  products,
		discounts: discounts,
		rules: pricing.Rules{
			TaxRate:          cfg.TaxRate,
			ShippingStandard: cfg.ShippingStandardAmount,
			ShippingExpress:  cfg.ShippingExpressAmount,
			Currency:         cfg.Currency,

			ClampFixedDiscount: cfg.FixedDiscountPolicy == config.FixedDiscountClamp,
		},
		policy:  cfg.MissingProductPolicy,
		metrics: m,
		log:     log,
	}
}

type QuoteInput struct {
	Lines          []pricing.CartLine
	DiscountCode   string
	ShippingMethod string
}

type QuoteItemOutput struct {
	ProductID   int64  `json:"product_id"`
	VendorID    string `json:"vendor_id"`
	ProductName string `json:"product_name"`
	ProductSKU  string `json:"product_sku"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int64  `json:"quantity"`
	TotalAmount int64  `json:"total_amount"`
}

type QuoteOutput struct {
	Subtotal       int64             `json:"subtotal"`
	DiscountAmount int64             `json:"discount_amount"`
	DiscountCode   string            `json:"discount_code,omitempty"`
	ShippingMethod string            `json:"shipping_method"`
	ShippingAmount int64             `json:"shipping_amount"`
	TaxAmount      int64             `json:"tax_amount"`
	TotalAmount    int64             `json:"total_amount"`
	Currency       string            `json:"currency"`
	Items          []QuoteItemOutput `json:"items"`
}

// 検証済みの入力
type cartRequest struct {
	lines    []pricing.CartLine
	code     string
	shipping model.ShippingMethod
}

// 計算結果（チェックアウトで在庫を減らすので商品も持つ）
type pricedCart struct {
	quote    pricing.Quote
	lines    []pricing.Line
	discount *model.DiscountCode
}

// 見積もり（副作用なし）
func (u *PricingUsecase) Price(ctx context.Context, in QuoteInput) (QuoteOutput, error) {
	req, err := normalizeCart(in)
	if err != nil {
		return QuoteOutput{}, err
	}

	priced, err := u.priceWith(ctx, u.products, u.discounts, req)
	if err != nil {
		if _, ok := AsHTTPError(err); !ok {
			return QuoteOutput{}, persistenceFailure(u.log, "pricing", "Price", nil, true, err)
		}
		return QuoteOutput{}, err
	}

	u.metrics.QuotesTotal.Inc()
	return toQuoteOutput(priced.quote), nil
}

func normalizeCart(in QuoteInput) (cartRequest, error) {
	if len(in.Lines) == 0 {
		return cartRequest{}, validationError("cart is empty")
	}
	if len(in.Lines) > maxCartLines {
		return cartRequest{}, validationError(fmt.Sprintf("too many lines (max %d)", maxCartLines))
	}
	for _, l := range in.Lines {
		if l.ProductID <= 0 {
			return cartRequest{}, validationError("invalid product_id")
		}
		if l.Quantity <= 0 {
			return cartRequest{}, validationError("quantity must be > 0")
		}
		if l.Quantity > pricing.MaxLineQuantity {
			return cartRequest{}, validationError(fmt.Sprintf("quantity must be <= %d", pricing.MaxLineQuantity))
		}
	}
	// 重複行の合算後も上限内か
	lines := pricing.MergeLines(in.Lines)
	for _, l := range lines {
		if l.Quantity > pricing.MaxLineQuantity {
			return cartRequest{}, validationError(fmt.Sprintf("quantity for product %d must be <= %d", l.ProductID, pricing.MaxLineQuantity))
		}
	}

	var method model.ShippingMethod
	switch strings.ToLower(strings.TrimSpace(in.ShippingMethod)) {
	case "", string(model.ShippingStandard):
		method = model.ShippingStandard
	case string(model.ShippingExpress):
		method = model.ShippingExpress
	default:
		return cartRequest{}, validationError("invalid shipping_method")
	}

	code := model.NormalizeDiscountCode(in.DiscountCode)
	if len(code) > maxDiscountCodeLen {
		return cartRequest{}, validationError("discount_code too long")
	}

	return cartRequest{
		lines:    lines,
		code:     code,
		shipping: method,
	}, nil
}

// 見積もりとチェックアウトの共通部分
// チェックアウトではTx内のrepoを渡す
func (u *PricingUsecase) priceWith(ctx context.Context, products repo.ProductRepository, discounts repo.DiscountCodeRepository, req cartRequest) (pricedCart, error) {
	ids := make([]int64, 0, len(req.lines))
	for _, l := range req.lines {
		ids = append(ids, l.ProductID)
	}
	found, err := products.FindByIDs(ctx, ids)
	if err != nil {
		return pricedCart{}, err
	}
	byID := make(map[int64]model.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	lines := make([]pricing.Line, 0, len(req.lines))
	for _, l := range req.lines {
		p, ok := byID[l.ProductID]
		if !ok || !p.IsActive {
			if u.policy == config.MissingProductSkip {
				continue
			}
			return pricedCart{}, notFoundError(fmt.Sprintf("product %d not found", l.ProductID))
		}
		lines = append(lines, pricing.Line{Product: p, Quantity: l.Quantity})
	}
	if len(lines) == 0 {
		return pricedCart{}, validationError("cart is empty")
	}

	var discount *model.DiscountCode
	if req.code != "" {
		d, err := discounts.FindActiveByCode(ctx, req.code)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			// 存在しない・無効なコードは割引0
		case err != nil:
			return pricedCart{}, err
		default:
			discount = &d
		}
	}

	q, err := u.rules.Compute(lines, discount, req.shipping)
	if err != nil {
		var ise *pricing.InsufficientStockError
		if errors.As(err, &ise) {
			return pricedCart{}, insufficientStockError(ise.ProductName)
		}
		if errors.Is(err, model.ErrAmountOutOfRange) {
			return pricedCart{}, validationError("order amount out of range")
		}
		return pricedCart{}, err
	}
	if q.DiscountAmount == 0 {
		discount = nil
	}

	return pricedCart{quote: q, lines: lines, discount: discount}, nil
}

func toQuoteOutput(q pricing.Quote) QuoteOutput {
	items := make([]QuoteItemOutput, 0, len(q.Items))
	for _, it := range q.Items {
		items = append(items, QuoteItemOutput{
			ProductID:   it.ProductID,
			VendorID:    it.VendorID,
			ProductName: it.ProductName,
			ProductSKU:  it.ProductSKU,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			TotalAmount: it.TotalAmount,
		})
	}
	return QuoteOutput{
		Subtotal:       q.Subtotal,
		DiscountAmount: q.DiscountAmount,
		DiscountCode:   q.DiscountCode,
		ShippingMethod: string(q.ShippingMethod),
		ShippingAmount: q.ShippingAmount,
		TaxAmount:      q.TaxAmount,
		TotalAmount:    q.TotalAmount,
		Currency:       q.Currency,
		Items:          items,
	}
}

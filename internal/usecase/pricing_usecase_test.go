package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace/internal/config"
	"marketplace/internal/domain/model"
	"marketplace/internal/domain/pricing"
	"marketplace/internal/metrics"
	repo "marketplace/internal/repository"
	"marketplace/internal/usecase"
)

func newPricingUC(p *ProductRepoMock, d *DiscountRepoMock, cfg config.PricingConfig) *usecase.PricingUsecase {
	return usecase.NewPricingUsecase(p, d, cfg, metrics.NewRegistry(), testLogger())
}

func productA() model.Product {
	return model.Product{
		ID: 1, VendorID: "vendor-1", Name: "Product A", SKU: "A-1",
		Price: 10000, StockQuantity: 10, TrackInventory: true, IsActive: true,
	}
}

func TestPricingUsecase_Price_WorkedExample(t *testing.T) {
	ctx := context.Background()
	pRepo := new(ProductRepoMock)
	dRepo := new(DiscountRepoMock)

	pRepo.On("FindByIDs", mock.Anything, []int64{1}).Return([]model.Product{productA()}, nil)
	dRepo.On("FindActiveByCode", mock.Anything, "SAVE10").Return(model.DiscountCode{
		Code: "SAVE10", DiscountType: model.DiscountTypePercentage, DiscountValue: decimal.NewFromInt(10), IsActive: true,
	}, nil)

	uc := newPricingUC(pRepo, dRepo, testPricingConfig())
	out, err := uc.Price(ctx, usecase.QuoteInput{
		Lines:          []pricing.CartLine{{ProductID: 1, Quantity: 2}},
		DiscountCode:   " save10 ",
		ShippingMethod: "standard",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(20000), out.Subtotal)
	assert.Equal(t, int64(2000), out.DiscountAmount)
	assert.Equal(t, "SAVE10", out.DiscountCode)
	assert.Equal(t, int64(9900), out.ShippingAmount)
	assert.Equal(t, int64(2700), out.TaxAmount)
	assert.Equal(t, int64(30600), out.TotalAmount)
	assert.Equal(t, "ZAR", out.Currency)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "A-1", out.Items[0].ProductSKU)

	// 見積もりでは使用回数を増やさない
	dRepo.AssertNotCalled(t, "IncrementUsageIfAvailable", mock.Anything, mock.Anything)
	pRepo.AssertExpectations(t)
	dRepo.AssertExpectations(t)
}

func TestPricingUsecase_Price_MergesDuplicateLines(t *testing.T) {
	pRepo := new(ProductRepoMock)
	dRepo := new(DiscountRepoMock)
	pRepo.On("FindByIDs", mock.Anything, []int64{1}).Return([]model.Product{productA()}, nil)

	uc := newPricingUC(pRepo, dRepo, testPricingConfig())
	out, err := uc.Price(context.Background(), usecase.QuoteInput{
		Lines: []pricing.CartLine{{ProductID: 1, Quantity: 1}, {ProductID: 1, Quantity: 2}},
	})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, int64(3), out.Items[0].Quantity)
	assert.Equal(t, "standard", out.ShippingMethod)
}

func TestPricingUsecase_Price_Validation(t *testing.T) {
	cases := []struct {
		name string
		in   usecase.QuoteInput
		want string
	}{
		{"empty cart", usecase.QuoteInput{}, "cart is empty"},
		{"bad product id", usecase.QuoteInput{Lines: []pricing.CartLine{{ProductID: 0, Quantity: 1}}}, "invalid product_id"},
		{"zero quantity", usecase.QuoteInput{Lines: []pricing.CartLine{{ProductID: 1, Quantity: 0}}}, "quantity must be > 0"},
		{"quantity over limit", usecase.QuoteInput{Lines: []pricing.CartLine{{ProductID: 1, Quantity: 1844674407370956}}}, "quantity must be <= 100000"},
		{"merged quantity over limit", usecase.QuoteInput{Lines: []pricing.CartLine{{ProductID: 1, Quantity: 60000}, {ProductID: 1, Quantity: 40001}}}, "quantity for product 1 must be <= 100000"},
		{"bad shipping", usecase.QuoteInput{Lines: []pricing.CartLine{{ProductID: 1, Quantity: 1}}, ShippingMethod: "drone"}, "invalid shipping_method"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pRepo := new(ProductRepoMock)
			uc := newPricingUC(pRepo, new(DiscountRepoMock), testPricingConfig())

			_, err := uc.Price(context.Background(), tc.in)
			assertErrContains(t, err, tc.want)
			assertKind(t, err, usecase.KindValidation)
			// 副作用の前に弾く
			pRepo.AssertNotCalled(t, "FindByIDs", mock.Anything, mock.Anything)
		})
	}
}

func TestPricingUsecase_Price_InsufficientStock(t *testing.T) {
	pRepo := new(ProductRepoMock)
	p := productA()
	p.StockQuantity = 1
	pRepo.On("FindByIDs", mock.Anything, []int64{1}).Return([]model.Product{p}, nil)

	uc := newPricingUC(pRepo, new(DiscountRepoMock), testPricingConfig())
	_, err := uc.Price(context.Background(), usecase.QuoteInput{Lines: []pricing.CartLine{{ProductID: 1, Quantity: 2}}})

	he := assertKind(t, err, usecase.KindInsufficientStock)
	assert.Equal(t, 409, he.Status)
	assertErrContains(t, err, "Product A")
}

func TestPricingUsecase_Price_MissingProduct_Reject(t *testing.T) {
	pRepo := new(ProductRepoMock)
	pRepo.On("FindByIDs", mock.Anything, []int64{1, 2}).Return([]model.Product{productA()}, nil)

	uc := newPricingUC(pRepo, new(DiscountRepoMock), testPricingConfig())
	_, err := uc.Price(context.Background(), usecase.QuoteInput{
		Lines: []pricing.CartLine{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 1}},
	})
	assertKind(t, err, usecase.KindNotFound)
	assertErrContains(t, err, "product 2")
}

func TestPricingUsecase_Price_MissingProduct_Skip(t *testing.T) {
	cfg := testPricingConfig()
	cfg.MissingProductPolicy = config.MissingProductSkip

	t.Run("drops the line", func(t *testing.T) {
		pRepo := new(ProductRepoMock)
		pRepo.On("FindByIDs", mock.Anything, []int64{1, 2}).Return([]model.Product{productA()}, nil)

		uc := newPricingUC(pRepo, new(DiscountRepoMock), cfg)
		out, err := uc.Price(context.Background(), usecase.QuoteInput{
			Lines: []pricing.CartLine{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 1}},
		})
		require.NoError(t, err)
		assert.Len(t, out.Items, 1)
	})

	t.Run("all dropped is empty cart", func(t *testing.T) {
		pRepo := new(ProductRepoMock)
		pRepo.On("FindByIDs", mock.Anything, []int64{2}).Return([]model.Product{}, nil)

		uc := newPricingUC(pRepo, new(DiscountRepoMock), cfg)
		_, err := uc.Price(context.Background(), usecase.QuoteInput{Lines: []pricing.CartLine{{ProductID: 2, Quantity: 1}}})
		assertKind(t, err, usecase.KindValidation)
		assertErrContains(t, err, "cart is empty")
	})
}

func TestPricingUsecase_Price_InactiveProductTreatedAsMissing(t *testing.T) {
	pRepo := new(ProductRepoMock)
	p := productA()
	p.IsActive = false
	pRepo.On("FindByIDs", mock.Anything, []int64{1}).Return([]model.Product{p}, nil)

	uc := newPricingUC(pRepo, new(DiscountRepoMock), testPricingConfig())
	_, err := uc.Price(context.Background(), usecase.QuoteInput{Lines: []pricing.CartLine{{ProductID: 1, Quantity: 1}}})
	assertKind(t, err, usecase.KindNotFound)
}

func TestPricingUsecase_Price_UnknownDiscountIsZero(t *testing.T) {
	pRepo := new(ProductRepoMock)
	dRepo := new(DiscountRepoMock)
	pRepo.On("FindByIDs", mock.Anything, []int64{1}).Return([]model.Product{productA()}, nil)
	dRepo.On("FindActiveByCode", mock.Anything, "NOPE").Return(model.DiscountCode{}, repo.ErrNotFound)

	uc := newPricingUC(pRepo, dRepo, testPricingConfig())
	out, err := uc.Price(context.Background(), usecase.QuoteInput{
		Lines:        []pricing.CartLine{{ProductID: 1, Quantity: 1}},
		DiscountCode: "nope",
	})
	require.NoError(t, err)
	assert.Zero(t, out.DiscountAmount)
	assert.Empty(t, out.DiscountCode)
}

func TestPricingUsecase_Price_ExhaustedDiscountIsZero(t *testing.T) {
	pRepo := new(ProductRepoMock)
	dRepo := new(DiscountRepoMock)
	pRepo.On("FindByIDs", mock.Anything, []int64{1}).Return([]model.Product{productA()}, nil)
	dRepo.On("FindActiveByCode", mock.Anything, "ONCE").Return(model.DiscountCode{
		Code: "ONCE", DiscountType: model.DiscountTypeFixedAmount, DiscountValue: decimal.NewFromInt(500),
		UsageLimit: i64(1), UsageCount: 1, IsActive: true,
	}, nil)

	uc := newPricingUC(pRepo, dRepo, testPricingConfig())
	out, err := uc.Price(context.Background(), usecase.QuoteInput{
		Lines:        []pricing.CartLine{{ProductID: 1, Quantity: 1}},
		DiscountCode: "once",
	})
	require.NoError(t, err)
	assert.Zero(t, out.DiscountAmount)
	assert.Empty(t, out.DiscountCode)
}

func TestPricingUsecase_Price_RepositoryFailure(t *testing.T) {
	pRepo := new(ProductRepoMock)
	pRepo.On("FindByIDs", mock.Anything, []int64{1}).Return(nil, errors.New("connection reset"))

	uc := newPricingUC(pRepo, new(DiscountRepoMock), testPricingConfig())
	_, err := uc.Price(context.Background(), usecase.QuoteInput{Lines: []pricing.CartLine{{ProductID: 1, Quantity: 1}}})

	he := assertKind(t, err, usecase.KindPersistenceFailure)
	assert.NotEmpty(t, he.CorrelationID)
	assert.Equal(t, "internal error", he.Message)
	assert.True(t, he.Retryable)
}

func TestPricingUsecase_Price_UntrackedAmountOutOfRange(t *testing.T) {
	pRepo := new(ProductRepoMock)
	p := productA()
	p.TrackInventory = false
	p.Price = 1 << 62
	pRepo.On("FindByIDs", mock.Anything, []int64{1}).Return([]model.Product{p}, nil)

	uc := newPricingUC(pRepo, new(DiscountRepoMock), testPricingConfig())
	_, err := uc.Price(context.Background(), usecase.QuoteInput{Lines: []pricing.CartLine{{ProductID: 1, Quantity: 4}}})

	// 桁あふれした金額を返さない
	assertKind(t, err, usecase.KindValidation)
	assertErrContains(t, err, "order amount out of range")
}

func TestPricingUsecase_Price_FixedDiscountOverSubtotal(t *testing.T) {
	big := model.DiscountCode{
		Code: "BIG", DiscountType: model.DiscountTypeFixedAmount, DiscountValue: decimal.NewFromInt(50000), IsActive: true,
	}
	lines := []pricing.CartLine{{ProductID: 1, Quantity: 1}}

	cases := []struct {
		name         string
		policy       string
		wantDiscount int64
		wantTotal    int64
	}{
		{"uncapped by default", config.FixedDiscountUncapped, 50000, 10000 - 50000 + 9900},
		{"clamped to subtotal", config.FixedDiscountClamp, 10000, 9900},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pRepo := new(ProductRepoMock)
			dRepo := new(DiscountRepoMock)
			pRepo.On("FindByIDs", mock.Anything, []int64{1}).Return([]model.Product{productA()}, nil)
			dRepo.On("FindActiveByCode", mock.Anything, "BIG").Return(big, nil)

			cfg := testPricingConfig()
			cfg.FixedDiscountPolicy = tc.policy
			out, err := newPricingUC(pRepo, dRepo, cfg).Price(context.Background(), usecase.QuoteInput{Lines: lines, DiscountCode: "big"})
			require.NoError(t, err)

			assert.Equal(t, tc.wantDiscount, out.DiscountAmount)
			assert.Equal(t, "BIG", out.DiscountCode)
			assert.Equal(t, int64(0), out.TaxAmount)
			assert.Equal(t, tc.wantTotal, out.TotalAmount)
		})
	}
}

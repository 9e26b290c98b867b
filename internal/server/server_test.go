package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/config"
	"marketplace/internal/domain/model"
	"marketplace/internal/infra/events"
	"marketplace/internal/infra/lock"
	"marketplace/internal/infra/memory"
	"marketplace/internal/logger"
	"marketplace/internal/metrics"
	"marketplace/internal/server"
	"marketplace/internal/usecase"
)

const testSecret = "server-test-secret"

type testApp struct {
	e     *echo.Echo
	store *memory.Store
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret: testSecret,
		Pricing: config.PricingConfig{
			TaxRate:                decimal.RequireFromString("0.15"),
			ShippingStandardAmount: 9900,
			ShippingExpressAmount:  19900,
			Currency:               "ZAR",
			MissingProductPolicy:   config.MissingProductReject,
			FixedDiscountPolicy:    config.FixedDiscountUncapped,
		},
		RateLimit: config.RateLimitConfig{Capacity: 100, TTL: time.Minute, RPS: 100, Burst: 100},
	}
}

func newTestApp(t *testing.T, cfg config.Config) *testApp {
	t.Helper()
	s := memory.NewStore()
	m := metrics.NewRegistry()
	log := logger.NewWithOutput("error", io.Discard)
	pub := events.NoopPublisher{}

	pricer := usecase.NewPricingUsecase(s.Products(), s.DiscountCodes(), cfg.Pricing, m, log)
	e := server.New(server.Deps{
		Config:      cfg,
		Log:         log,
		Metrics:     m,
		Products:    usecase.NewProductUsecase(s, s.Products(), pub, m, log),
		Pricing:     pricer,
		Orders:      usecase.NewOrderUsecase(s, s.Orders(), s.OrderItems(), pricer, lock.NoopLocker{}, pub, m, log),
		Inventory:   usecase.NewInventoryUsecase(s, s.Products(), s.Inventory(), pub, m, log),
		Discounts:   usecase.NewDiscountUsecase(s, s.DiscountCodes(), log),
		AdminOrders: usecase.NewAdminOrderUsecase(s, s.Orders(), s.OrderItems(), pub, m, log),
		AuditLogs:   usecase.NewAuditLogUsecase(s.AuditLogs(), log),
	})
	return &testApp{e: e, store: s}
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub, "role": role, "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

type reqOpt func(r *http.Request)

func withToken(tok string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func (a *testApp) do(t *testing.T, method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errBody struct {
	Kind          string `json:"kind"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id"`
	Retryable     bool   `json:"retryable"`
}

// vendorとして商品を作る
func (a *testApp) createProduct(t *testing.T, vendorTok, sku string, price, stock int64) model.Product {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/admin/products", map[string]any{
		"name": "Product " + sku, "sku": sku, "price": price, "initial_stock": stock,
	}, withToken(vendorTok))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.Product](t, rec)
}

func cart(productID, qty int64, extra map[string]any) map[string]any {
	body := map[string]any{"items": []map[string]any{{"product_id": productID, "quantity": qty}}}
	for k, v := range extra {
		body[k] = v
	}
	return body
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t, testConfig())

	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/healthz", nil).Code)

	rec := app.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marketplace_orders_placed_total")
}

func TestCheckoutFlow(t *testing.T) {
	app := newTestApp(t, testConfig())
	vendor := token(t, "vendor-1", "vendor")
	admin := token(t, "admin-1", "admin")
	cust := token(t, "cust-1", "customer")

	p := app.createProduct(t, vendor, "MUG-1", 10000, 5)
	assert.Equal(t, "vendor-1", p.VendorID)
	assert.Equal(t, int64(5), p.StockQuantity)

	rec := app.do(t, http.MethodPost, "/admin/discount-codes", map[string]any{
		"code": "save10", "discount_type": "percentage", "discount_value": "10",
	}, withToken(admin))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// 見積もり
	rec = app.do(t, http.MethodPost, "/checkout/quote", cart(p.ID, 2, map[string]any{"discount_code": "SAVE10"}), withToken(cust))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decode[usecase.QuoteOutput](t, rec)
	assert.Equal(t, int64(30600), quote.TotalAmount)

	// 注文確定
	rec = app.do(t, http.MethodPost, "/orders", cart(p.ID, 2, map[string]any{"discount_code": "SAVE10"}),
		withToken(cust), withHeader("X-Idempotency-Key", "order-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[usecase.OrderOutput](t, rec)
	assert.Equal(t, quote.TotalAmount, order.TotalAmount)

	// 同じキーは同じ注文
	rec = app.do(t, http.MethodPost, "/orders", cart(p.ID, 2, map[string]any{"discount_code": "SAVE10"}),
		withToken(cust), withHeader("X-Idempotency-Key", "order-1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, order.ID, decode[usecase.OrderOutput](t, rec).ID)

	// 在庫不足
	rec = app.do(t, http.MethodPost, "/orders", cart(p.ID, 4, nil),
		withToken(cust), withHeader("X-Idempotency-Key", "order-2"))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient_stock", decode[errBody](t, rec).Kind)

	// 自分の注文
	rec = app.do(t, http.MethodGet, "/orders", nil, withToken(cust))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[usecase.OrderListOutput](t, rec).Total)

	path := "/orders/" + strconv.FormatInt(order.ID, 10)
	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, path, nil, withToken(cust)).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, path, nil, withToken(token(t, "cust-2", "customer"))).Code)

	// キャンセルで在庫が戻る
	rec = app.do(t, http.MethodPut, "/admin/orders/"+strconv.FormatInt(order.ID, 10)+"/status",
		map[string]any{"status": "cancelled"}, withToken(admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decode[usecase.OrderOutput](t, rec).Status)

	rec = app.do(t, http.MethodGet, "/products/"+strconv.FormatInt(p.ID, 10), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(5), decode[model.Product](t, rec).StockQuantity)

	rec = app.do(t, http.MethodGet, "/admin/inventory/"+strconv.FormatInt(p.ID, 10)+"/movements", nil, withToken(vendor))
	require.Equal(t, http.StatusOK, rec.Code)
	moves := decode[usecase.MovementListOutput](t, rec)
	require.Equal(t, int64(3), moves.Total)
	assert.Equal(t, model.MovementInitial, moves.Items[0].MovementType)
	assert.Equal(t, model.MovementSale, moves.Items[1].MovementType)
	assert.Equal(t, model.MovementCancellation, moves.Items[2].MovementType)
}

func TestOrders_RequestValidation(t *testing.T) {
	app := newTestApp(t, testConfig())
	cust := token(t, "cust-1", "customer")

	// 認証なし
	rec := app.do(t, http.MethodPost, "/orders", cart(1, 1, nil), withHeader("X-Idempotency-Key", "k"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// キーなし
	rec = app.do(t, http.MethodPost, "/orders", cart(1, 1, nil), withToken(cust))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errBody](t, rec).Message, "X-Idempotency-Key")

	// 数量0
	rec = app.do(t, http.MethodPost, "/checkout/quote", cart(1, 0, nil), withToken(cust))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errBody](t, rec)
	assert.Equal(t, "validation_error", body.Kind)
	assert.Contains(t, body.Message, "items[0].quantity")

	// 数量の上限
	rec = app.do(t, http.MethodPost, "/orders", cart(1, 1844674407370956, nil), withToken(cust), withHeader("X-Idempotency-Key", "huge"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body = decode[errBody](t, rec)
	assert.Equal(t, "validation_error", body.Kind)
	assert.Contains(t, body.Message, "items[0].quantity")

	// 配送方法
	rec = app.do(t, http.MethodPost, "/checkout/quote", cart(1, 1, map[string]any{"shipping_method": "drone"}), withToken(cust))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 壊れたJSON
	req := httptest.NewRequest(http.MethodPost, "/checkout/quote", bytes.NewBufferString("{"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+cust)
	raw := httptest.NewRecorder()
	app.e.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	// 存在しない商品
	rec = app.do(t, http.MethodPost, "/checkout/quote", cart(999, 1, nil), withToken(cust))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errBody](t, rec).Kind)
}

func TestAdminRoutes_RoleChecks(t *testing.T) {
	app := newTestApp(t, testConfig())
	vendor := token(t, "vendor-1", "vendor")
	otherVendor := token(t, "vendor-2", "vendor")
	cust := token(t, "cust-1", "customer")

	p := app.createProduct(t, vendor, "SKU-1", 1000, 1)
	adjustPath := "/admin/inventory/" + strconv.FormatInt(p.ID, 10) + "/adjustments"

	// customerは管理APIを使えない
	rec := app.do(t, http.MethodPost, "/admin/products", map[string]any{"name": "x", "sku": "x"}, withToken(cust))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// vendorは割引コードを作れない
	rec = app.do(t, http.MethodPost, "/admin/discount-codes", map[string]any{
		"code": "X10", "discount_type": "percentage", "discount_value": 10,
	}, withToken(vendor))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, http.StatusForbidden, app.do(t, http.MethodGet, "/admin/orders", nil, withToken(vendor)).Code)

	// 在庫調整
	rec = app.do(t, http.MethodPost, adjustPath, map[string]any{"delta": 4, "movement_type": "restock", "notes": "delivery"}, withToken(vendor))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	adj := decode[usecase.AdjustOutput](t, rec)
	assert.Equal(t, int64(5), adj.NewQuantity)
	assert.Equal(t, int64(1), adj.Movement.PreviousQuantity)

	// 他のvendorの商品は404
	rec = app.do(t, http.MethodPost, adjustPath, map[string]any{"delta": 1, "movement_type": "restock"}, withToken(otherVendor))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// saleは手動で指定できない
	rec = app.do(t, http.MethodPost, adjustPath, map[string]any{"delta": -1, "movement_type": "sale"}, withToken(vendor))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 更新は在庫を変えない
	rec = app.do(t, http.MethodPut, "/admin/products/"+strconv.FormatInt(p.ID, 10), map[string]any{
		"name": "Renamed", "sku": "SKU-1", "price": 1200,
	}, withToken(vendor))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.Product](t, rec)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, int64(5), updated.StockQuantity)

	rec = app.do(t, http.MethodDelete, "/admin/products/"+strconv.FormatInt(p.ID, 10), nil, withToken(vendor))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/products/"+strconv.FormatInt(p.ID, 10), nil).Code)
}

func TestDiscountCodes_Admin(t *testing.T) {
	app := newTestApp(t, testConfig())
	admin := token(t, "admin-1", "admin")

	rec := app.do(t, http.MethodPost, "/admin/discount-codes", map[string]any{
		"code": "FIVE", "discount_type": "fixed_amount", "discount_value": 500, "usage_limit": 1,
	}, withToken(admin))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = app.do(t, http.MethodPost, "/admin/discount-codes", map[string]any{
		"code": "BAD", "discount_type": "percentage", "discount_value": 150,
	}, withToken(admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPut, "/admin/discount-codes/five/deactivate", nil, withToken(admin))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodGet, "/admin/discount-codes?active=true", nil, withToken(admin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]model.DiscountCode](t, rec))

	rec = app.do(t, http.MethodGet, "/admin/discount-codes", nil, withToken(admin))
	require.Equal(t, http.StatusOK, rec.Code)
	codes := decode[[]model.DiscountCode](t, rec)
	require.Len(t, codes, 1)
	assert.False(t, codes[0].IsActive)
}

func TestAuditLogs_Admin(t *testing.T) {
	app := newTestApp(t, testConfig())
	admin := token(t, "admin-1", "admin")
	vendor := token(t, "vendor-1", "vendor")

	rec := app.do(t, http.MethodPost, "/admin/discount-codes", map[string]any{
		"code": "FIVE", "discount_type": "fixed_amount", "discount_value": 500,
	}, withToken(admin))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = app.do(t, http.MethodPut, "/admin/discount-codes/FIVE/deactivate", nil, withToken(admin))
	require.Equal(t, http.StatusOK, rec.Code)
	app.createProduct(t, vendor, "A-1", 1000, 1)

	rec = app.do(t, http.MethodGet, "/admin/audit-logs?resource_type=discount_code&limit=1", nil, withToken(admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[usecase.AuditLogListOutput](t, rec)
	assert.Equal(t, int64(2), out.Total)
	require.Len(t, out.Items, 1)
	assert.Equal(t, model.AuditActionDeactivateDiscount, out.Items[0].Action)
	assert.Equal(t, "admin-1", out.Items[0].ActorID)

	rec = app.do(t, http.MethodGet, "/admin/audit-logs?action=create_discount_code", nil, withToken(admin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[usecase.AuditLogListOutput](t, rec).Total)

	rec = app.do(t, http.MethodGet, "/admin/audit-logs?action=drop_table", nil, withToken(admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = app.do(t, http.MethodGet, "/admin/audit-logs?from=yesterday", nil, withToken(admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodGet, "/admin/audit-logs", nil, withToken(vendor))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = app.do(t, http.MethodGet, "/admin/audit-logs", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminOrders_ListAndPayment(t *testing.T) {
	app := newTestApp(t, testConfig())
	vendor := token(t, "vendor-1", "vendor")
	admin := token(t, "admin-1", "admin")
	cust := token(t, "cust-1", "customer")

	p := app.createProduct(t, vendor, "SKU-1", 1000, 3)
	rec := app.do(t, http.MethodPost, "/orders", cart(p.ID, 1, nil), withToken(cust), withHeader("X-Idempotency-Key", "k"))
	require.Equal(t, http.StatusCreated, rec.Code)
	order := decode[usecase.OrderOutput](t, rec)

	rec = app.do(t, http.MethodGet, "/admin/orders?customer_id=cust-1&status=pending", nil, withToken(admin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[usecase.OrderListOutput](t, rec).Total)

	rec = app.do(t, http.MethodGet, "/admin/orders?from=yesterday", nil, withToken(admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := "/admin/orders/" + strconv.FormatInt(order.ID, 10) + "/payment-status"
	rec = app.do(t, http.MethodPut, path, map[string]any{"payment_status": "paid"}, withToken(admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "paid", decode[usecase.OrderOutput](t, rec).PaymentStatus)

	rec = app.do(t, http.MethodPut, path, map[string]any{"payment_status": "failed"}, withToken(admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Capacity: 10, TTL: time.Minute, RPS: 0.001, Burst: 2}
	app := newTestApp(t, cfg)
	cust := token(t, "cust-1", "customer")

	for i := 0; i < 2; i++ {
		rec := app.do(t, http.MethodPost, "/checkout/quote", cart(1, 1, nil), withToken(cust))
		assert.NotEqual(t, http.StatusTooManyRequests, rec.Code)
	}
	rec := app.do(t, http.MethodPost, "/checkout/quote", cart(1, 1, nil), withToken(cust))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decode[errBody](t, rec).Kind)

	// 公開APIには掛けない
	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/products", nil).Code)
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	app := newTestApp(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- server.Start(ctx, app.e, "127.0.0.1:0", time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

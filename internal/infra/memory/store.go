// Package memory はPostgresなしで動かすためのストア。
// トランザクションは全体ロック＋コピーしてからcommitで差し替える。
package memory

import (
	"context"
	"sync"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"
)

type state struct {
	products   map[int64]model.Product
	discounts  map[string]model.DiscountCode
	orders     map[int64]model.Order
	orderItems map[int64][]model.OrderItem
	movements  []model.InventoryMovement
	auditLogs  []model.AuditLog

	productSeq  int64
	discountSeq int64
	orderSeq    int64
	itemSeq     int64
	movementSeq int64
	auditSeq    int64
}

func newState() *state {
	return &state{
		products:   map[int64]model.Product{},
		discounts:  map[string]model.DiscountCode{},
		orders:     map[int64]model.Order{},
		orderItems: map[int64][]model.OrderItem{},
	}
}

func (s *state) clone() *state {
	c := *s
	c.products = make(map[int64]model.Product, len(s.products))
	for k, v := range s.products {
		c.products[k] = v
	}
	c.discounts = make(map[string]model.DiscountCode, len(s.discounts))
	for k, v := range s.discounts {
		c.discounts[k] = v
	}
	c.orders = make(map[int64]model.Order, len(s.orders))
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.orderItems = make(map[int64][]model.OrderItem, len(s.orderItems))
	for k, v := range s.orderItems {
		c.orderItems[k] = append([]model.OrderItem(nil), v...)
	}
	// 追記のみなので容量を切っておけば元を壊さない
	c.movements = s.movements[:len(s.movements):len(s.movements)]
	c.auditLogs = s.auditLogs[:len(s.auditLogs):len(s.auditLogs)]
	return &c
}

type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

// storeがあれば1回ごとにロック、txがあればロック済み
type view struct {
	store *Store
	tx    *state
}

func (v view) do(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

func (s *Store) Products() *ProductRepository {
	return &ProductRepository{v: view{store: s}}
}

func (s *Store) Inventory() *InventoryRepository {
	return &InventoryRepository{v: view{store: s}}
}

func (s *Store) DiscountCodes() *DiscountCodeRepository {
	return &DiscountCodeRepository{v: view{store: s}}
}

func (s *Store) Orders() *OrderRepository {
	return &OrderRepository{v: view{store: s}}
}

func (s *Store) OrderItems() *OrderItemRepository {
	return &OrderItemRepository{v: view{store: s}}
}

func (s *Store) AuditLogs() *AuditLogRepository {
	return &AuditLogRepository{v: view{store: s}}
}

type txRepos struct {
	v view
}

func (r txRepos) Orders() repo.OrderRepository               { return &OrderRepository{v: r.v} }
func (r txRepos) OrderItems() repo.OrderItemRepository       { return &OrderItemRepository{v: r.v} }
func (r txRepos) Inventory() repo.InventoryRepository        { return &InventoryRepository{v: r.v} }
func (r txRepos) Products() repo.ProductRepository           { return &ProductRepository{v: r.v} }
func (r txRepos) DiscountCodes() repo.DiscountCodeRepository { return &DiscountCodeRepository{v: r.v} }
func (r txRepos) AuditLogs() repo.AuditLogRepository         { return &AuditLogRepository{v: r.v} }

// TxManagerも兼ねる
// fnがerrorを返したらコピーを捨てる（ロールバック）
func (s *Store) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(txRepos{v: view{tx: work}}); err != nil {
		return err
	}
	s.state = work
	return nil
}

var (
	_ repo.TransactionManager     = (*Store)(nil)
	_ repo.ProductRepository      = (*ProductRepository)(nil)
	_ repo.InventoryRepository    = (*InventoryRepository)(nil)
	_ repo.DiscountCodeRepository = (*DiscountCodeRepository)(nil)
	_ repo.OrderRepository        = (*OrderRepository)(nil)
	_ repo.OrderItemRepository    = (*OrderItemRepository)(nil)
	_ repo.AuditLogRepository     = (*AuditLogRepository)(nil)
)

package memory

import (
	"context"
	"sort"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"
)

type OrderRepository struct {
	v view
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	var out model.Order
	err := r.v.do(func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok {
			return repo.ErrNotFound
		}
		out = o
		return nil
	})
	return out, err
}

func (r *OrderRepository) ListByCustomerID(ctx context.Context, customerID string, page int, limit int) ([]model.Order, int64, error) {
	return r.ListAdmin(ctx, repo.AdminOrderListFilter{Page: page, Limit: limit, CustomerID: customerID})
}

func (r *OrderRepository) Create(ctx context.Context, order model.Order) (int64, error) {
	err := r.v.do(func(st *state) error {
		for _, o := range st.orders {
			if o.CustomerID == order.CustomerID && o.IdempotencyKey == order.IdempotencyKey {
				return repo.ErrDuplicate
			}
			if o.OrderNumber == order.OrderNumber {
				return repo.ErrDuplicate
			}
		}
		st.orderSeq++
		now := time.Now()
		order.ID = st.orderSeq
		order.CreatedAt = now
		order.UpdatedAt = now
		st.orders[order.ID] = order
		return nil
	})
	if err != nil {
		return 0, err
	}
	return order.ID, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	return r.update(orderID, func(o *model.Order) { o.Status = status })
}

func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, orderID int64, status model.PaymentStatus) error {
	return r.update(orderID, func(o *model.Order) { o.PaymentStatus = status })
}

func (r *OrderRepository) update(orderID int64, fn func(o *model.Order)) error {
	return r.v.do(func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok {
			return repo.ErrNotFound
		}
		fn(&o)
		o.UpdatedAt = time.Now()
		st.orders[orderID] = o
		return nil
	})
}

func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, customerID string, key string) (model.Order, bool, error) {
	var out model.Order
	var found bool
	err := r.v.do(func(st *state) error {
		for _, o := range st.orders {
			if o.CustomerID == customerID && o.IdempotencyKey == key {
				out, found = o, true
				return nil
			}
		}
		return nil
	})
	return out, found, err
}

func (r *OrderRepository) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}

	var out []model.Order
	var total int64
	err := r.v.do(func(st *state) error {
		var hits []model.Order
		for _, o := range st.orders {
			if f.Status != "" && string(o.Status) != f.Status {
				continue
			}
			if f.PaymentStatus != "" && string(o.PaymentStatus) != f.PaymentStatus {
				continue
			}
			if f.CustomerID != "" && o.CustomerID != f.CustomerID {
				continue
			}
			if f.From != nil && o.CreatedAt.Before(*f.From) {
				continue
			}
			if f.To != nil && o.CreatedAt.After(*f.To) {
				continue
			}
			hits = append(hits, o)
		}
		sort.Slice(hits, func(i, j int) bool { return hits[i].ID > hits[j].ID })
		total = int64(len(hits))
		out = paginate(hits, f.Page, f.Limit)
		return nil
	})
	return out, total, err
}

type OrderItemRepository struct {
	v view
}

func (r *OrderItemRepository) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.v.do(func(st *state) error {
		now := time.Now()
		rows := make([]model.OrderItem, len(items))
		for i := range items {
			st.itemSeq++
			rows[i] = items[i]
			rows[i].ID = st.itemSeq
			rows[i].OrderID = orderID
			rows[i].CreatedAt = now
		}
		st.orderItems[orderID] = append(st.orderItems[orderID], rows...)
		return nil
	})
}

func (r *OrderItemRepository) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	out := []model.OrderItem{}
	err := r.v.do(func(st *state) error {
		out = append(out, st.orderItems[orderID]...)
		return nil
	})
	return out, err
}

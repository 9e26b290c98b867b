package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"
)

type ProductRepository struct {
	v view
}

func (r *ProductRepository) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	var out []model.Product
	var total int64
	err := r.v.do(func(st *state) error {
		keyword := strings.ToLower(strings.TrimSpace(q.Q))
		var hits []model.Product
		for _, p := range st.products {
			if p.DeletedAt.Valid || !p.IsActive {
				continue
			}
			if q.VendorID != "" && p.VendorID != q.VendorID {
				continue
			}
			if keyword != "" && !strings.Contains(strings.ToLower(p.Name), keyword) && !strings.Contains(strings.ToLower(p.SKU), keyword) {
				continue
			}
			if q.MinPrice != nil && p.Price < *q.MinPrice {
				continue
			}
			if q.MaxPrice != nil && p.Price > *q.MaxPrice {
				continue
			}
			hits = append(hits, p)
		}

		sort.Slice(hits, func(i, j int) bool {
			switch q.Sort {
			case "price_asc":
				if hits[i].Price != hits[j].Price {
					return hits[i].Price < hits[j].Price
				}
				return hits[i].ID < hits[j].ID
			case "price_desc":
				if hits[i].Price != hits[j].Price {
					return hits[i].Price > hits[j].Price
				}
				return hits[i].ID > hits[j].ID
			default:
				return hits[i].ID > hits[j].ID
			}
		})

		total = int64(len(hits))
		out = paginate(hits, q.Page, q.Limit)
		return nil
	})
	return out, total, err
}

func (r *ProductRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var out model.Product
	err := r.v.do(func(st *state) error {
		p, ok := st.products[id]
		if !ok || p.DeletedAt.Valid {
			return repo.ErrNotFound
		}
		out = p
		return nil
	})
	return out, err
}

func (r *ProductRepository) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	out := []model.Product{}
	err := r.v.do(func(st *state) error {
		for _, id := range ids {
			if p, ok := st.products[id]; ok && !p.DeletedAt.Valid {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func (r *ProductRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	err := r.v.do(func(st *state) error {
		if skuTaken(st, p.VendorID, p.SKU, 0) {
			return repo.ErrDuplicate
		}
		st.productSeq++
		now := time.Now()
		p.ID = st.productSeq
		p.StockQuantity = 0
		p.CreatedAt = now
		p.UpdatedAt = now
		st.products[p.ID] = p
		return nil
	})
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

func (r *ProductRepository) Update(ctx context.Context, p model.Product) error {
	return r.v.do(func(st *state) error {
		cur, ok := st.products[p.ID]
		if !ok || cur.DeletedAt.Valid {
			return repo.ErrNotFound
		}
		if skuTaken(st, cur.VendorID, p.SKU, p.ID) {
			return repo.ErrDuplicate
		}
		cur.Name = p.Name
		cur.SKU = p.SKU
		cur.Description = p.Description
		cur.Price = p.Price
		cur.TrackInventory = p.TrackInventory
		cur.IsActive = p.IsActive
		cur.UpdatedAt = time.Now()
		st.products[p.ID] = cur
		return nil
	})
}

func (r *ProductRepository) SoftDelete(ctx context.Context, id int64) error {
	return r.v.do(func(st *state) error {
		cur, ok := st.products[id]
		if !ok || cur.DeletedAt.Valid {
			return repo.ErrNotFound
		}
		cur.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
		st.products[id] = cur
		return nil
	})
}

func skuTaken(st *state, vendorID, sku string, exceptID int64) bool {
	for _, p := range st.products {
		if p.ID != exceptID && !p.DeletedAt.Valid && p.VendorID == vendorID && p.SKU == sku {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, page, limit int) []T {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		return items
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

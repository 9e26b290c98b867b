package memory

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"
)

type InventoryRepository struct {
	v view
}

func (r *InventoryRepository) ApplyDelta(ctx context.Context, productID int64, delta int64, floor *int64) (repo.StockChange, error) {
	var out repo.StockChange
	err := r.v.do(func(st *state) error {
		p, ok := st.products[productID]
		if !ok || p.DeletedAt.Valid {
			return repo.ErrNotFound
		}
		newQty, err := model.CheckedSum(p.StockQuantity, delta)
		if err != nil {
			return err
		}
		if floor != nil && newQty < *floor {
			return repo.ErrFloorViolation
		}
		out = repo.StockChange{ProductID: productID, PreviousQuantity: p.StockQuantity, NewQuantity: newQty}
		p.StockQuantity = newQty
		p.UpdatedAt = time.Now()
		st.products[productID] = p
		return nil
	})
	return out, err
}

func (r *InventoryRepository) CreateMovement(ctx context.Context, m model.InventoryMovement) (model.InventoryMovement, error) {
	err := r.v.do(func(st *state) error {
		st.movementSeq++
		m.ID = st.movementSeq
		m.CreatedAt = time.Now()
		st.movements = append(st.movements, m)
		return nil
	})
	if err != nil {
		return model.InventoryMovement{}, err
	}
	return m, nil
}

func (r *InventoryRepository) ListMovements(ctx context.Context, q repo.MovementListQuery) ([]model.InventoryMovement, int64, error) {
	var out []model.InventoryMovement
	var total int64
	err := r.v.do(func(st *state) error {
		var hits []model.InventoryMovement
		for _, m := range st.movements {
			if m.ProductID == q.ProductID {
				hits = append(hits, m)
			}
		}
		total = int64(len(hits))
		out = offsetLimit(hits, q.Offset, q.Limit)
		return nil
	})
	return out, total, err
}

func offsetLimit[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

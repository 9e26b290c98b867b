package memory

import (
	"context"
	"sort"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"
)

type DiscountCodeRepository struct {
	v view
}

func (r *DiscountCodeRepository) FindActiveByCode(ctx context.Context, code string) (model.DiscountCode, error) {
	d, err := r.FindByCode(ctx, code)
	if err != nil {
		return model.DiscountCode{}, err
	}
	if !d.IsActive {
		return model.DiscountCode{}, repo.ErrNotFound
	}
	return d, nil
}

func (r *DiscountCodeRepository) FindByCode(ctx context.Context, code string) (model.DiscountCode, error) {
	var out model.DiscountCode
	err := r.v.do(func(st *state) error {
		d, ok := st.discounts[model.NormalizeDiscountCode(code)]
		if !ok {
			return repo.ErrNotFound
		}
		out = d
		return nil
	})
	return out, err
}

func (r *DiscountCodeRepository) IncrementUsageIfAvailable(ctx context.Context, code string) error {
	return r.v.do(func(st *state) error {
		key := model.NormalizeDiscountCode(code)
		d, ok := st.discounts[key]
		if !ok || !d.IsActive || d.Exhausted() {
			return repo.ErrConflict
		}
		d.UsageCount++
		d.UpdatedAt = time.Now()
		st.discounts[key] = d
		return nil
	})
}

func (r *DiscountCodeRepository) Create(ctx context.Context, d model.DiscountCode) (model.DiscountCode, error) {
	d.Code = model.NormalizeDiscountCode(d.Code)
	err := r.v.do(func(st *state) error {
		if _, ok := st.discounts[d.Code]; ok {
			return repo.ErrDuplicate
		}
		st.discountSeq++
		now := time.Now()
		d.ID = st.discountSeq
		d.CreatedAt = now
		d.UpdatedAt = now
		st.discounts[d.Code] = d
		return nil
	})
	if err != nil {
		return model.DiscountCode{}, err
	}
	return d, nil
}

func (r *DiscountCodeRepository) List(ctx context.Context, activeOnly bool) ([]model.DiscountCode, error) {
	out := []model.DiscountCode{}
	err := r.v.do(func(st *state) error {
		for _, d := range st.discounts {
			if activeOnly && !d.IsActive {
				continue
			}
			out = append(out, d)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

func (r *DiscountCodeRepository) Deactivate(ctx context.Context, code string) error {
	return r.v.do(func(st *state) error {
		key := model.NormalizeDiscountCode(code)
		d, ok := st.discounts[key]
		if !ok {
			return repo.ErrNotFound
		}
		d.IsActive = false
		d.UpdatedAt = time.Now()
		st.discounts[key] = d
		return nil
	})
}

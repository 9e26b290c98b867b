//go:build integration

package repository

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"marketplace/internal/config"
	"marketplace/internal/domain/model"
	"marketplace/internal/infra/db"
	repo "marketplace/internal/repository"
)

// TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/infra/repository/
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	gdb, err := db.Connect(config.Config{DatabaseURL: url, DBMaxOpenConns: 20, DBMaxIdleConns: 5})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))
	return gdb
}

func TestPostgres_ConcurrentAdjustmentsChain(t *testing.T) {
	ctx := context.Background()
	gdb := openTestDB(t)
	tm := NewTxManagerGorm(gdb)

	const n = 20
	p, err := NewProductGormRepository(gdb).Create(ctx, model.Product{
		VendorID: "vendor-it", Name: "Mug", SKU: "IT-" + uuid.NewString()[:8], Price: 1000,
		TrackInventory: true, IsActive: true,
	})
	require.NoError(t, err)
	_, err = NewInventoryGormRepository(gdb).ApplyDelta(ctx, p.ID, n, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- tm.WithinTx(ctx, func(r repo.TxRepos) error {
				change, err := r.Inventory().ApplyDelta(ctx, p.ID, -1, nil)
				if err != nil {
					return err
				}
				_, err = r.Inventory().CreateMovement(ctx, model.InventoryMovement{
					ProductID: p.ID, MovementType: model.MovementAdjustment, Quantity: -1,
					PreviousQuantity: change.PreviousQuantity, NewQuantity: change.NewQuantity,
					CreatedBy: "it",
				})
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := NewProductGormRepository(gdb).FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.StockQuantity)

	ms, total, err := NewInventoryGormRepository(gdb).ListMovements(ctx, repo.MovementListQuery{ProductID: p.ID, Limit: 100})
	require.NoError(t, err)
	require.Equal(t, int64(n), total)
	for i, m := range ms {
		assert.Equal(t, m.PreviousQuantity+m.Quantity, m.NewQuantity)
		if i > 0 {
			assert.Equal(t, ms[i-1].NewQuantity, m.PreviousQuantity)
		}
	}
}

func TestPostgres_SingleUseDiscountRedeemedOnce(t *testing.T) {
	ctx := context.Background()
	gdb := openTestDB(t)
	r := NewDiscountCodeGormRepository(gdb)

	limit := int64(1)
	d, err := r.Create(ctx, model.DiscountCode{
		Code: "IT" + uuid.NewString()[:8], DiscountType: model.DiscountTypeFixedAmount,
		DiscountValue: decimal.NewFromInt(500), UsageLimit: &limit, IsActive: true,
	})
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	redeemed := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.IncrementUsageIfAvailable(ctx, d.Code)
			if err == nil {
				mu.Lock()
				redeemed++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, repo.ErrConflict)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, redeemed)
	got, err := r.FindByCode(ctx, d.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UsageCount)
}

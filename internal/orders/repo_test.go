package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/pkg/db/models"
	"github.com/atelierworks/atelier-backend/pkg/enums"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  listing_id TEXT,
  commission_id TEXT,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  status TEXT NOT NULL DEFAULT 'created',
  version INTEGER NOT NULL DEFAULT 1,
  payment_intent_ref TEXT UNIQUE,
  failure_reason TEXT,
  revision_count INTEGER NOT NULL DEFAULT 0,
  deliverable_refs TEXT,
  authorized_at DATETIME,
  processing_at DATETIME,
  delivered_at DATETIME,
  disputed_at DATETIME,
  completed_at DATETIME,
  cancelled_at DATETIME,
  refunded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  deleted_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedOrder(t *testing.T, repo Repository, status enums.OrderStatus) *models.Order {
	t.Helper()
	intentRef := "pi_" + uuid.NewString()
	order := &models.Order{
		ID:               uuid.New(),
		BuyerID:          uuid.New(),
		SellerID:         uuid.New(),
		AmountCents:      10000,
		Currency:         enums.CurrencyUSD,
		Status:           status,
		Version:          1,
		PaymentIntentRef: &intentRef,
	}
	require.NoError(t, repo.Create(context.Background(), order))
	return order
}

func TestRepository_TransitionStatusOptimisticLock(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, repo, enums.OrderStatusAuthorized)

	require.NoError(t, repo.TransitionStatus(ctx, order, enums.OrderStatusProcessing, map[string]any{
		"processing_at": time.Now().UTC(),
	}))
	assert.Equal(t, enums.OrderStatusProcessing, order.Status)
	assert.Equal(t, int64(2), order.Version)

	// A writer holding the old version loses the race.
	stale := &models.Order{ID: order.ID, Version: 1}
	err := repo.TransitionStatus(ctx, stale, enums.OrderStatusInProgress, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConcurrentMod))

	// A fresh read wins.
	fresh, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.NoError(t, repo.TransitionStatus(ctx, fresh, enums.OrderStatusInProgress, nil))
	assert.Equal(t, int64(3), fresh.Version)
}

func TestRepository_GetByIntentRef(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, repo, enums.OrderStatusPendingPayment)

	found, err := repo.GetByIntentRef(ctx, *order.PaymentIntentRef)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = repo.GetByIntentRef(ctx, "pi_missing")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestRepository_ListDeliveredBefore(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	stale := seedOrder(t, repo, enums.OrderStatusDelivered)
	staleAt := time.Now().UTC().Add(-10 * 24 * time.Hour)
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", stale.ID).Update("delivered_at", staleAt).Error)

	recent := seedOrder(t, repo, enums.OrderStatusDelivered)
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", recent.ID).Update("delivered_at", time.Now().UTC()).Error)

	cutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)
	orders, err := repo.ListDeliveredBefore(ctx, cutoff, 50)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, stale.ID, orders[0].ID)
}

func TestRepository_ListPendingPaymentBefore(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	stale := seedOrder(t, repo, enums.OrderStatusPendingPayment)
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", stale.ID).
		Update("created_at", time.Now().UTC().Add(-48*time.Hour)).Error)
	seedOrder(t, repo, enums.OrderStatusPendingPayment)

	orders, err := repo.ListPendingPaymentBefore(ctx, time.Now().UTC().Add(-24*time.Hour), 50)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, stale.ID, orders[0].ID)
}

package ledger

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
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	transactions := `
CREATE TABLE IF NOT EXISTS marketplace_transactions (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  platform_fee_cents INTEGER NOT NULL,
  net_amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  stripe_payment_intent_id TEXT NOT NULL UNIQUE,
  stripe_transfer_id TEXT,
  payout_status TEXT NOT NULL DEFAULT 'available',
  payout_ref TEXT,
  payout_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	payments := `
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  order_id TEXT,
  user_id TEXT NOT NULL,
  type TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  status TEXT NOT NULL DEFAULT 'pending',
  payout_status TEXT NOT NULL DEFAULT 'available',
  stripe_payment_intent_id TEXT,
  stripe_refund_id TEXT,
  stripe_payout_id TEXT,
  failure_reason TEXT,
  processed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(transactions).Error)
	require.NoError(t, db.Exec(payments).Error)
	return db
}

func newSettlement(sellerID uuid.UUID, intentRef string, net int64) *models.MarketplaceTransaction {
	return &models.MarketplaceTransaction{
		ID:                    uuid.New(),
		OrderID:               uuid.New(),
		BuyerID:               uuid.New(),
		SellerID:              sellerID,
		AmountCents:           net + 1500,
		PlatformFeeCents:      1500,
		NetAmountCents:        net,
		Currency:              enums.CurrencyUSD,
		StripePaymentIntentID: intentRef,
		PayoutStatus:          enums.PayoutStatusAvailable,
	}
}

func TestRepository_TransactionIntentUniqueness(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	sellerID := uuid.New()
	first := newSettlement(sellerID, "pi_unique", 8500)
	require.NoError(t, repo.CreateTransaction(ctx, first))

	dup := newSettlement(sellerID, "pi_unique", 8500)
	err := repo.CreateTransaction(ctx, dup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNIQUE")

	found, err := repo.GetTransactionByIntent(ctx, "pi_unique")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)

	missing, err := repo.GetTransactionByIntent(ctx, "pi_absent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_SumAndWithdraw(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	sellerID := uuid.New()
	otherSeller := uuid.New()
	require.NoError(t, repo.CreateTransaction(ctx, newSettlement(sellerID, "pi_a", 8500)))
	require.NoError(t, repo.CreateTransaction(ctx, newSettlement(sellerID, "pi_b", 4250)))
	require.NoError(t, repo.CreateTransaction(ctx, newSettlement(otherSeller, "pi_c", 999)))

	total, err := repo.SumAvailableNetBySeller(ctx, sellerID, enums.CurrencyUSD)
	require.NoError(t, err)
	assert.Equal(t, int64(12750), total)

	count, err := repo.MarkAvailableWithdrawn(ctx, sellerID, enums.CurrencyUSD, "po_1", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	total, err = repo.SumAvailableNetBySeller(ctx, sellerID, enums.CurrencyUSD)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	// The other seller's balance is untouched.
	total, err = repo.SumAvailableNetBySeller(ctx, otherSeller, enums.CurrencyUSD)
	require.NoError(t, err)
	assert.Equal(t, int64(999), total)
}

func TestRepository_WithdrawIsCurrencyScoped(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	sellerID := uuid.New()
	usd := newSettlement(sellerID, "pi_usd", 8500)
	eur := newSettlement(sellerID, "pi_eur", 4250)
	eur.Currency = enums.CurrencyEUR
	require.NoError(t, repo.CreateTransaction(ctx, usd))
	require.NoError(t, repo.CreateTransaction(ctx, eur))

	total, err := repo.SumAvailableNetBySeller(ctx, sellerID, enums.CurrencyUSD)
	require.NoError(t, err)
	assert.Equal(t, int64(8500), total)

	count, err := repo.MarkAvailableWithdrawn(ctx, sellerID, enums.CurrencyUSD, "po_usd", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// The euro settlement is still available for its own payout.
	total, err = repo.SumAvailableNetBySeller(ctx, sellerID, enums.CurrencyEUR)
	require.NoError(t, err)
	assert.Equal(t, int64(4250), total)
}

func TestRepository_ListTransactionsBySeller(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	sellerID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		txn := newSettlement(sellerID, uuid.NewString(), 1000)
		txn.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.CreateTransaction(ctx, txn))
	}

	txns, err := repo.ListTransactionsBySeller(ctx, sellerID, nil, 10)
	require.NoError(t, err)
	require.Len(t, txns, 3)
	// Newest first.
	assert.True(t, txns[0].CreatedAt.After(txns[2].CreatedAt))

	page, err := repo.ListTransactionsBySeller(ctx, sellerID, nil, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestRepository_Payments(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orderID := uuid.New()
	userID := uuid.New()
	payment := &models.Payment{
		ID:          uuid.New(),
		OrderID:     &orderID,
		UserID:      userID,
		Type:        enums.PaymentTypeEarning,
		AmountCents: 8500,
		Currency:    enums.CurrencyUSD,
		Status:      enums.PaymentStatusCompleted,
	}
	require.NoError(t, repo.CreatePayment(ctx, payment))

	payments, err := repo.ListPaymentsByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, enums.PaymentTypeEarning, payments[0].Type)
	assert.Equal(t, int64(8500), payments[0].AmountCents)
}

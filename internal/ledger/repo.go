package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/pkg/db/models"
	"github.com/atelierworks/atelier-backend/pkg/enums"
	"github.com/atelierworks/atelier-backend/pkg/pagination"
)

// Repository manages persistence for settlement rows and payment movements.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateTransaction(ctx context.Context, txn *models.MarketplaceTransaction) error
	GetTransactionByIntent(ctx context.Context, intentRef string) (*models.MarketplaceTransaction, error)
	ListTransactionsBySeller(ctx context.Context, sellerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.MarketplaceTransaction, error)
	SumAvailableNetBySeller(ctx context.Context, sellerID uuid.UUID, currency enums.Currency) (int64, error)
	MarkAvailableWithdrawn(ctx context.Context, sellerID uuid.UUID, currency enums.Currency, payoutRef string, at time.Time) (int64, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.MarketplaceTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) GetTransactionByIntent(ctx context.Context, intentRef string) (*models.MarketplaceTransaction, error) {
	var txn models.MarketplaceTransaction
	err := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ?", intentRef).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) ListTransactionsBySeller(ctx context.Context, sellerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.MarketplaceTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var txns []models.MarketplaceTransaction
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) SumAvailableNetBySeller(ctx context.Context, sellerID uuid.UUID, currency enums.Currency) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.MarketplaceTransaction{}).
		Where("seller_id = ? AND currency = ? AND payout_status = ?", sellerID, currency, "available").
		Select("COALESCE(SUM(net_amount_cents), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repository) MarkAvailableWithdrawn(ctx context.Context, sellerID uuid.UUID, currency enums.Currency, payoutRef string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.MarketplaceTransaction{}).
		Where("seller_id = ? AND currency = ? AND payout_status = ?", sellerID, currency, "available").
		Updates(map[string]any{
			"payout_status": "withdrawn",
			"payout_ref":    payoutRef,
			"payout_at":     at,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/atelierworks/atelier-backend/pkg/enums"
)

// MarketplaceTransaction is the authoritative accounting record for one
// capture: the gross amount, the platform's fee and the seller's net. The
// unique index on StripePaymentIntentID is what makes capture idempotent at
// the ledger level. PlatformFeeCents + NetAmountCents must equal AmountCents
// exactly; the ledger service rejects rows that do not balance.
type MarketplaceTransaction struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID  uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	BuyerID  uuid.UUID `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID uuid.UUID `gorm:"column:seller_id;type:uuid;not null;index"`

	AmountCents      int64          `gorm:"column:amount_cents;not null"`
	PlatformFeeCents int64          `gorm:"column:platform_fee_cents;not null"`
	NetAmountCents   int64          `gorm:"column:net_amount_cents;not null"`
	Currency         enums.Currency `gorm:"column:currency;type:text;not null;default:'USD'"`

	StripePaymentIntentID string  `gorm:"column:stripe_payment_intent_id;not null;uniqueIndex:idx_marketplace_transactions_intent"`
	StripeTransferID      *string `gorm:"column:stripe_transfer_id"`

	PayoutStatus enums.PayoutStatus `gorm:"column:payout_status;type:text;not null;default:'available';index"`
	PayoutRef    *string            `gorm:"column:payout_ref"`
	PayoutAt     *time.Time         `gorm:"column:payout_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

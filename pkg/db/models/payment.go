package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/atelierworks/atelier-backend/pkg/enums"
)

// Payment is a ledger-facing projection of a single money movement tied to an
// order: an earning credited on capture, a refund debited back to the buyer,
// or a withdrawal paid out to the seller. Rows are immutable once completed.
type Payment struct {
	ID      uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID *uuid.UUID `gorm:"column:order_id;type:uuid;index"`
	UserID  uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`

	Type         enums.PaymentType   `gorm:"column:type;type:text;not null;index"`
	AmountCents  int64               `gorm:"column:amount_cents;not null"`
	Currency     enums.Currency      `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status       enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending';index"`
	PayoutStatus enums.PayoutStatus  `gorm:"column:payout_status;type:text;not null;default:'available'"`

	StripePaymentIntentID *string `gorm:"column:stripe_payment_intent_id;index"`
	StripeRefundID        *string `gorm:"column:stripe_refund_id"`
	StripePayoutID        *string `gorm:"column:stripe_payout_id"`
	FailureReason         *string `gorm:"column:failure_reason"`

	ProcessedAt *time.Time `gorm:"column:processed_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

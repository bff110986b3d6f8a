package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/pkg/enums"
)

// Order is the central escrow entity. Its status only changes through the
// order state machine; every other component references it by id. The Version
// column backs the optimistic concurrency check, so two actors racing on the
// same order cannot both win.
type Order struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID      uuid.UUID  `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID     uuid.UUID  `gorm:"column:seller_id;type:uuid;not null;index"`
	ListingID    *uuid.UUID `gorm:"column:listing_id;type:uuid"`
	CommissionID *uuid.UUID `gorm:"column:commission_id;type:uuid"`

	AmountCents int64              `gorm:"column:amount_cents;not null"`
	Currency    enums.Currency     `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status      enums.OrderStatus  `gorm:"column:status;type:text;not null;default:'created';index"`
	Version     int64              `gorm:"column:version;not null;default:1"`

	// PaymentIntentRef is the processor's opaque identifier for this order's
	// authorize/capture/cancel/refund lifecycle.
	PaymentIntentRef *string `gorm:"column:payment_intent_ref;uniqueIndex"`
	FailureReason    *string `gorm:"column:failure_reason"`

	RevisionCount   int             `gorm:"column:revision_count;not null;default:0"`
	DeliverableRefs DeliverableRefs `gorm:"column:deliverable_refs;type:jsonb;serializer:json"`

	AuthorizedAt *time.Time `gorm:"column:authorized_at"`
	ProcessingAt *time.Time `gorm:"column:processing_at"`
	DeliveredAt  *time.Time `gorm:"column:delivered_at"`
	DisputedAt   *time.Time `gorm:"column:disputed_at"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
	CancelledAt  *time.Time `gorm:"column:cancelled_at"`
	RefundedAt   *time.Time `gorm:"column:refunded_at"`

	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// DeliverableRefs holds opaque references to delivered work (media ids,
// archive urls). Media handling itself lives outside the engine.
type DeliverableRefs []string

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/atelierworks/atelier-backend/pkg/enums"
)

// Commission is the pre-order negotiation between a buyer and a seller. An
// order may reference an accepted commission; the escrow core never mutates
// commissions after the referenced order is created.
type Commission struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID  uuid.UUID `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID uuid.UUID `gorm:"column:seller_id;type:uuid;not null;index"`

	Title         string                 `gorm:"column:title;not null"`
	Brief         string                 `gorm:"column:brief"`
	QuoteCents    int64                  `gorm:"column:quote_cents;not null"`
	Currency      enums.Currency         `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status        enums.CommissionStatus `gorm:"column:status;type:text;not null;default:'draft';index"`
	OfferedAt     *time.Time             `gorm:"column:offered_at"`
	RespondedAt   *time.Time             `gorm:"column:responded_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/atelierworks/atelier-backend/pkg/enums"
)

// License is the usage-rights grant issued once an order settles in the
// seller's favor. One license per completed order.
type License struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID  uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_licenses_order_id"`
	BuyerID  uuid.UUID `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID uuid.UUID `gorm:"column:seller_id;type:uuid;not null;index"`

	Scope    enums.LicenseScope `gorm:"column:scope;type:text;not null;default:'standard'"`
	IssuedAt time.Time          `gorm:"column:issued_at;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

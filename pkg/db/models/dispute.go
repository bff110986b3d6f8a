package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/atelierworks/atelier-backend/pkg/enums"
)

// Dispute attaches to exactly one order. While open it suspends the normal
// buyer/seller transitions on that order; only one dispute may be open per
// order at a time (enforced by a partial unique index plus a service guard).
type Dispute struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`

	RaisedByID   uuid.UUID           `gorm:"column:raised_by_id;type:uuid;not null"`
	RaisedByRole enums.ActorRole     `gorm:"column:raised_by_role;type:text;not null"`
	Reason       string              `gorm:"column:reason;not null"`
	Status       enums.DisputeStatus `gorm:"column:status;type:text;not null;default:'open';index"`

	Verdict       *enums.DisputeVerdict `gorm:"column:verdict;type:text"`
	Resolution    *string               `gorm:"column:resolution"`
	ResolvedByID  *uuid.UUID            `gorm:"column:resolved_by_id;type:uuid"`
	ResolvedAt    *time.Time            `gorm:"column:resolved_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent records every processor event the reconciler has accepted.
// EventID carries the processor's identifier and is unique; PayloadDigest is
// a SHA-256 over the canonical payload so a replayed delivery can be told
// apart from an id collision with a different body.
type WebhookEvent struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID       string     `gorm:"column:event_id;not null;uniqueIndex:idx_webhook_events_event_id"`
	EventType     string     `gorm:"column:event_type;not null"`
	PayloadDigest string     `gorm:"column:payload_digest;not null"`
	IntentRef     string     `gorm:"column:intent_ref;index"`
	OrderID       *uuid.UUID `gorm:"column:order_id;type:uuid;index"`
	ReceivedAt    time.Time  `gorm:"column:received_at;autoCreateTime"`
}

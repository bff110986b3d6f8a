package processorwebhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Envelope is the verified event the payment processor delivers. Signature
// verification happens upstream; by the time an envelope reaches the
// reconciler its origin is trusted but its content is not yet validated.
type Envelope struct {
	EventID string  `json:"eventId" validate:"required"`
	Type    string  `json:"type" validate:"required"`
	Payload Payload `json:"payload" validate:"required"`
}

// Payload carries the processor's view of the affected intent.
type Payload struct {
	IntentRef   string            `json:"intentRef" validate:"required"`
	AmountCents int64             `json:"amount" validate:"gte=0"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

// Digest returns the canonical SHA-256 of the envelope body. Two deliveries
// of the same event produce the same digest; the same event id with a
// different body does not.
func (e Envelope) Digest() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("canonicalize envelope: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

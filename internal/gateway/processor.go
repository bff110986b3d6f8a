package gateway

import (
	"context"

	"github.com/google/uuid"

	"github.com/atelierworks/atelier-backend/pkg/enums"
)

// AuthorizeRequest asks the processor to place a hold for an order's full
// amount without moving money.
type AuthorizeRequest struct {
	OrderID     uuid.UUID
	BuyerID     uuid.UUID
	AmountCents int64
	Currency    enums.Currency
}

// Authorization is the processor's handle for a placed hold.
type Authorization struct {
	IntentRef string
	Status    string
}

// CaptureResult reports a completed capture. AlreadyCaptured is set when the
// processor had already settled this intent, which callers treat as success.
type CaptureResult struct {
	IntentRef       string
	AmountCents     int64
	AlreadyCaptured bool
}

// RefundResult reports a completed refund against a captured intent.
type RefundResult struct {
	RefundRef   string
	AmountCents int64
}

// ProcessorClient is the raw payment-processor surface the gateway wraps.
// Implementations classify failures with the gateway error codes: transient
// for outages and rate limits, permanent for declines and invalid requests.
type ProcessorClient interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error)
	Capture(ctx context.Context, intentRef string) (*CaptureResult, error)
	Cancel(ctx context.Context, intentRef string) error
	Refund(ctx context.Context, intentRef string, amountCents int64) (*RefundResult, error)
}

package orders

import (
	"context"

	"github.com/google/uuid"

	"github.com/atelierworks/atelier-backend/internal/ledger"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
)

// settlementLedger is the slice of the ledger the state machine writes to.
type settlementLedger interface {
	RecordSettlement(ctx context.Context, input ledger.RecordSettlementInput) (*models.MarketplaceTransaction, bool, error)
	RecordRefund(ctx context.Context, input ledger.RecordRefundInput) (*models.Payment, error)
}

// DisputeChecker answers whether an order has an unresolved dispute.
// Implemented by the disputes repository.
type DisputeChecker interface {
	HasOpenDispute(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// LicenseIssuer grants usage rights once an order settles. Implemented by the
// licenses service; issuance is idempotent per order.
type LicenseIssuer interface {
	IssueForOrder(ctx context.Context, order *models.Order) (*models.License, error)
}

// CommissionSource resolves a commission reference during checkout.
// Implemented by the commissions service.
type CommissionSource interface {
	GetAccepted(ctx context.Context, id uuid.UUID) (*models.Commission, error)
}

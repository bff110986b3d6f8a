package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/internal/fees"
	"github.com/atelierworks/atelier-backend/internal/gateway"
	"github.com/atelierworks/atelier-backend/internal/ledger"
	"github.com/atelierworks/atelier-backend/pkg/config"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	"github.com/atelierworks/atelier-backend/pkg/enums"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/logger"
)

// Actor is the authenticated identity driving a transition. Identity and role
// verification happen upstream; the state machine only enforces authority.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// SystemActor drives engine-initiated transitions (webhooks, sweeps).
var SystemActor = Actor{Role: enums.ActorRoleSystem}

// PaymentEventKind is a processor lifecycle event already mapped by the
// webhook reconciler.
type PaymentEventKind string

const (
	PaymentEventAuthorized PaymentEventKind = "authorized"
	PaymentEventFailed     PaymentEventKind = "payment_failed"
	PaymentEventRefunded   PaymentEventKind = "refunded"
)

// Service is the order state machine. All order mutations flow through here;
// gateway-backed transitions persist status only after the processor call
// succeeds.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	AuthorizeOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	MarkProcessing(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	StartWork(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	MarkDelivered(ctx context.Context, orderID uuid.UUID, actor Actor, deliverableRefs []string) (*models.Order, error)
	AcceptDelivery(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	RequestRevision(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error)
	MarkDisputed(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	ApplyDisputeVerdict(ctx context.Context, orderID uuid.UUID, verdict enums.DisputeVerdict, actor Actor) (*models.Order, error)
	ApplyPaymentEvent(ctx context.Context, input PaymentEventInput) (*models.Order, error)
}

// CreateOrderInput captures checkout initiation.
type CreateOrderInput struct {
	BuyerID      uuid.UUID
	SellerID     uuid.UUID
	ListingID    *uuid.UUID
	CommissionID *uuid.UUID
	AmountCents  int64
	Currency     enums.Currency
}

// PaymentEventInput is a reconciled processor event addressed by intent ref.
type PaymentEventInput struct {
	IntentRef   string
	Kind        PaymentEventKind
	AmountCents int64
	RefundRef   string
	Reason      string
}

type service struct {
	repo        Repository
	gateway     gateway.Gateway
	ledger      settlementLedger
	calculator  *fees.Calculator
	disputes    DisputeChecker
	licenses    LicenseIssuer
	commissions CommissionSource
	cfg         config.EscrowConfig
	logg        *logger.Logger
	nowFn       func() time.Time
}

// NewService builds the order state machine with its collaborators.
func NewService(
	repo Repository,
	gw gateway.Gateway,
	settlements settlementLedger,
	calculator *fees.Calculator,
	disputes DisputeChecker,
	licenses LicenseIssuer,
	commissions CommissionSource,
	cfg config.EscrowConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if gw == nil {
		return nil, fmt.Errorf("escrow gateway required")
	}
	if settlements == nil {
		return nil, fmt.Errorf("settlement ledger required")
	}
	if calculator == nil {
		return nil, fmt.Errorf("fee calculator required")
	}
	if disputes == nil {
		return nil, fmt.Errorf("dispute checker required")
	}
	if licenses == nil {
		return nil, fmt.Errorf("license issuer required")
	}
	if commissions == nil {
		return nil, fmt.Errorf("commission source required")
	}
	if cfg.MaxRevisions <= 0 {
		cfg.MaxRevisions = 3
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:        repo,
		gateway:     gw,
		ledger:      settlements,
		calculator:  calculator,
		disputes:    disputes,
		licenses:    licenses,
		commissions: commissions,
		cfg:         cfg,
		logg:        logg,
		nowFn:       time.Now,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	if input.BuyerID == input.SellerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer and seller must differ")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
	}

	if input.CommissionID != nil {
		commission, err := s.commissions.GetAccepted(ctx, *input.CommissionID)
		if err != nil {
			return nil, err
		}
		if commission.BuyerID != input.BuyerID || commission.SellerID != input.SellerID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission parties do not match the order")
		}
		if commission.QuoteCents != input.AmountCents || commission.Currency != input.Currency {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order amount does not match the accepted quote")
		}
	}

	order := &models.Order{
		BuyerID:      input.BuyerID,
		SellerID:     input.SellerID,
		ListingID:    input.ListingID,
		CommissionID: input.CommissionID,
		AmountCents:  input.AmountCents,
		Currency:     input.Currency,
		Status:       enums.OrderStatusCreated,
		Version:      1,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order created")
	return order, nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return s.repo.GetByID(ctx, id)
}

// AuthorizeOrder places the processor hold for the full amount. The order
// moves to pending_payment carrying the intent ref; the hold is confirmed
// later by the processor's succeeded event.
func (s *service) AuthorizeOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.loadForTransition(ctx, orderID, enums.OrderStatusPendingPayment, actor)
	if err != nil {
		return nil, err
	}

	auth, err := s.gateway.Authorize(ctx, gateway.AuthorizeRequest{
		OrderID:     order.ID,
		BuyerID:     order.BuyerID,
		AmountCents: order.AmountCents,
		Currency:    order.Currency,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.TransitionStatus(ctx, order, enums.OrderStatusPendingPayment, map[string]any{
		"payment_intent_ref": auth.IntentRef,
	}); err != nil {
		return nil, err
	}
	order.PaymentIntentRef = &auth.IntentRef

	s.logg.Info(s.logg.WithIntentRef(s.logg.WithOrderID(ctx, order.ID.String()), auth.IntentRef), "hold placed, awaiting processor confirmation")
	return order, nil
}

func (s *service) MarkProcessing(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.loadForTransition(ctx, orderID, enums.OrderStatusProcessing, actor)
	if err != nil {
		return nil, err
	}
	now := s.nowFn()
	if err := s.repo.TransitionStatus(ctx, order, enums.OrderStatusProcessing, map[string]any{
		"processing_at": now,
	}); err != nil {
		return nil, err
	}
	order.ProcessingAt = &now
	return order, nil
}

func (s *service) StartWork(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.loadForTransition(ctx, orderID, enums.OrderStatusInProgress, actor)
	if err != nil {
		return nil, err
	}
	if err := s.repo.TransitionStatus(ctx, order, enums.OrderStatusInProgress, nil); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) MarkDelivered(ctx context.Context, orderID uuid.UUID, actor Actor, deliverableRefs []string) (*models.Order, error) {
	if len(deliverableRefs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one deliverable ref is required")
	}
	order, err := s.loadForTransition(ctx, orderID, enums.OrderStatusDelivered, actor)
	if err != nil {
		return nil, err
	}

	now := s.nowFn()
	refs := models.DeliverableRefs(deliverableRefs)
	if err := s.repo.TransitionStatus(ctx, order, enums.OrderStatusDelivered, map[string]any{
		"delivered_at":     now,
		"deliverable_refs": refs,
	}); err != nil {
		return nil, err
	}
	order.DeliveredAt = &now
	order.DeliverableRefs = refs

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "work delivered")
	return order, nil
}

// AcceptDelivery captures the hold, records the settlement split and
// completes the order. Safe to retry: the gateway treats a re-capture as
// success and the ledger keeps a single row per intent.
func (s *service) AcceptDelivery(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.loadForTransition(ctx, orderID, enums.OrderStatusCompleted, actor)
	if err != nil {
		return nil, err
	}
	if order.PaymentIntentRef == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no payment hold to capture")
	}

	// The dispute edge already moves the order out of delivered, but an
	// acceptance racing dispute creation must not settle funds.
	open, err := s.disputes.HasOpenDispute(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open disputes")
	}
	if open {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has an open dispute")
	}

	if _, err := s.settle(ctx, order); err != nil {
		return nil, err
	}

	now := s.nowFn()
	if err := s.repo.TransitionStatus(ctx, order, enums.OrderStatusCompleted, map[string]any{
		"completed_at": now,
	}); err != nil {
		return nil, err
	}
	order.CompletedAt = &now

	if _, err := s.licenses.IssueForOrder(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue license")
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "delivery accepted, funds settled")
	return order, nil
}

func (s *service) RequestRevision(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "revision reason is required")
	}
	order, err := s.loadForTransition(ctx, orderID, enums.OrderStatusInRevision, actor)
	if err != nil {
		return nil, err
	}
	if order.RevisionCount >= s.cfg.MaxRevisions {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "revision limit reached").
			WithDetails(map[string]int{"max_revisions": s.cfg.MaxRevisions})
	}

	if err := s.repo.TransitionStatus(ctx, order, enums.OrderStatusInRevision, map[string]any{
		"revision_count": gorm.Expr("revision_count + 1"),
	}); err != nil {
		return nil, err
	}
	order.RevisionCount++
	return order, nil
}

// CancelOrder voids an uncaptured hold. Once the processor has accepted a
// capture the only way back is a refund, so captured orders are rejected by
// the transition table here.
func (s *service) CancelOrder(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	order, err := s.loadForTransition(ctx, orderID, enums.OrderStatusCancelled, actor)
	if err != nil {
		return nil, err
	}

	if order.PaymentIntentRef != nil {
		if err := s.gateway.Cancel(ctx, *order.PaymentIntentRef); err != nil {
			return nil, err
		}
	}

	now := s.nowFn()
	updates := map[string]any{"cancelled_at": now}
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		updates["failure_reason"] = trimmed
	}
	if err := s.repo.TransitionStatus(ctx, order, enums.OrderStatusCancelled, updates); err != nil {
		return nil, err
	}
	order.CancelledAt = &now

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order cancelled")
	return order, nil
}

// MarkDisputed suspends the normal lifecycle. Called by the dispute resolver
// when a dispute opens.
func (s *service) MarkDisputed(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.loadForTransition(ctx, orderID, enums.OrderStatusDisputed, actor)
	if err != nil {
		return nil, err
	}
	now := s.nowFn()
	if err := s.repo.TransitionStatus(ctx, order, enums.OrderStatusDisputed, map[string]any{
		"disputed_at": now,
	}); err != nil {
		return nil, err
	}
	order.DisputedAt = &now
	return order, nil
}

// ApplyDisputeVerdict executes exactly one gateway command for the verdict:
// refund the buyer, or capture and settle for the seller.
func (s *service) ApplyDisputeVerdict(ctx context.Context, orderID uuid.UUID, verdict enums.DisputeVerdict, actor Actor) (*models.Order, error) {
	if !verdict.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid dispute verdict")
	}

	target := enums.OrderStatusRefunded
	if verdict == enums.DisputeVerdictReleaseToSeller {
		target = enums.OrderStatusCompleted
	}

	order, err := s.loadForTransition(ctx, orderID, target, actor)
	if err != nil {
		return nil, err
	}
	if order.PaymentIntentRef == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no payment hold")
	}

	now := s.nowFn()
	switch verdict {
	case enums.DisputeVerdictRefundBuyer:
		if err := s.refundHold(ctx, order); err != nil {
			return nil, err
		}
		if err := s.repo.TransitionStatus(ctx, order, enums.OrderStatusRefunded, map[string]any{
			"refunded_at": now,
		}); err != nil {
			return nil, err
		}
		order.RefundedAt = &now

	case enums.DisputeVerdictReleaseToSeller:
		if _, err := s.settle(ctx, order); err != nil {
			return nil, err
		}
		if err := s.repo.TransitionStatus(ctx, order, enums.OrderStatusCompleted, map[string]any{
			"completed_at": now,
		}); err != nil {
			return nil, err
		}
		order.CompletedAt = &now
		if _, err := s.licenses.IssueForOrder(ctx, order); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue license")
		}
	}

	s.logg.Info(s.logg.WithField(s.logg.WithOrderID(ctx, order.ID.String()), "verdict", verdict.String()), "dispute verdict applied")
	return order, nil
}

// ApplyPaymentEvent maps a reconciled processor event onto the state machine
// with system authority.
func (s *service) ApplyPaymentEvent(ctx context.Context, input PaymentEventInput) (*models.Order, error) {
	if strings.TrimSpace(input.IntentRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent ref is required")
	}

	order, err := s.repo.GetByIntentRef(ctx, input.IntentRef)
	if err != nil {
		return nil, err
	}
	now := s.nowFn()

	switch input.Kind {
	case PaymentEventAuthorized:
		// Confirmations can arrive more than once; an already-authorized
		// order is a no-op.
		if order.Status == enums.OrderStatusAuthorized {
			return order, nil
		}
		if err := CanTransition(order.Status, enums.OrderStatusAuthorized, enums.ActorRoleSystem); err != nil {
			return nil, err
		}
		if err := s.repo.TransitionStatus(ctx, order, enums.OrderStatusAuthorized, map[string]any{
			"authorized_at": now,
		}); err != nil {
			return nil, err
		}
		order.AuthorizedAt = &now
		return order, nil

	case PaymentEventFailed:
		if order.Status == enums.OrderStatusCancelled {
			return order, nil
		}
		if err := CanTransition(order.Status, enums.OrderStatusCancelled, enums.ActorRoleSystem); err != nil {
			return nil, err
		}
		updates := map[string]any{"cancelled_at": now}
		reason := strings.TrimSpace(input.Reason)
		if reason == "" {
			reason = "payment failed at the processor"
		}
		updates["failure_reason"] = reason
		if err := s.repo.TransitionStatus(ctx, order, enums.OrderStatusCancelled, updates); err != nil {
			return nil, err
		}
		order.CancelledAt = &now
		return order, nil

	case PaymentEventRefunded:
		if order.Status == enums.OrderStatusRefunded {
			return order, nil
		}
		if err := CanTransition(order.Status, enums.OrderStatusRefunded, enums.ActorRoleSystem); err != nil {
			return nil, err
		}
		amount := input.AmountCents
		if amount <= 0 || amount > order.AmountCents {
			amount = order.AmountCents
		}
		if _, err := s.ledger.RecordRefund(ctx, ledger.RecordRefundInput{
			OrderID:     order.ID,
			BuyerID:     order.BuyerID,
			AmountCents: amount,
			Currency:    order.Currency,
			IntentRef:   input.IntentRef,
			RefundRef:   input.RefundRef,
		}); err != nil {
			return nil, err
		}
		if err := s.repo.TransitionStatus(ctx, order, enums.OrderStatusRefunded, map[string]any{
			"refunded_at": now,
		}); err != nil {
			return nil, err
		}
		order.RefundedAt = &now
		return order, nil

	default:
		return nil, pkgerrors.New(pkgerrors.CodeUnrecognized,
			fmt.Sprintf("payment event kind %q is not recognized", input.Kind))
	}
}

// settle captures the hold and records the fee split. Both legs are
// idempotent on the intent ref.
func (s *service) settle(ctx context.Context, order *models.Order) (*models.MarketplaceTransaction, error) {
	capture, err := s.gateway.Capture(ctx, *order.PaymentIntentRef)
	if err != nil {
		return nil, err
	}

	split, err := s.calculator.Split(order.AmountCents)
	if err != nil {
		return nil, err
	}

	txn, _, err := s.ledger.RecordSettlement(ctx, ledger.RecordSettlementInput{
		OrderID:          order.ID,
		BuyerID:          order.BuyerID,
		SellerID:         order.SellerID,
		AmountCents:      split.GrossCents,
		PlatformFeeCents: split.PlatformFeeCents,
		NetAmountCents:   split.NetAmountCents,
		Currency:         order.Currency,
		IntentRef:        capture.IntentRef,
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) refundHold(ctx context.Context, order *models.Order) error {
	refund, err := s.gateway.Refund(ctx, *order.PaymentIntentRef, 0)
	if err != nil {
		return err
	}
	amount := refund.AmountCents
	if amount <= 0 || amount > order.AmountCents {
		amount = order.AmountCents
	}
	_, err = s.ledger.RecordRefund(ctx, ledger.RecordRefundInput{
		OrderID:     order.ID,
		BuyerID:     order.BuyerID,
		AmountCents: amount,
		Currency:    order.Currency,
		IntentRef:   *order.PaymentIntentRef,
		RefundRef:   refund.RefundRef,
	})
	return err
}

// loadForTransition reads the order and checks the requested edge against
// the authority table and the actor's relationship to the order.
func (s *service) loadForTransition(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus, actor Actor) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !actor.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid actor role")
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(order.Status, to, actor.Role); err != nil {
		return nil, err
	}
	if err := checkOwnership(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

func checkOwnership(order *models.Order, actor Actor) error {
	switch actor.Role {
	case enums.ActorRoleBuyer:
		if actor.UserID != order.BuyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "actor is not the order's buyer")
		}
	case enums.ActorRoleSeller:
		if actor.UserID != order.SellerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "actor is not the order's seller")
		}
	}
	return nil
}

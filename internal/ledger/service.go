package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/pkg/db"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	"github.com/atelierworks/atelier-backend/pkg/enums"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/logger"
	"github.com/atelierworks/atelier-backend/pkg/pagination"
)

// Service records money movements. Every settlement row it writes balances
// exactly: platform fee plus seller net equals the captured gross.
type Service interface {
	RecordSettlement(ctx context.Context, input RecordSettlementInput) (*models.MarketplaceTransaction, bool, error)
	RecordRefund(ctx context.Context, input RecordRefundInput) (*models.Payment, error)
	AttachPayout(ctx context.Context, input AttachPayoutInput) (*PayoutSummary, error)
	SellerBalance(ctx context.Context, sellerID uuid.UUID, currency enums.Currency) (int64, error)
	ListSellerTransactions(ctx context.Context, sellerID uuid.UUID, params pagination.Params) ([]models.MarketplaceTransaction, string, error)
	ListOrderPayments(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	HasSettlement(ctx context.Context, intentRef string) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo   Repository
	runner txRunner
	logg   *logger.Logger
	nowFn  func() time.Time
}

// RecordSettlementInput captures one settled escrow capture.
type RecordSettlementInput struct {
	OrderID          uuid.UUID
	BuyerID          uuid.UUID
	SellerID         uuid.UUID
	AmountCents      int64
	PlatformFeeCents int64
	NetAmountCents   int64
	Currency         enums.Currency
	IntentRef        string
}

// RecordRefundInput captures a refund returned to the buyer.
type RecordRefundInput struct {
	OrderID     uuid.UUID
	BuyerID     uuid.UUID
	AmountCents int64
	Currency    enums.Currency
	IntentRef   string
	RefundRef   string
}

// AttachPayoutInput marks a seller's available settlements in one currency
// as withdrawn under one external payout reference. Payouts never mix
// currencies; each currency gets its own attachment.
type AttachPayoutInput struct {
	SellerID  uuid.UUID
	Currency  enums.Currency
	PayoutRef string
}

// PayoutSummary describes the result of one payout attachment.
type PayoutSummary struct {
	SellerID         uuid.UUID
	Currency         enums.Currency
	PayoutRef        string
	TransactionCount int64
	TotalNetCents    int64
}

// NewService wires a ledger service with its repository and transaction runner.
func NewService(repo Repository, runner txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if runner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, runner: runner, logg: logg, nowFn: time.Now}, nil
}

func (s *service) RecordSettlement(ctx context.Context, input RecordSettlementInput) (*models.MarketplaceTransaction, bool, error) {
	if err := input.validate(); err != nil {
		return nil, false, err
	}

	txn := &models.MarketplaceTransaction{
		OrderID:               input.OrderID,
		BuyerID:               input.BuyerID,
		SellerID:              input.SellerID,
		AmountCents:           input.AmountCents,
		PlatformFeeCents:      input.PlatformFeeCents,
		NetAmountCents:        input.NetAmountCents,
		Currency:              input.Currency,
		StripePaymentIntentID: input.IntentRef,
		PayoutStatus:          enums.PayoutStatusAvailable,
	}

	now := s.nowFn()
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		orderID := input.OrderID
		intentRef := input.IntentRef
		return repo.CreatePayment(ctx, &models.Payment{
			OrderID:               &orderID,
			UserID:                input.SellerID,
			Type:                  enums.PaymentTypeEarning,
			AmountCents:           input.NetAmountCents,
			Currency:              input.Currency,
			Status:                enums.PaymentStatusCompleted,
			PayoutStatus:          enums.PayoutStatusAvailable,
			StripePaymentIntentID: &intentRef,
			ProcessedAt:           &now,
		})
	})
	logCtx := s.logg.WithIntentRef(s.logg.WithOrderID(ctx, input.OrderID.String()), input.IntentRef)
	if err != nil {
		if db.IsUniqueViolation(err, "idx_marketplace_transactions_intent") || db.IsUniqueViolation(err, "") {
			existing, getErr := s.repo.GetTransactionByIntent(ctx, input.IntentRef)
			if getErr != nil {
				return nil, false, getErr
			}
			if existing != nil {
				s.logg.Info(logCtx, "settlement already recorded, returning existing row")
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	s.logg.Info(s.logg.WithField(logCtx, "net_amount_cents", input.NetAmountCents), "settlement recorded")
	return txn, true, nil
}

func (s *service) RecordRefund(ctx context.Context, input RecordRefundInput) (*models.Payment, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
	}

	now := s.nowFn()
	orderID := input.OrderID
	payment := &models.Payment{
		OrderID:     &orderID,
		UserID:      input.BuyerID,
		Type:        enums.PaymentTypeRefund,
		AmountCents: input.AmountCents,
		Currency:    input.Currency,
		Status:      enums.PaymentStatusCompleted,
		ProcessedAt: &now,
	}
	if ref := strings.TrimSpace(input.IntentRef); ref != "" {
		payment.StripePaymentIntentID = &ref
	}
	if ref := strings.TrimSpace(input.RefundRef); ref != "" {
		payment.StripeRefundID = &ref
	}

	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithIntentRef(s.logg.WithOrderID(ctx, input.OrderID.String()), input.IntentRef)
	s.logg.Info(s.logg.WithField(logCtx, "amount_cents", input.AmountCents), "refund recorded")
	return payment, nil
}

func (s *service) AttachPayout(ctx context.Context, input AttachPayoutInput) (*PayoutSummary, error) {
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
	}
	payoutRef := strings.TrimSpace(input.PayoutRef)
	if payoutRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout ref is required")
	}

	now := s.nowFn()
	summary := &PayoutSummary{SellerID: input.SellerID, Currency: input.Currency, PayoutRef: payoutRef}
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		total, err := repo.SumAvailableNetBySeller(ctx, input.SellerID, input.Currency)
		if err != nil {
			return err
		}
		count, err := repo.MarkAvailableWithdrawn(ctx, input.SellerID, input.Currency, payoutRef, now)
		if err != nil {
			return err
		}
		summary.TotalNetCents = total
		summary.TransactionCount = count
		if count == 0 {
			return nil
		}
		return repo.CreatePayment(ctx, &models.Payment{
			UserID:         input.SellerID,
			Type:           enums.PaymentTypeWithdrawal,
			AmountCents:    total,
			Currency:       input.Currency,
			Status:         enums.PaymentStatusCompleted,
			PayoutStatus:   enums.PayoutStatusWithdrawn,
			StripePayoutID: &payoutRef,
			ProcessedAt:    &now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"seller_id":         input.SellerID.String(),
		"currency":          string(input.Currency),
		"payout_ref":        payoutRef,
		"transaction_count": summary.TransactionCount,
	}), "payout attached")
	return summary, nil
}

func (s *service) SellerBalance(ctx context.Context, sellerID uuid.UUID, currency enums.Currency) (int64, error) {
	if sellerID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	if !currency.IsValid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
	}
	return s.repo.SumAvailableNetBySeller(ctx, sellerID, currency)
}

func (s *service) ListSellerTransactions(ctx context.Context, sellerID uuid.UUID, params pagination.Params) ([]models.MarketplaceTransaction, string, error) {
	if sellerID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	txns, err := s.repo.ListTransactionsBySeller(ctx, sellerID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(txns) > limit {
		txns = txns[:limit]
		last := txns[len(txns)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return txns, next, nil
}

func (s *service) ListOrderPayments(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return s.repo.ListPaymentsByOrder(ctx, orderID)
}

func (s *service) HasSettlement(ctx context.Context, intentRef string) (bool, error) {
	if strings.TrimSpace(intentRef) == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "intent ref is required")
	}
	txn, err := s.repo.GetTransactionByIntent(ctx, intentRef)
	if err != nil {
		return false, err
	}
	return txn != nil, nil
}

func (input RecordSettlementInput) validate() error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if input.SellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	if strings.TrimSpace(input.IntentRef) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "intent ref is required")
	}
	if !input.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
	}
	if input.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.PlatformFeeCents < 0 || input.NetAmountCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "fee and net must be non-negative")
	}
	if input.PlatformFeeCents+input.NetAmountCents != input.AmountCents {
		return pkgerrors.New(pkgerrors.CodeValidation, "settlement does not balance").
			WithDetails(map[string]int64{
				"amount_cents":       input.AmountCents,
				"platform_fee_cents": input.PlatformFeeCents,
				"net_amount_cents":   input.NetAmountCents,
			})
	}
	return nil
}

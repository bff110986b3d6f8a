package commissions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atelierworks/atelier-backend/internal/orders"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	"github.com/atelierworks/atelier-backend/pkg/enums"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/logger"
)

// Service runs the pre-order negotiation: a buyer drafts and offers a
// commission, the seller accepts or declines, the buyer may withdraw an
// unanswered offer. Accepted commissions feed order creation and are frozen
// afterwards.
type Service interface {
	Draft(ctx context.Context, input DraftInput) (*models.Commission, error)
	Offer(ctx context.Context, commissionID uuid.UUID, actor orders.Actor) (*models.Commission, error)
	Accept(ctx context.Context, commissionID uuid.UUID, actor orders.Actor) (*models.Commission, error)
	Decline(ctx context.Context, commissionID uuid.UUID, actor orders.Actor) (*models.Commission, error)
	Withdraw(ctx context.Context, commissionID uuid.UUID, actor orders.Actor) (*models.Commission, error)
	GetCommission(ctx context.Context, id uuid.UUID) (*models.Commission, error)
	GetAccepted(ctx context.Context, id uuid.UUID) (*models.Commission, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Commission, error)
	ListForSeller(ctx context.Context, sellerID uuid.UUID) ([]models.Commission, error)
}

// DraftInput captures a buyer's commission request.
type DraftInput struct {
	BuyerID    uuid.UUID
	SellerID   uuid.UUID
	Title      string
	Brief      string
	QuoteCents int64
	Currency   enums.Currency
}

type service struct {
	repo  Repository
	logg  *logger.Logger
	nowFn func() time.Time
}

// NewService wires the commission negotiation service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("commissions repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg, nowFn: time.Now}, nil
}

func (s *service) Draft(ctx context.Context, input DraftInput) (*models.Commission, error) {
	if input.BuyerID == uuid.Nil || input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer and seller are required")
	}
	if input.BuyerID == input.SellerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer and seller must differ")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if input.QuoteCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote must be positive")
	}
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}

	commission := &models.Commission{
		BuyerID:    input.BuyerID,
		SellerID:   input.SellerID,
		Title:      title,
		Brief:      strings.TrimSpace(input.Brief),
		QuoteCents: input.QuoteCents,
		Currency:   currency,
		Status:     enums.CommissionStatusDraft,
	}
	if err := s.repo.Create(ctx, commission); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create commission")
	}

	s.logg.Info(s.logg.WithField(ctx, "commission_id", commission.ID.String()), "commission drafted")
	return commission, nil
}

func (s *service) Offer(ctx context.Context, commissionID uuid.UUID, actor orders.Actor) (*models.Commission, error) {
	commission, err := s.load(ctx, commissionID)
	if err != nil {
		return nil, err
	}
	if actor.Role != enums.ActorRoleBuyer || actor.UserID != commission.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer may offer a commission")
	}
	if commission.Status != enums.CommissionStatusDraft {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only a draft commission can be offered")
	}

	now := s.nowFn()
	if err := s.repo.Update(ctx, commission.ID, map[string]any{
		"status":     enums.CommissionStatusOffered,
		"offered_at": now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "offer commission")
	}
	commission.Status = enums.CommissionStatusOffered
	commission.OfferedAt = &now

	s.logg.Info(s.logg.WithField(ctx, "commission_id", commission.ID.String()), "commission offered")
	return commission, nil
}

func (s *service) Accept(ctx context.Context, commissionID uuid.UUID, actor orders.Actor) (*models.Commission, error) {
	return s.respond(ctx, commissionID, actor, enums.CommissionStatusAccepted)
}

func (s *service) Decline(ctx context.Context, commissionID uuid.UUID, actor orders.Actor) (*models.Commission, error) {
	return s.respond(ctx, commissionID, actor, enums.CommissionStatusDeclined)
}

// respond handles the seller's answer to an open offer.
func (s *service) respond(ctx context.Context, commissionID uuid.UUID, actor orders.Actor, status enums.CommissionStatus) (*models.Commission, error) {
	commission, err := s.load(ctx, commissionID)
	if err != nil {
		return nil, err
	}
	if actor.Role != enums.ActorRoleSeller || actor.UserID != commission.SellerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller may respond to an offer")
	}
	if commission.Status != enums.CommissionStatusOffered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "commission is not awaiting a response")
	}

	now := s.nowFn()
	if err := s.repo.Update(ctx, commission.ID, map[string]any{
		"status":       status,
		"responded_at": now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record commission response")
	}
	commission.Status = status
	commission.RespondedAt = &now

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"commission_id": commission.ID.String(),
		"status":        status.String(),
	}), "commission answered")
	return commission, nil
}

func (s *service) Withdraw(ctx context.Context, commissionID uuid.UUID, actor orders.Actor) (*models.Commission, error) {
	commission, err := s.load(ctx, commissionID)
	if err != nil {
		return nil, err
	}
	if actor.Role != enums.ActorRoleBuyer || actor.UserID != commission.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer may withdraw a commission")
	}
	if commission.Status != enums.CommissionStatusDraft && commission.Status != enums.CommissionStatusOffered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "commission can no longer be withdrawn")
	}

	now := s.nowFn()
	if err := s.repo.Update(ctx, commission.ID, map[string]any{
		"status":       enums.CommissionStatusWithdrawn,
		"responded_at": now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "withdraw commission")
	}
	commission.Status = enums.CommissionStatusWithdrawn
	commission.RespondedAt = &now

	s.logg.Info(s.logg.WithField(ctx, "commission_id", commission.ID.String()), "commission withdrawn")
	return commission, nil
}

func (s *service) GetCommission(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	return s.load(ctx, id)
}

// GetAccepted returns the commission only if the seller accepted it. Order
// creation validates its reference through here.
func (s *service) GetAccepted(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	commission, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if commission.Status != enums.CommissionStatusAccepted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "commission has not been accepted")
	}
	return commission, nil
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Commission, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	return s.repo.ListByBuyer(ctx, buyerID)
}

func (s *service) ListForSeller(ctx context.Context, sellerID uuid.UUID) ([]models.Commission, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	return s.repo.ListBySeller(ctx, sellerID)
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission id is required")
	}
	return s.repo.GetByID(ctx, id)
}

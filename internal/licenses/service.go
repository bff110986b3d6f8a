package licenses

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atelierworks/atelier-backend/pkg/db"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	"github.com/atelierworks/atelier-backend/pkg/enums"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/logger"
)

// Service issues usage-rights grants once an order settles in the seller's
// favor. Issuance is idempotent per order.
type Service interface {
	IssueForOrder(ctx context.Context, order *models.Order) (*models.License, error)
	GetOrderLicense(ctx context.Context, orderID uuid.UUID) (*models.License, error)
	ListBuyerLicenses(ctx context.Context, buyerID uuid.UUID) ([]models.License, error)
}

type service struct {
	repo  Repository
	logg  *logger.Logger
	nowFn func() time.Time
}

// NewService wires the license issuer.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("licenses repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg, nowFn: time.Now}, nil
}

// IssueForOrder grants the buyer a license for a settled order. Commissioned
// work is granted exclusively; catalog purchases get the standard scope.
// Re-issuing for the same order returns the existing grant.
func (s *service) IssueForOrder(ctx context.Context, order *models.Order) (*models.License, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if order.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	scope := enums.LicenseScopeStandard
	if order.CommissionID != nil {
		scope = enums.LicenseScopeExclusive
	}

	license := &models.License{
		OrderID:  order.ID,
		BuyerID:  order.BuyerID,
		SellerID: order.SellerID,
		Scope:    scope,
		IssuedAt: s.nowFn(),
	}
	if err := s.repo.Create(ctx, license); err != nil {
		if db.IsUniqueViolation(err, "idx_licenses_order_id") || db.IsUniqueViolation(err, "") {
			existing, getErr := s.repo.GetByOrderID(ctx, order.ID)
			if getErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, getErr, "load existing license")
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create license")
	}

	s.logg.Info(s.logg.WithField(s.logg.WithOrderID(ctx, order.ID.String()), "scope", scope.String()), "license issued")
	return license, nil
}

func (s *service) GetOrderLicense(ctx context.Context, orderID uuid.UUID) (*models.License, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	license, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load license")
	}
	if license == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "license not found")
	}
	return license, nil
}

func (s *service) ListBuyerLicenses(ctx context.Context, buyerID uuid.UUID) ([]models.License, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	return s.repo.ListByBuyer(ctx, buyerID)
}

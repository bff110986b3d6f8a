package licenses

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/pkg/db/models"
)

// Repository persists usage-rights grants.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, license *models.License) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.License, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.License, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a license repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, license *models.License) error {
	return r.db.WithContext(ctx).Create(license).Error
}

func (r *repository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.License, error) {
	var license models.License
	err := r.db.WithContext(ctx).First(&license, "order_id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &license, nil
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.License, error) {
	var licenses []models.License
	err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("issued_at DESC").
		Find(&licenses).Error
	return licenses, err
}

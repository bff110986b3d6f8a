package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/atelierworks/atelier-backend/internal/orders"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/logger"
)

const paymentExpiryReason = "payment authorization window expired"

// pendingPaymentReader lists orders stuck awaiting authorization.
type pendingPaymentReader interface {
	ListPendingPaymentBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// orderCanceller voids the hold and cancels the order.
type orderCanceller interface {
	CancelOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor, reason string) (*models.Order, error)
}

// PaymentExpiryJobParams configure the pending payment expiry sweep.
type PaymentExpiryJobParams struct {
	Logger    *logger.Logger
	Reader    pendingPaymentReader
	Orders    orderCanceller
	ExpireTTL time.Duration
	BatchSize int
}

// NewPaymentExpiryJob builds the job that cancels orders whose payment
// authorization never confirmed.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	if params.ExpireTTL <= 0 {
		return nil, fmt.Errorf("expiry ttl must be positive")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	return &paymentExpiryJob{
		logg:      params.Logger,
		reader:    params.Reader,
		orders:    params.Orders,
		expireTTL: params.ExpireTTL,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

type paymentExpiryJob struct {
	logg      *logger.Logger
	reader    pendingPaymentReader
	orders    orderCanceller
	expireTTL time.Duration
	batchSize int
	now       func() time.Time
}

func (j *paymentExpiryJob) Name() string { return "payment-expiry" }

func (j *paymentExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.expireTTL)
	stale, err := j.reader.ListPendingPaymentBefore(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query stale pending payments: %w", err)
	}

	var errs error
	cancelled, skipped := 0, 0
	for _, order := range stale {
		if _, err := j.orders.CancelOrder(ctx, order.ID, orders.SystemActor, paymentExpiryReason); err != nil {
			// The confirmation may have arrived after the listing.
			if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) || pkgerrors.HasCode(err, pkgerrors.CodeConcurrentMod) {
				skipped++
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		cancelled++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"count":     len(stale),
		"cancelled": cancelled,
		"skipped":   skipped,
	})
	j.logg.Info(logCtx, "payment expiry sweep complete")
	return errs
}

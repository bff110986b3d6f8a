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

const defaultSweepBatchSize = 100

// deliveredOrderReader lists delivered orders older than the cutoff.
type deliveredOrderReader interface {
	ListDeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// deliveryAcceptor is the slice of the order state machine the sweep drives.
type deliveryAcceptor interface {
	AcceptDelivery(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error)
}

// openDisputeChecker guards the sweep from settling contested orders.
type openDisputeChecker interface {
	HasOpenDispute(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// AutoAcceptJobParams configure the delivery auto-accept sweep.
type AutoAcceptJobParams struct {
	Logger      *logger.Logger
	Reader      deliveredOrderReader
	Orders      deliveryAcceptor
	Disputes    openDisputeChecker
	AcceptAfter time.Duration
	BatchSize   int
}

// NewAutoAcceptJob builds the job that settles deliveries the buyer never
// answered. Orders with an open dispute are left alone.
func NewAutoAcceptJob(params AutoAcceptJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	if params.Disputes == nil {
		return nil, fmt.Errorf("dispute checker required")
	}
	if params.AcceptAfter <= 0 {
		return nil, fmt.Errorf("accept-after window must be positive")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	return &autoAcceptJob{
		logg:        params.Logger,
		reader:      params.Reader,
		orders:      params.Orders,
		disputes:    params.Disputes,
		acceptAfter: params.AcceptAfter,
		batchSize:   batchSize,
		now:         time.Now,
	}, nil
}

type autoAcceptJob struct {
	logg        *logger.Logger
	reader      deliveredOrderReader
	orders      deliveryAcceptor
	disputes    openDisputeChecker
	acceptAfter time.Duration
	batchSize   int
	now         func() time.Time
}

func (j *autoAcceptJob) Name() string { return "delivery-auto-accept" }

func (j *autoAcceptJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.acceptAfter)
	stale, err := j.reader.ListDeliveredBefore(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query stale deliveries: %w", err)
	}

	var errs error
	accepted, skipped := 0, 0
	for _, order := range stale {
		open, err := j.disputes.HasOpenDispute(ctx, order.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("check dispute for order %s: %w", order.ID, err))
			continue
		}
		if open {
			skipped++
			continue
		}
		if _, err := j.orders.AcceptDelivery(ctx, order.ID, orders.SystemActor); err != nil {
			// A buyer action or a dispute can land between the listing and
			// the accept; those orders are simply no longer stale.
			if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) || pkgerrors.HasCode(err, pkgerrors.CodeConcurrentMod) {
				skipped++
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("auto-accept order %s: %w", order.ID, err))
			continue
		}
		accepted++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"count":   len(stale),
		"settled": accepted,
		"skipped": skipped,
	})
	j.logg.Info(logCtx, "delivery auto-accept sweep complete")
	return errs
}

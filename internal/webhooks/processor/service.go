package processorwebhook

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/atelierworks/atelier-backend/internal/orders"
	"github.com/atelierworks/atelier-backend/pkg/db"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/logger"
)

// eventKinds maps the processor's event types onto state machine inputs.
// Anything not listed here is acknowledged upstream but rejected as
// unrecognized so nobody retries it forever.
var eventKinds = map[string]orders.PaymentEventKind{
	"payment_intent.succeeded":      orders.PaymentEventAuthorized,
	"payment_intent.payment_failed": orders.PaymentEventFailed,
	"charge.refunded":               orders.PaymentEventRefunded,
}

// orderEvents is the slice of the order state machine the reconciler drives.
type orderEvents interface {
	ApplyPaymentEvent(ctx context.Context, input orders.PaymentEventInput) (*models.Order, error)
}

// Result reports what a delivery did. Duplicate deliveries succeed without
// touching the state machine.
type Result struct {
	Duplicate bool
	Order     *models.Order
}

// Service reconciles asynchronous processor events with the order ledger.
type Service interface {
	HandleEvent(ctx context.Context, envelope Envelope) (*Result, error)
}

type service struct {
	repo     Repository
	guard    *IdempotencyGuard
	orders   orderEvents
	validate *validator.Validate
	logg     *logger.Logger
}

// NewService wires the webhook reconciler.
func NewService(repo Repository, guard *IdempotencyGuard, machine orderEvents, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("webhook repository required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if machine == nil {
		return nil, fmt.Errorf("order state machine required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		guard:    guard,
		orders:   machine,
		validate: validator.New(),
		logg:     logg,
	}, nil
}

// HandleEvent applies one verified processor event exactly once. The event id
// is recorded before the transition runs; a replay of an already-processed
// event is a successful no-op, while a new body under a known id is rejected.
func (s *service) HandleEvent(ctx context.Context, envelope Envelope) (*Result, error) {
	if err := s.validate.Struct(envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event envelope")
	}
	ctx = s.logg.WithIntentRef(s.logg.WithEventID(ctx, envelope.EventID), envelope.Payload.IntentRef)

	kind, ok := eventKinds[envelope.Type]
	if !ok {
		s.logg.Warn(s.logg.WithField(ctx, "event_type", envelope.Type), "unrecognized processor event")
		return nil, pkgerrors.New(pkgerrors.CodeUnrecognized, "unrecognized event type").
			WithDetails(map[string]any{"event_type": envelope.Type})
	}

	digest, err := envelope.Digest()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "digest envelope")
	}

	// Redis catches the common replay cheaply; a miss (or an outage) falls
	// through to the events table, which stays authoritative.
	seen, guardErr := s.guard.CheckAndMark(ctx, envelope.EventID)
	if guardErr != nil {
		s.logg.Warn(ctx, "idempotency store unavailable, falling back to database")
	}
	if seen || guardErr != nil {
		if result, err := s.resolveExisting(ctx, envelope.EventID, digest); result != nil || err != nil {
			return result, err
		}
		// Marked in redis but never persisted: a previous attempt died
		// mid-flight, so process the event normally.
	}

	event := &models.WebhookEvent{
		EventID:       envelope.EventID,
		EventType:     envelope.Type,
		PayloadDigest: digest,
		IntentRef:     envelope.Payload.IntentRef,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		if db.IsUniqueViolation(err, "idx_webhook_events_event_id") || db.IsUniqueViolation(err, "") {
			// Lost a race with a concurrent delivery of the same event.
			if result, resolveErr := s.resolveExisting(ctx, envelope.EventID, digest); result != nil || resolveErr != nil {
				return result, resolveErr
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
	}

	order, err := s.orders.ApplyPaymentEvent(ctx, orders.PaymentEventInput{
		IntentRef:   envelope.Payload.IntentRef,
		Kind:        kind,
		AmountCents: envelope.Payload.AmountCents,
		RefundRef:   envelope.Payload.Metadata["refund_ref"],
		Reason:      envelope.Payload.Metadata["reason"],
	})
	if err != nil {
		// Release the marks so the processor's redelivery gets a clean run.
		if delErr := s.repo.Delete(ctx, envelope.EventID); delErr != nil {
			s.logg.Error(ctx, "failed to release webhook event record", delErr)
		}
		if delErr := s.guard.Delete(ctx, envelope.EventID); delErr != nil {
			s.logg.Error(ctx, "failed to release idempotency mark", delErr)
		}
		return nil, err
	}

	if err := s.repo.SetOrderID(ctx, envelope.EventID, order.ID); err != nil {
		s.logg.Error(ctx, "failed to link webhook event to order", err)
	}

	s.logg.Info(s.logg.WithOrderID(s.logg.WithField(ctx, "event_type", envelope.Type), order.ID.String()), "processor event applied")
	return &Result{Order: order}, nil
}

// resolveExisting compares an incoming delivery against the recorded event
// with the same id. Returns (nil, nil) when no record exists.
func (s *service) resolveExisting(ctx context.Context, eventID, digest string) (*Result, error) {
	existing, err := s.repo.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load webhook event")
	}
	if existing == nil {
		return nil, nil
	}
	if existing.PayloadDigest != digest {
		return nil, pkgerrors.New(pkgerrors.CodeReplayConflict, "event id was already processed with a different payload").
			WithDetails(map[string]any{"event_id": eventID})
	}
	s.logg.Info(s.logg.WithEventID(ctx, eventID), "duplicate processor event ignored")
	return &Result{Duplicate: true}, nil
}

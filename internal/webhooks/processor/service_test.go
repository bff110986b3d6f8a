package processorwebhook

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/internal/orders"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	"github.com/atelierworks/atelier-backend/pkg/enums"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/logger"
)

type fakeStore struct {
	values map[string]string
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string]string)}
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.values[key], nil
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = "1"
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "atl:idemp:" + scope + ":" + id
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) error {
	if f.err != nil {
		return f.err
	}
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

type fakeEventRepo struct {
	events map[string]*models.WebhookEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: make(map[string]*models.WebhookEvent)}
}

func (f *fakeEventRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeEventRepo) Create(ctx context.Context, event *models.WebhookEvent) error {
	if _, ok := f.events[event.EventID]; ok {
		return errors.New(`duplicate key value violates unique constraint "idx_webhook_events_event_id"`)
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	f.events[event.EventID] = event
	return nil
}

func (f *fakeEventRepo) GetByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	return f.events[eventID], nil
}

func (f *fakeEventRepo) SetOrderID(ctx context.Context, eventID string, orderID uuid.UUID) error {
	if event, ok := f.events[eventID]; ok {
		event.OrderID = &orderID
	}
	return nil
}

func (f *fakeEventRepo) Delete(ctx context.Context, eventID string) error {
	delete(f.events, eventID)
	return nil
}

type fakeOrderEvents struct {
	applied []orders.PaymentEventInput
	err     error
}

func (f *fakeOrderEvents) ApplyPaymentEvent(ctx context.Context, input orders.PaymentEventInput) (*models.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.applied = append(f.applied, input)
	status := enums.OrderStatusAuthorized
	switch input.Kind {
	case orders.PaymentEventFailed:
		status = enums.OrderStatusCancelled
	case orders.PaymentEventRefunded:
		status = enums.OrderStatusRefunded
	}
	return &models.Order{ID: uuid.New(), Status: status, PaymentIntentRef: &input.IntentRef}, nil
}

type harness struct {
	repo    *fakeEventRepo
	store   *fakeStore
	machine *fakeOrderEvents
	svc     Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := newFakeEventRepo()
	store := newFakeStore()
	machine := &fakeOrderEvents{}
	guard, err := NewIdempotencyGuard(store, time.Hour, "webhook")
	if err != nil {
		t.Fatalf("guard error: %v", err)
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(repo, guard, machine, logg)
	if err != nil {
		t.Fatalf("service error: %v", err)
	}
	return &harness{repo: repo, store: store, machine: machine, svc: svc}
}

func succeededEnvelope() Envelope {
	return Envelope{
		EventID: "evt_001",
		Type:    "payment_intent.succeeded",
		Payload: Payload{
			IntentRef:   "pi_test_123",
			AmountCents: 10000,
			Currency:    "usd",
		},
	}
}

func TestHandleEvent_AppliesTransition(t *testing.T) {
	h := newHarness(t)

	result, err := h.svc.HandleEvent(context.Background(), succeededEnvelope())
	if err != nil {
		t.Fatalf("HandleEvent error: %v", err)
	}
	if result.Duplicate {
		t.Fatal("first delivery must not be a duplicate")
	}
	if result.Order == nil || result.Order.Status != enums.OrderStatusAuthorized {
		t.Fatalf("order = %+v, want authorized", result.Order)
	}
	if len(h.machine.applied) != 1 {
		t.Fatalf("applied %d events, want 1", len(h.machine.applied))
	}
	if h.machine.applied[0].Kind != orders.PaymentEventAuthorized {
		t.Fatalf("kind = %s, want authorized", h.machine.applied[0].Kind)
	}

	event := h.repo.events["evt_001"]
	if event == nil {
		t.Fatal("event must be recorded")
	}
	if event.OrderID == nil || *event.OrderID != result.Order.ID {
		t.Fatalf("event not linked to order: %+v", event)
	}
}

func TestHandleEvent_ReplayIsNoOp(t *testing.T) {
	h := newHarness(t)
	envelope := succeededEnvelope()

	if _, err := h.svc.HandleEvent(context.Background(), envelope); err != nil {
		t.Fatalf("first delivery error: %v", err)
	}
	result, err := h.svc.HandleEvent(context.Background(), envelope)
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if !result.Duplicate {
		t.Fatal("replay must report duplicate")
	}
	if len(h.machine.applied) != 1 {
		t.Fatalf("transition applied %d times, want exactly once", len(h.machine.applied))
	}
}

func TestHandleEvent_SameIDDifferentPayload(t *testing.T) {
	h := newHarness(t)

	if _, err := h.svc.HandleEvent(context.Background(), succeededEnvelope()); err != nil {
		t.Fatalf("first delivery error: %v", err)
	}

	altered := succeededEnvelope()
	altered.Payload.AmountCents = 99999
	_, err := h.svc.HandleEvent(context.Background(), altered)
	if !pkgerrors.HasCode(err, pkgerrors.CodeReplayConflict) {
		t.Fatalf("expected replay conflict, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	if !ok || details["event_id"] != altered.EventID {
		t.Fatalf("conflict should carry the event id, got %v", pkgerrors.As(err).Details())
	}
	if len(h.machine.applied) != 1 {
		t.Fatalf("conflicting delivery must not reach the state machine, applied=%d", len(h.machine.applied))
	}
}

func TestHandleEvent_UnrecognizedType(t *testing.T) {
	h := newHarness(t)

	envelope := succeededEnvelope()
	envelope.Type = "customer.subscription.created"
	_, err := h.svc.HandleEvent(context.Background(), envelope)
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnrecognized) {
		t.Fatalf("expected unrecognized event error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	if !ok || details["event_type"] != envelope.Type {
		t.Fatalf("error should carry the event type, got %v", pkgerrors.As(err).Details())
	}
	if len(h.machine.applied) != 0 {
		t.Fatal("unrecognized events must not touch the state machine")
	}
	if len(h.repo.events) != 0 {
		t.Fatal("unrecognized events must not be recorded")
	}
}

func TestHandleEvent_Validation(t *testing.T) {
	h := newHarness(t)

	envelope := succeededEnvelope()
	envelope.Payload.IntentRef = ""
	if _, err := h.svc.HandleEvent(context.Background(), envelope); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHandleEvent_FailureReleasesMarksForRedelivery(t *testing.T) {
	h := newHarness(t)
	h.machine.err = pkgerrors.New(pkgerrors.CodeConcurrentMod, "order changed concurrently")

	envelope := succeededEnvelope()
	if _, err := h.svc.HandleEvent(context.Background(), envelope); !pkgerrors.HasCode(err, pkgerrors.CodeConcurrentMod) {
		t.Fatalf("expected concurrent modification error, got %v", err)
	}
	if len(h.repo.events) != 0 {
		t.Fatal("failed event must not stay recorded")
	}

	// Redelivery succeeds once the underlying conflict clears.
	h.machine.err = nil
	result, err := h.svc.HandleEvent(context.Background(), envelope)
	if err != nil {
		t.Fatalf("redelivery error: %v", err)
	}
	if result.Duplicate {
		t.Fatal("redelivery after failure must be processed, not deduplicated")
	}
	if len(h.machine.applied) != 1 {
		t.Fatalf("applied %d events, want 1", len(h.machine.applied))
	}
}

func TestHandleEvent_DatabaseAuthoritativeWhenRedisDown(t *testing.T) {
	h := newHarness(t)
	envelope := succeededEnvelope()

	if _, err := h.svc.HandleEvent(context.Background(), envelope); err != nil {
		t.Fatalf("first delivery error: %v", err)
	}

	// Redis is unavailable for the replay; the events table still catches it.
	h.store.err = errors.New("connection refused")
	result, err := h.svc.HandleEvent(context.Background(), envelope)
	if err != nil {
		t.Fatalf("replay with redis down error: %v", err)
	}
	if !result.Duplicate {
		t.Fatal("replay must be deduplicated by the events table")
	}
	if len(h.machine.applied) != 1 {
		t.Fatalf("transition applied %d times, want exactly once", len(h.machine.applied))
	}
}

func TestHandleEvent_RedisMarkWithoutRowIsReprocessed(t *testing.T) {
	h := newHarness(t)
	envelope := succeededEnvelope()

	// Simulates a crash after the redis mark but before the row was written.
	key := h.store.IdempotencyKey("webhook", envelope.EventID)
	h.store.values[key] = "1"

	result, err := h.svc.HandleEvent(context.Background(), envelope)
	if err != nil {
		t.Fatalf("HandleEvent error: %v", err)
	}
	if result.Duplicate {
		t.Fatal("orphaned redis mark must not suppress processing")
	}
	if len(h.machine.applied) != 1 {
		t.Fatalf("applied %d events, want 1", len(h.machine.applied))
	}
}

func TestHandleEvent_PaymentFailedCancelsOrder(t *testing.T) {
	h := newHarness(t)

	envelope := Envelope{
		EventID: "evt_failed_01",
		Type:    "payment_intent.payment_failed",
		Payload: Payload{
			IntentRef: "pi_test_123",
			Metadata:  map[string]string{"reason": "card_declined"},
		},
	}
	result, err := h.svc.HandleEvent(context.Background(), envelope)
	if err != nil {
		t.Fatalf("HandleEvent error: %v", err)
	}
	if result.Order.Status != enums.OrderStatusCancelled {
		t.Fatalf("order status = %s, want cancelled", result.Order.Status)
	}
	if h.machine.applied[0].Kind != orders.PaymentEventFailed {
		t.Fatalf("kind = %s, want payment_failed", h.machine.applied[0].Kind)
	}
	if h.machine.applied[0].Reason != "card_declined" {
		t.Fatalf("reason = %q, want card_declined", h.machine.applied[0].Reason)
	}
}

func TestHandleEvent_RefundCarriesMetadata(t *testing.T) {
	h := newHarness(t)

	envelope := Envelope{
		EventID: "evt_refund_01",
		Type:    "charge.refunded",
		Payload: Payload{
			IntentRef:   "pi_test_123",
			AmountCents: 10000,
			Metadata:    map[string]string{"refund_ref": "re_abc"},
		},
	}
	if _, err := h.svc.HandleEvent(context.Background(), envelope); err != nil {
		t.Fatalf("HandleEvent error: %v", err)
	}
	applied := h.machine.applied[0]
	if applied.Kind != orders.PaymentEventRefunded {
		t.Fatalf("kind = %s, want refunded", applied.Kind)
	}
	if applied.RefundRef != "re_abc" {
		t.Fatalf("refund ref = %q, want re_abc", applied.RefundRef)
	}
}

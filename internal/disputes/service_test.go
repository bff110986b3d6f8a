package disputes

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/internal/orders"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	"github.com/atelierworks/atelier-backend/pkg/enums"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/logger"
)

type fakeRepository struct {
	disputes map[uuid.UUID]*models.Dispute
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{disputes: make(map[uuid.UUID]*models.Dispute)}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, dispute *models.Dispute) error {
	if dispute.ID == uuid.Nil {
		dispute.ID = uuid.New()
	}
	f.disputes[dispute.ID] = dispute
	return nil
}

func (f *fakeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	dispute, ok := f.disputes[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
	}
	return dispute, nil
}

func (f *fakeRepository) HasOpenDispute(ctx context.Context, orderID uuid.UUID) (bool, error) {
	for _, dispute := range f.disputes {
		if dispute.OrderID == orderID && dispute.Status == enums.DisputeStatusOpen {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Dispute, error) {
	var result []models.Dispute
	for _, dispute := range f.disputes {
		if dispute.OrderID == orderID {
			result = append(result, *dispute)
		}
	}
	return result, nil
}

func (f *fakeRepository) Update(ctx context.Context, disputeID uuid.UUID, updates map[string]any) error {
	dispute, ok := f.disputes[disputeID]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
	}
	if status, ok := updates["status"].(enums.DisputeStatus); ok {
		dispute.Status = status
	}
	if verdict, ok := updates["verdict"].(enums.DisputeVerdict); ok {
		dispute.Verdict = &verdict
	}
	return nil
}

func (f *fakeRepository) Delete(ctx context.Context, disputeID uuid.UUID) error {
	delete(f.disputes, disputeID)
	return nil
}

type fakeOrderMachine struct {
	markDisputedErr error
	markedDisputed  []uuid.UUID
	verdicts        []enums.DisputeVerdict
	verdictErr      error
}

func (f *fakeOrderMachine) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: id}, nil
}

func (f *fakeOrderMachine) MarkDisputed(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error) {
	if f.markDisputedErr != nil {
		return nil, f.markDisputedErr
	}
	f.markedDisputed = append(f.markedDisputed, orderID)
	return &models.Order{ID: orderID, Status: enums.OrderStatusDisputed}, nil
}

func (f *fakeOrderMachine) ApplyDisputeVerdict(ctx context.Context, orderID uuid.UUID, verdict enums.DisputeVerdict, actor orders.Actor) (*models.Order, error) {
	if f.verdictErr != nil {
		return nil, f.verdictErr
	}
	f.verdicts = append(f.verdicts, verdict)
	status := enums.OrderStatusRefunded
	if verdict == enums.DisputeVerdictReleaseToSeller {
		status = enums.OrderStatusCompleted
	}
	return &models.Order{ID: orderID, Status: status}, nil
}

func newTestService(t *testing.T, repo Repository, machine orderMachine) Service {
	t.Helper()
	svc, err := NewService(repo, machine, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc
}

func TestService_Open(t *testing.T) {
	repo := newFakeRepository()
	machine := &fakeOrderMachine{}
	svc := newTestService(t, repo, machine)

	orderID := uuid.New()
	actor := orders.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer}

	dispute, err := svc.Open(context.Background(), OpenDisputeInput{
		OrderID: orderID,
		Actor:   actor,
		Reason:  "deliverable does not match the brief",
	})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if dispute.Status != enums.DisputeStatusOpen {
		t.Fatalf("status = %s, want open", dispute.Status)
	}
	if len(machine.markedDisputed) != 1 || machine.markedDisputed[0] != orderID {
		t.Fatalf("order not marked disputed: %v", machine.markedDisputed)
	}

	// A second open on the same order is rejected by the guard.
	if _, err := svc.Open(context.Background(), OpenDisputeInput{
		OrderID: orderID,
		Actor:   actor,
		Reason:  "still unhappy",
	}); !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict for second open dispute, got %v", err)
	}
}

func TestService_OpenValidation(t *testing.T) {
	svc := newTestService(t, newFakeRepository(), &fakeOrderMachine{})

	if _, err := svc.Open(context.Background(), OpenDisputeInput{
		OrderID: uuid.New(),
		Actor:   orders.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin},
		Reason:  "reason",
	}); !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for admin opener, got %v", err)
	}

	if _, err := svc.Open(context.Background(), OpenDisputeInput{
		OrderID: uuid.New(),
		Actor:   orders.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer},
		Reason:  "   ",
	}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for blank reason, got %v", err)
	}
}

func TestService_OpenWithdrawsRowOnRejectedTransition(t *testing.T) {
	repo := newFakeRepository()
	machine := &fakeOrderMachine{
		markDisputedErr: pkgerrors.New(pkgerrors.CodeStateConflict, "transition cancelled -> disputed is not allowed"),
	}
	svc := newTestService(t, repo, machine)

	orderID := uuid.New()
	if _, err := svc.Open(context.Background(), OpenDisputeInput{
		OrderID: orderID,
		Actor:   orders.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer},
		Reason:  "too late",
	}); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}

	open, err := repo.HasOpenDispute(context.Background(), orderID)
	if err != nil {
		t.Fatalf("HasOpenDispute error: %v", err)
	}
	if open {
		t.Fatal("rejected open must not leave a dangling dispute row")
	}
}

func TestService_ResolveRefundBuyer(t *testing.T) {
	repo := newFakeRepository()
	machine := &fakeOrderMachine{}
	svc := newTestService(t, repo, machine)

	dispute := &models.Dispute{
		ID:           uuid.New(),
		OrderID:      uuid.New(),
		RaisedByID:   uuid.New(),
		RaisedByRole: enums.ActorRoleBuyer,
		Reason:       "not as described",
		Status:       enums.DisputeStatusOpen,
	}
	repo.disputes[dispute.ID] = dispute

	admin := orders.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
	resolved, err := svc.Resolve(context.Background(), ResolveDisputeInput{
		DisputeID:  dispute.ID,
		Actor:      admin,
		Verdict:    enums.DisputeVerdictRefundBuyer,
		Resolution: "refund issued in full",
	})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if resolved.Status != enums.DisputeStatusResolved {
		t.Fatalf("status = %s, want resolved", resolved.Status)
	}
	if resolved.Verdict == nil || *resolved.Verdict != enums.DisputeVerdictRefundBuyer {
		t.Fatalf("verdict not recorded: %+v", resolved)
	}
	if len(machine.verdicts) != 1 || machine.verdicts[0] != enums.DisputeVerdictRefundBuyer {
		t.Fatalf("verdict applications = %v, want exactly one refund_buyer", machine.verdicts)
	}

	// Re-resolving is rejected without touching the gateway again.
	if _, err := svc.Resolve(context.Background(), ResolveDisputeInput{
		DisputeID: dispute.ID,
		Actor:     admin,
		Verdict:   enums.DisputeVerdictReleaseToSeller,
	}); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on second resolve, got %v", err)
	}
	if len(machine.verdicts) != 1 {
		t.Fatalf("verdict applied twice: %v", machine.verdicts)
	}
}

func TestService_ResolveRequiresAdmin(t *testing.T) {
	repo := newFakeRepository()
	machine := &fakeOrderMachine{}
	svc := newTestService(t, repo, machine)

	dispute := &models.Dispute{ID: uuid.New(), OrderID: uuid.New(), Status: enums.DisputeStatusOpen}
	repo.disputes[dispute.ID] = dispute

	if _, err := svc.Resolve(context.Background(), ResolveDisputeInput{
		DisputeID: dispute.ID,
		Actor:     orders.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer},
		Verdict:   enums.DisputeVerdictRefundBuyer,
	}); !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for non-admin resolver, got %v", err)
	}
	if len(machine.verdicts) != 0 {
		t.Fatal("no verdict may be applied by a non-admin")
	}
}

func TestService_ResolveDisputeNotResolvedOnVerdictFailure(t *testing.T) {
	repo := newFakeRepository()
	machine := &fakeOrderMachine{
		verdictErr: pkgerrors.New(pkgerrors.CodeGatewayTransient, "processor unavailable"),
	}
	svc := newTestService(t, repo, machine)

	dispute := &models.Dispute{ID: uuid.New(), OrderID: uuid.New(), Status: enums.DisputeStatusOpen}
	repo.disputes[dispute.ID] = dispute

	if _, err := svc.Resolve(context.Background(), ResolveDisputeInput{
		DisputeID: dispute.ID,
		Actor:     orders.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin},
		Verdict:   enums.DisputeVerdictRefundBuyer,
	}); !pkgerrors.HasCode(err, pkgerrors.CodeGatewayTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if dispute.Status != enums.DisputeStatusOpen {
		t.Fatalf("dispute status = %s, want open after failed verdict", dispute.Status)
	}
}

package disputes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atelierworks/atelier-backend/internal/orders"
	"github.com/atelierworks/atelier-backend/pkg/db"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	"github.com/atelierworks/atelier-backend/pkg/enums"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/logger"
)

// orderMachine is the slice of the order state machine the resolver drives.
type orderMachine interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	MarkDisputed(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error)
	ApplyDisputeVerdict(ctx context.Context, orderID uuid.UUID, verdict enums.DisputeVerdict, actor orders.Actor) (*models.Order, error)
}

// Service runs the dispute lifecycle: open suspends the order, resolve issues
// a verdict that moves money exactly once.
type Service interface {
	Open(ctx context.Context, input OpenDisputeInput) (*models.Dispute, error)
	Resolve(ctx context.Context, input ResolveDisputeInput) (*models.Dispute, error)
	GetDispute(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	ListOrderDisputes(ctx context.Context, orderID uuid.UUID) ([]models.Dispute, error)
}

// OpenDisputeInput captures a buyer or seller raising a dispute.
type OpenDisputeInput struct {
	OrderID uuid.UUID
	Actor   orders.Actor
	Reason  string
}

// ResolveDisputeInput captures an admin verdict.
type ResolveDisputeInput struct {
	DisputeID  uuid.UUID
	Actor      orders.Actor
	Verdict    enums.DisputeVerdict
	Resolution string
}

type service struct {
	repo   Repository
	orders orderMachine
	logg   *logger.Logger
	nowFn  func() time.Time
}

// NewService wires the dispute resolver.
func NewService(repo Repository, machine orderMachine, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("disputes repository required")
	}
	if machine == nil {
		return nil, fmt.Errorf("order state machine required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, orders: machine, logg: logg, nowFn: time.Now}, nil
}

func (s *service) Open(ctx context.Context, input OpenDisputeInput) (*models.Dispute, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.Actor.Role != enums.ActorRoleBuyer && input.Actor.Role != enums.ActorRoleSeller {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only buyer or seller may open a dispute")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute reason is required")
	}

	open, err := s.repo.HasOpenDispute(ctx, input.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open disputes")
	}
	if open {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already has an open dispute")
	}

	dispute := &models.Dispute{
		OrderID:      input.OrderID,
		RaisedByID:   input.Actor.UserID,
		RaisedByRole: input.Actor.Role,
		Reason:       reason,
		Status:       enums.DisputeStatusOpen,
	}
	if err := s.repo.Create(ctx, dispute); err != nil {
		if db.IsUniqueViolation(err, "idx_disputes_one_open_per_order") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already has an open dispute")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create dispute")
	}

	if _, err := s.orders.MarkDisputed(ctx, input.OrderID, input.Actor); err != nil {
		// The order refused the edge (terminal state, lost race, wrong
		// party): withdraw the row so the guard does not wedge the order.
		if delErr := s.repo.Delete(ctx, dispute.ID); delErr != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, input.OrderID.String()), "failed to withdraw dispute after rejected transition", delErr)
		}
		return nil, err
	}

	s.logg.Info(s.logg.WithActorRole(s.logg.WithOrderID(ctx, input.OrderID.String()), input.Actor.Role.String()), "dispute opened")
	return dispute, nil
}

func (s *service) Resolve(ctx context.Context, input ResolveDisputeInput) (*models.Dispute, error) {
	if input.DisputeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute id is required")
	}
	if input.Actor.Role != enums.ActorRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only an admin may resolve a dispute")
	}
	if !input.Verdict.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid verdict")
	}

	dispute, err := s.repo.GetByID(ctx, input.DisputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status != enums.DisputeStatusOpen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "dispute is already resolved")
	}

	// Exactly one gateway command happens inside the verdict application;
	// the order ends refunded or completed.
	if _, err := s.orders.ApplyDisputeVerdict(ctx, dispute.OrderID, input.Verdict, input.Actor); err != nil {
		return nil, err
	}

	now := s.nowFn()
	updates := map[string]any{
		"status":         enums.DisputeStatusResolved,
		"verdict":        input.Verdict,
		"resolved_by_id": input.Actor.UserID,
		"resolved_at":    now,
	}
	if resolution := strings.TrimSpace(input.Resolution); resolution != "" {
		updates["resolution"] = resolution
	}
	if err := s.repo.Update(ctx, dispute.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark dispute resolved")
	}

	dispute.Status = enums.DisputeStatusResolved
	verdict := input.Verdict
	dispute.Verdict = &verdict
	dispute.ResolvedAt = &now
	resolvedBy := input.Actor.UserID
	dispute.ResolvedByID = &resolvedBy

	s.logg.Info(s.logg.WithField(s.logg.WithOrderID(ctx, dispute.OrderID.String()), "verdict", verdict.String()), "dispute resolved")
	return dispute, nil
}

func (s *service) GetDispute(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute id is required")
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListOrderDisputes(ctx context.Context, orderID uuid.UUID) ([]models.Dispute, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return s.repo.ListByOrderID(ctx, orderID)
}

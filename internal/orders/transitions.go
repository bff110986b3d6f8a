package orders

import (
	"fmt"

	"github.com/atelierworks/atelier-backend/pkg/enums"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
)

type edge struct {
	From enums.OrderStatus
	To   enums.OrderStatus
}

// transitionAuthority is the single source of truth for the order lifecycle:
// which edges exist, and which roles may drive each one. Status never changes
// except through CanTransition.
var transitionAuthority = map[edge][]enums.ActorRole{
	{enums.OrderStatusCreated, enums.OrderStatusPendingPayment}: {enums.ActorRoleBuyer, enums.ActorRoleSystem},
	{enums.OrderStatusCreated, enums.OrderStatusCancelled}:      {enums.ActorRoleBuyer, enums.ActorRoleAdmin, enums.ActorRoleSystem},

	// Only the processor (via webhook) confirms or fails a hold.
	{enums.OrderStatusPendingPayment, enums.OrderStatusAuthorized}: {enums.ActorRoleSystem},
	{enums.OrderStatusPendingPayment, enums.OrderStatusCancelled}:  {enums.ActorRoleBuyer, enums.ActorRoleAdmin, enums.ActorRoleSystem},

	{enums.OrderStatusAuthorized, enums.OrderStatusProcessing}: {enums.ActorRoleSeller},
	{enums.OrderStatusAuthorized, enums.OrderStatusCancelled}:  {enums.ActorRoleBuyer, enums.ActorRoleAdmin, enums.ActorRoleSystem},
	{enums.OrderStatusAuthorized, enums.OrderStatusDisputed}:   {enums.ActorRoleBuyer, enums.ActorRoleSeller},

	{enums.OrderStatusProcessing, enums.OrderStatusInProgress}: {enums.ActorRoleSeller},
	{enums.OrderStatusProcessing, enums.OrderStatusDisputed}:   {enums.ActorRoleBuyer, enums.ActorRoleSeller},

	{enums.OrderStatusInProgress, enums.OrderStatusDelivered}: {enums.ActorRoleSeller},
	{enums.OrderStatusInProgress, enums.OrderStatusDisputed}:  {enums.ActorRoleBuyer, enums.ActorRoleSeller},

	{enums.OrderStatusDelivered, enums.OrderStatusCompleted}:  {enums.ActorRoleBuyer, enums.ActorRoleSystem},
	{enums.OrderStatusDelivered, enums.OrderStatusInRevision}: {enums.ActorRoleBuyer},
	{enums.OrderStatusDelivered, enums.OrderStatusDisputed}:   {enums.ActorRoleBuyer, enums.ActorRoleSeller},

	{enums.OrderStatusInRevision, enums.OrderStatusDelivered}: {enums.ActorRoleSeller},
	{enums.OrderStatusInRevision, enums.OrderStatusDisputed}:  {enums.ActorRoleBuyer, enums.ActorRoleSeller},

	// Verdict edges: only the resolver (admin) or the engine itself.
	{enums.OrderStatusDisputed, enums.OrderStatusCompleted}: {enums.ActorRoleAdmin, enums.ActorRoleSystem},
	{enums.OrderStatusDisputed, enums.OrderStatusRefunded}:  {enums.ActorRoleAdmin, enums.ActorRoleSystem},

	// completed is terminal for buyers and sellers; a processor-initiated
	// refund can still land after settlement.
	{enums.OrderStatusCompleted, enums.OrderStatusRefunded}: {enums.ActorRoleAdmin, enums.ActorRoleSystem},
}

// CanTransition reports whether the given role may move an order along the
// requested edge. Unknown edges fail with STATE_CONFLICT, known edges with an
// unauthorized role fail with FORBIDDEN.
func CanTransition(from, to enums.OrderStatus, role enums.ActorRole) error {
	roles, ok := transitionAuthority[edge{From: from, To: to}]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("transition %s -> %s is not allowed", from, to))
	}
	for _, allowed := range roles {
		if allowed == role {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden,
		fmt.Sprintf("role %s may not trigger %s -> %s", role, from, to))
}

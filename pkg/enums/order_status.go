package enums

import "fmt"

// OrderStatus tracks the escrow lifecycle of an order.
type OrderStatus string

const (
	OrderStatusCreated        OrderStatus = "created"
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusAuthorized     OrderStatus = "authorized"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusInProgress     OrderStatus = "in_progress"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusInRevision     OrderStatus = "in_revision"
	OrderStatusDisputed       OrderStatus = "disputed"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRefunded       OrderStatus = "refunded"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusPendingPayment,
	OrderStatusAuthorized,
	OrderStatusProcessing,
	OrderStatusInProgress,
	OrderStatusDelivered,
	OrderStatusInRevision,
	OrderStatusDisputed,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing edges of its own.
// completed still admits the processor-driven refund edge; see the order
// transition table.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// IsPostAuthorization reports whether the order has an active hold or capture.
func (s OrderStatus) IsPostAuthorization() bool {
	switch s {
	case OrderStatusAuthorized, OrderStatusProcessing, OrderStatusInProgress,
		OrderStatusDelivered, OrderStatusInRevision:
		return true
	default:
		return false
	}
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

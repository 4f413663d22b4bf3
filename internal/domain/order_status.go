package domain

import "strings"

// OrderStatus enumerates the lifecycle states of an order. The string value is the wire name.
type OrderStatus string

const (
	// OrderStatusCancelled marks an order withdrawn by its owner.
	OrderStatusCancelled OrderStatus = "Cancelled"
	// OrderStatusDataConfirmed is reserved; no lifecycle operation enters it.
	OrderStatusDataConfirmed OrderStatus = "DataConfirmed"
	// OrderStatusPendingPayment is the state every order is created in.
	OrderStatusPendingPayment OrderStatus = "PendingPayment"
	// OrderStatusPaymentSuccess marks a paid order awaiting fulfilment.
	OrderStatusPaymentSuccess OrderStatus = "PaymentSuccess"
	// OrderStatusDelivering marks an order whose stock has been reserved and is being shipped.
	OrderStatusDelivering OrderStatus = "Delivering"
	// OrderStatusOrderCompleted marks a fulfilled order.
	OrderStatusOrderCompleted OrderStatus = "OrderCompleted"
)

var orderStatuses = []OrderStatus{
	OrderStatusCancelled,
	OrderStatusDataConfirmed,
	OrderStatusPendingPayment,
	OrderStatusPaymentSuccess,
	OrderStatusDelivering,
	OrderStatusOrderCompleted,
}

// OrderStatuses returns every known status in declaration order.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(orderStatuses))
	copy(out, orderStatuses)
	return out
}

// ParseOrderStatus matches name case-insensitively against the known statuses.
// Unknown or blank names are rejected rather than defaulted.
func ParseOrderStatus(name string) (OrderStatus, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	for _, status := range orderStatuses {
		if strings.EqualFold(string(status), name) {
			return status, true
		}
	}
	return "", false
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	for _, status := range orderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// ReservesStockFrom reports whether moving from prev to s reserves stock.
// Stock is taken exactly once, on the PaymentSuccess to Delivering edge.
func (s OrderStatus) ReservesStockFrom(prev OrderStatus) bool {
	return prev == OrderStatusPaymentSuccess && s == OrderStatusDelivering
}

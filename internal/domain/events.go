package domain

import (
	"time"

	"github.com/joao-fontenele/checkoutflow/internal/money"
)

// StatusChange records one order status transition. From is empty for the
// initial Pending record written with the order itself.
type StatusChange struct {
	OrderID         string      `json:"order_id"`
	ExternalOrderID string      `json:"external_order_id"`
	UserID          string      `json:"user_id"`
	From            OrderStatus `json:"from,omitempty"`
	To              OrderStatus `json:"to"`
	Amount          money.Money `json:"amount"`
	Timestamp       time.Time   `json:"timestamp"`
}

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/checkoutflow/internal/money"
)

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "Pending"
	OrderStatusOrdered OrderStatus = "Ordered"
	OrderStatusPaid    OrderStatus = "Paid"
	OrderStatusFailed  OrderStatus = "Failed"
)

const OrderTypeOrder = "Order"

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusOrdered, OrderStatusPaid, OrderStatusFailed:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusFailed
}

// CanTransitionTo reports whether to is a legal next status.
// Pending -> Ordered -> Paid, and Pending/Ordered -> Failed.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case OrderStatusPending:
		return to == OrderStatusOrdered || to == OrderStatusFailed
	case OrderStatusOrdered:
		return to == OrderStatusPaid || to == OrderStatusFailed
	}
	return false
}

type OrderItem struct {
	ID        int64       `json:"id"`
	OrderID   string      `json:"order_id"`
	ProductID string      `json:"product_id"`
	Amount    money.Money `json:"amount"`
	Count     int         `json:"count"`
	CreatedAt time.Time   `json:"created_at"`
}

// Total is what this line contributed to the order amount.
func (i OrderItem) Total() money.Money {
	return i.Amount.Times(i.Count)
}

type Order struct {
	ID        string      `json:"id"`
	Amount    money.Money `json:"amount"`
	UserID    string      `json:"user_id"`
	CreatedAt time.Time   `json:"created_at"`
	Status    OrderStatus `json:"status"`
	Type      string      `json:"type"`
	OrderID   string      `json:"order_id"`
	Items     []OrderItem `json:"items"`
}

// NewOrder snapshots the user's basket. Item amounts are copied from the
// product total price at this moment and never re-derived afterwards.
// OrderID starts as a local placeholder until the backend assigns one.
func NewOrder(user *User, now time.Time) *Order {
	order := &Order{
		ID:        uuid.NewString(),
		Amount:    user.BasketValue(),
		UserID:    user.ID,
		CreatedAt: now,
		Status:    OrderStatusPending,
		Type:      OrderTypeOrder,
		OrderID:   uuid.NewString(),
		Items:     make([]OrderItem, 0, len(user.BasketItems)),
	}

	for _, item := range user.BasketItems {
		order.Items = append(order.Items, OrderItem{
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Amount:    item.Product.TotalPrice(),
			Count:     item.Count,
			CreatedAt: now,
		})
	}

	return order
}

// ItemsTotal recomputes the amount from the snapshotted lines.
func (o *Order) ItemsTotal() money.Money {
	total := money.Zero
	for _, item := range o.Items {
		total = total.Add(item.Total())
	}
	return total
}

// Transition moves the order to status if the state machine allows it. The
// returned change is stamped with at.
func (o *Order) Transition(to OrderStatus, at time.Time) (StatusChange, error) {
	if !o.Status.CanTransitionTo(to) {
		return StatusChange{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}

	change := StatusChange{
		OrderID:         o.ID,
		ExternalOrderID: o.OrderID,
		UserID:          o.UserID,
		From:            o.Status,
		To:              to,
		Amount:          o.Amount,
		Timestamp:       at,
	}
	o.Status = to
	return change, nil
}

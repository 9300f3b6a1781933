package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/joao-fontenele/checkoutflow/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// OrderFilter narrows ListOrders. Zero values match everything.
type OrderFilter struct {
	UserID   string
	Statuses []domain.OrderStatus
	Limit    uint64
}

// SaveOrder writes the order, its items and the initial status record in one
// transaction. Item ids are assigned from the database.
func (r *Repository) SaveOrder(ctx context.Context, order *domain.Order) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, amount, user_id, created_at, updated_at, status, type, order_id)
			VALUES ($1, $2, $3, $4, $4, $5, $6, $7)
		`, order.ID, order.Amount, order.UserID, order.CreatedAt, order.Status, order.Type, order.OrderID)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i := range order.Items {
			item := &order.Items[i]
			err := tx.QueryRowContext(ctx, `
				INSERT INTO order_items (order_id, product_id, amount, count, created_at)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id
			`, order.ID, item.ProductID, item.Amount, item.Count, item.CreatedAt).Scan(&item.ID)
			if err != nil {
				return fmt.Errorf("insert order item %s: %w", item.ProductID, err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_status_history (order_id, external_order_id, from_status, to_status, changed_at)
			VALUES ($1, $2, NULL, $3, $4)
		`, order.ID, order.OrderID, order.Status, order.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}

		return nil
	})
}

func (r *Repository) UpdateOrderExternalID(ctx context.Context, id, externalID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET order_id = $1, updated_at = NOW()
		WHERE id = $2
	`, externalID, id)
	if err != nil {
		return fmt.Errorf("update external order id: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("update external order id %s: %w", id, domain.ErrOrderNotFound)
	}

	return nil
}

// UpdateOrderStatus applies change if the stored status still equals
// change.From, and appends it to the status history.
func (r *Repository) UpdateOrderStatus(ctx context.Context, change domain.StatusChange) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var current domain.OrderStatus
		err := tx.QueryRowContext(ctx, `
			SELECT status FROM orders WHERE id = $1 FOR UPDATE
		`, change.OrderID).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("update order status %s: %w", change.OrderID, domain.ErrOrderNotFound)
			}
			return fmt.Errorf("lock order: %w", err)
		}

		if current != change.From || !current.CanTransitionTo(change.To) {
			return fmt.Errorf("%w: stored %s, requested %s -> %s", domain.ErrInvalidTransition, current, change.From, change.To)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET status = $1, updated_at = $2
			WHERE id = $3
		`, change.To, change.Timestamp, change.OrderID)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_status_history (order_id, external_order_id, from_status, to_status, changed_at)
			VALUES ($1, $2, $3, $4, $5)
		`, change.OrderID, change.ExternalOrderID, change.From, change.To, change.Timestamp)
		if err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}

		return nil
	})
}

// GetOrder returns (nil, nil) when no order has id.
func (r *Repository) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, amount, user_id, created_at, status, type, order_id
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.Amount, &order.UserID, &order.CreatedAt, &order.Status, &order.Type, &order.OrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	orders := map[string]*domain.Order{order.ID: order}
	if err := r.loadItems(ctx, orders, []string{order.ID}); err != nil {
		return nil, err
	}

	return order, nil
}

// ListOrders returns matching orders, newest first, with their items.
func (r *Repository) ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error) {
	query, args, err := listOrdersQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("build list orders query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.Amount, &order.UserID, &order.CreatedAt, &order.Status, &order.Type, &order.OrderID); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	if err := r.loadItems(ctx, orderMap, orderIDs); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

func listOrdersQuery(filter OrderFilter) (string, []any, error) {
	q := psql.
		Select("id", "amount", "user_id", "created_at", "status", "type", "order_id").
		From("orders").
		OrderBy("created_at DESC", "id")

	if filter.UserID != "" {
		q = q.Where(sq.Eq{"user_id": filter.UserID})
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where(sq.Eq{"status": statuses})
	}

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	return q.ToSql()
}

func (r *Repository) loadItems(ctx context.Context, orders map[string]*domain.Order, ids []string) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, amount, count, created_at
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for _, order := range orders {
		order.Items = []domain.OrderItem{}
	}

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Amount, &item.Count, &item.CreatedAt); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		order := orders[item.OrderID]
		order.Items = append(order.Items, item)
	}

	return rows.Err()
}

// StatusHistory returns every recorded transition of the order, oldest first.
func (r *Repository) StatusHistory(ctx context.Context, orderID string) ([]domain.StatusChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT h.order_id, h.external_order_id, o.user_id, h.from_status, h.to_status, o.amount, h.changed_at
		FROM order_status_history h
		JOIN orders o ON o.id = h.order_id
		WHERE h.order_id = $1
		ORDER BY h.id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("status history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	history := []domain.StatusChange{}
	for rows.Next() {
		var change domain.StatusChange
		var from sql.NullString
		if err := rows.Scan(&change.OrderID, &change.ExternalOrderID, &change.UserID, &from, &change.To, &change.Amount, &change.Timestamp); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		change.From = domain.OrderStatus(from.String)
		history = append(history, change)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}

	return history, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/joao-fontenele/checkoutflow/internal/domain"
)

// EnsureUser returns the user with id, creating it on first sight.
func (r *Repository) EnsureUser(ctx context.Context, id string) (*domain.User, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, created_at, last_seen)
		VALUES ($1, $2, $2)
		ON CONFLICT (id) DO NOTHING
	`, id, now)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	user, err := r.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("ensure user %s: %w", id, domain.ErrUserNotFound)
	}
	return user, nil
}

// FindUserByID loads the user with its basket lines and their products.
// It returns (nil, nil) when the user does not exist.
func (r *Repository) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	user := &domain.User{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, created_at, last_seen
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.CreatedAt, &user.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT bi.id, bi.user_id, bi.product_id, bi.count, bi.created_at,
		       p.id, p.name, p.vat_rate, p.price_unit
		FROM basket_items bi
		JOIN products p ON p.id = bi.product_id
		WHERE bi.user_id = $1
		ORDER BY bi.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("find basket items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	user.BasketItems = []domain.BasketItem{}
	for rows.Next() {
		var item domain.BasketItem
		if err := rows.Scan(
			&item.ID, &item.UserID, &item.ProductID, &item.Count, &item.CreatedAt,
			&item.Product.ID, &item.Product.Name, &item.Product.VATRate, &item.Product.PriceUnit,
		); err != nil {
			return nil, fmt.Errorf("scan basket item: %w", err)
		}
		user.BasketItems = append(user.BasketItems, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate basket items: %w", err)
	}

	return user, nil
}

// SaveUser upserts the user and every basket line in one transaction. New
// lines get their generated ids assigned.
func (r *Repository) SaveUser(ctx context.Context, user *domain.User) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, created_at, last_seen)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET last_seen = EXCLUDED.last_seen
		`, user.ID, user.CreatedAt, user.LastSeen)
		if err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}

		for i := range user.BasketItems {
			item := &user.BasketItems[i]
			err := tx.QueryRowContext(ctx, `
				INSERT INTO basket_items (user_id, product_id, count, created_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (user_id, product_id) DO UPDATE SET count = EXCLUDED.count
				RETURNING id
			`, user.ID, item.ProductID, item.Count, item.CreatedAt).Scan(&item.ID)
			if err != nil {
				return fmt.Errorf("upsert basket item %s: %w", item.ProductID, err)
			}
		}

		return nil
	})
}

func (r *Repository) DeleteBasketItems(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM basket_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete basket items: %w", err)
	}
	return nil
}

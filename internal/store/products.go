package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joao-fontenele/checkoutflow/internal/domain"
)

// FindProductByID returns (nil, nil) when no product has id.
func (r *Repository) FindProductByID(ctx context.Context, id string) (*domain.Product, error) {
	product := &domain.Product{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, vat_rate, price_unit
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.VATRate, &product.PriceUnit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find product: %w", err)
	}

	return product, nil
}

// SaveProduct upserts a catalog entry.
func (r *Repository) SaveProduct(ctx context.Context, product domain.Product) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, vat_rate, price_unit)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, vat_rate = EXCLUDED.vat_rate, price_unit = EXCLUDED.price_unit
	`, product.ID, product.Name, product.VATRate, product.PriceUnit)
	if err != nil {
		return fmt.Errorf("save product: %w", err)
	}
	return nil
}

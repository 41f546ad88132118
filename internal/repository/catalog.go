package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jmshop/luckybox-system/internal/model"
)

// GetBoxWithProducts returns a box with its product pool fully resolved,
// in stored pool order. The pool may be empty; the caller decides whether
// that is acceptable for the operation at hand.
func (r *PostgresRepository) GetBoxWithProducts(ctx context.Context, boxID int64) (*model.Box, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, price, is_public FROM boxes WHERE id = $1`,
		boxID,
	)

	var b model.Box
	if err := row.Scan(&b.ID, &b.Name, &b.Price, &b.IsPublic); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBoxNotFound
		}
		return nil, fmt.Errorf("get box: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.name, p.price, p.image_url, bp.weight
		 FROM box_products bp
		 JOIN products p ON p.id = bp.product_id
		 WHERE bp.box_id = $1
		 ORDER BY bp.position, p.id`,
		boxID,
	)
	if err != nil {
		return nil, fmt.Errorf("select box products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bp model.BoxProduct
		if err := rows.Scan(&bp.Product.ID, &bp.Product.Name, &bp.Product.Price, &bp.Product.ImageURL, &bp.Weight); err != nil {
			return nil, fmt.Errorf("scan box product: %w", err)
		}
		b.Products = append(b.Products, bp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &b, nil
}

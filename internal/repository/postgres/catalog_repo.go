package postgres

import (
	"context"

	"github.com/and161185/warranty-keeper/internal/model"
)

// CatalogRepo reads the products and orders tables mirrored from the shop.
type CatalogRepo struct{ db *DB }

// NewCatalogRepo constructs a catalog repository.
func NewCatalogRepo(db *DB) *CatalogRepo { return &CatalogRepo{db: db} }

// ProductExists reports whether a product with the SKU is known.
func (r *CatalogRepo) ProductExists(ctx context.Context, sku string) (bool, error) {
	var ok bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE sku=$1)`, sku).Scan(&ok)
	return ok, err
}

// GetOrder loads an order by its increment reference.
func (r *CatalogRepo) GetOrder(ctx context.Context, reference string) (*model.Order, error) {
	const q = `SELECT reference, customer_id FROM orders WHERE reference=$1`
	var o model.Order
	if err := r.db.Pool.QueryRow(ctx, q, reference).Scan(&o.Reference, &o.OwnerID); err != nil {
		return nil, mapNoRows(err)
	}
	return &o, nil
}

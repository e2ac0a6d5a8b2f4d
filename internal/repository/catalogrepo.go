package repository

import (
	"context"

	"github.com/and161185/warranty-keeper/internal/model"
)

// ProductCatalog answers whether a product key is sellable.
type ProductCatalog interface {
	ProductExists(ctx context.Context, sku string) (bool, error)
}

// OrderLookup resolves external sales orders by reference.
type OrderLookup interface {
	// GetOrder returns errs.ErrNotFound for unknown references.
	GetOrder(ctx context.Context, reference string) (*model.Order, error)
}

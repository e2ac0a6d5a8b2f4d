package repository

import (
	"context"

	"github.com/and161185/warranty-keeper/internal/model"
)

// AccountRepository provides CRUD access for customer and admin accounts.
type AccountRepository interface {
	// Create inserts a new account and fills its ID.
	Create(ctx context.Context, a *model.Account) error
	// GetByID loads an account by ID.
	GetByID(ctx context.Context, id int64) (*model.Account, error)
	// GetByEmail loads an account by email.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
}

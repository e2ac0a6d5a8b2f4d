package postgres

import (
	"context"
	"strings"

	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/model"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

// Create inserts a new account row. Emails are stored lowercased.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO accounts (email, pwd_hash, salt, admin)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	err := r.db.Pool.QueryRow(ctx, q, a.Email, a.PwdHash, a.Salt, a.Admin).Scan(&a.ID, &a.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	const q = `
SELECT id, email, pwd_hash, salt, admin, created_at
FROM accounts WHERE id=$1`
	var a model.Account
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&a.ID, &a.Email, &a.PwdHash, &a.Salt, &a.Admin, &a.CreatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &a, nil
}

// GetByEmail selects an account by email (case-insensitive).
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	const q = `
SELECT id, email, pwd_hash, salt, admin, created_at
FROM accounts WHERE email=$1`
	var a model.Account
	row := r.db.Pool.QueryRow(ctx, q, strings.ToLower(strings.TrimSpace(email)))
	if err := row.Scan(&a.ID, &a.Email, &a.PwdHash, &a.Salt, &a.Admin, &a.CreatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &a, nil
}

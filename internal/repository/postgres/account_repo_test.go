package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestAccountRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	now := time.Now()
	a := &model.Account{Email: " Bob@Example.com", PwdHash: []byte("h"), Salt: []byte("s")}

	mock.ExpectQuery(`INSERT INTO accounts \(email, pwd_hash, salt, admin\) VALUES \(\$1, \$2, \$3, \$4\) RETURNING id, created_at`).
		WithArgs("bob@example.com", []byte("h"), []byte("s"), false).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))
	require.NoError(t, r.Create(ctx, a))
	require.Equal(t, int64(1), a.ID)
	require.Equal(t, "bob@example.com", a.Email)

	mock.ExpectQuery(`INSERT INTO accounts`).
		WithArgs("bob@example.com", []byte("h"), []byte("s"), false).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, a), errs.ErrAlreadyExists)
}

func TestAccountRepo_GetByID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`SELECT id, email, pwd_hash, salt, admin, created_at FROM accounts WHERE id=\$1`).
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "pwd_hash", "salt", "admin", "created_at"}).
			AddRow(int64(2), "a@b.c", []byte("h"), []byte("s"), true, now))
	a, err := r.GetByID(ctx, 2)
	require.NoError(t, err)
	require.True(t, a.Admin)

	mock.ExpectQuery(`SELECT id, email, pwd_hash, salt, admin, created_at FROM accounts WHERE id=\$1`).
		WithArgs(int64(3)).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByID(ctx, 3)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAccountRepo_GetByEmail(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`SELECT id, email, pwd_hash, salt, admin, created_at FROM accounts WHERE email=\$1`).
		WithArgs("a@b.c").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "pwd_hash", "salt", "admin", "created_at"}).
			AddRow(int64(2), "a@b.c", []byte("h"), []byte("s"), false, now))
	a, err := r.GetByEmail(ctx, "A@B.C")
	require.NoError(t, err)
	require.Equal(t, int64(2), a.ID)

	mock.ExpectQuery(`SELECT id, email, pwd_hash, salt, admin, created_at FROM accounts WHERE email=\$1`).
		WithArgs("x@y.z").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByEmail(ctx, "x@y.z")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var testPolicy = Policy{Window: 5 * time.Minute, MaxFails: 3, BlockFor: 10 * time.Minute}

func newPG(t *testing.T) (*PG, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	l := NewPG(mock, testPolicy)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, mock, now
}

func TestPG_Allow(t *testing.T) {
	l, mock, now := newPG(t)
	defer mock.Close()
	ctx := context.Background()
	h := []byte("h")

	mock.ExpectQuery(`SELECT blocked_until FROM auth_limiter WHERE email=\$1 AND ip_hash=\$2`).
		WithArgs("a@b.c", h).
		WillReturnError(pgx.ErrNoRows)
	ok, dur, err := l.Allow(ctx, "a@b.c", h)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, dur)

	mock.ExpectQuery(`SELECT blocked_until FROM auth_limiter`).
		WithArgs("a@b.c", h).
		WillReturnRows(pgxmock.NewRows([]string{"blocked_until"}).AddRow(now.Add(time.Minute)))
	ok, dur, err = l.Allow(ctx, "a@b.c", h)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, time.Minute, dur)

	mock.ExpectQuery(`SELECT blocked_until FROM auth_limiter`).
		WithArgs("a@b.c", h).
		WillReturnRows(pgxmock.NewRows([]string{"blocked_until"}).AddRow(now.Add(-time.Minute)))
	ok, _, err = l.Allow(ctx, "a@b.c", h)
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectQuery(`SELECT blocked_until FROM auth_limiter`).
		WithArgs("a@b.c", h).
		WillReturnError(errors.New("db down"))
	ok, _, err = l.Allow(ctx, "a@b.c", h)
	require.Error(t, err)
	require.False(t, ok)
}

func TestPG_FailureBlocksAtThreshold(t *testing.T) {
	l, mock, now := newPG(t)
	defer mock.Close()
	ctx := context.Background()
	h := []byte("h")

	mock.ExpectQuery(`INSERT INTO auth_limiter .* RETURNING fail_count`).
		WithArgs("a@b.c", h, testPolicy.Window).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(2))
	blocked, _, err := l.Failure(ctx, "a@b.c", h)
	require.NoError(t, err)
	require.False(t, blocked)

	mock.ExpectQuery(`INSERT INTO auth_limiter .* RETURNING fail_count`).
		WithArgs("a@b.c", h, testPolicy.Window).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(3))
	mock.ExpectExec(`UPDATE auth_limiter SET blocked_until=\$3 WHERE email=\$1 AND ip_hash=\$2`).
		WithArgs("a@b.c", h, now.Add(testPolicy.BlockFor)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	blocked, dur, err := l.Failure(ctx, "a@b.c", h)
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, testPolicy.BlockFor, dur)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPG_Success(t *testing.T) {
	l, mock, _ := newPG(t)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO auth_limiter .* DO UPDATE SET fail_count=0`).
		WithArgs("a@b.c", []byte("h")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, l.Success(context.Background(), "a@b.c", []byte("h")))
}

func TestMemory_BlockAndReset(t *testing.T) {
	m := NewMemory(testPolicy)
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()
	h := HashIP("10.0.0.1:5555")

	for i := 0; i < testPolicy.MaxFails-1; i++ {
		blocked, _, err := m.Failure(ctx, "a@b.c", h)
		require.NoError(t, err)
		require.False(t, blocked)
	}
	blocked, dur, err := m.Failure(ctx, "a@b.c", h)
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, testPolicy.BlockFor, dur)

	ok, _, _ := m.Allow(ctx, "a@b.c", h)
	require.False(t, ok)

	now = now.Add(testPolicy.BlockFor + time.Second)
	ok, _, _ = m.Allow(ctx, "a@b.c", h)
	require.True(t, ok)

	require.NoError(t, m.Success(ctx, "a@b.c", h))
	blocked, _, _ = m.Failure(ctx, "a@b.c", h)
	require.False(t, blocked)
}

func TestHashIP_IgnoresPort(t *testing.T) {
	a := HashIP("1.2.3.4:123")
	b := HashIP("1.2.3.4:999")
	c := HashIP("5.6.7.8:123")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a, 32)
	require.Equal(t, HashIP("1.2.3.4"), a)
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/model"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSetter struct {
	ids    []int64
	status model.Status
	n      int
	err    error
}

func (f *fakeSetter) MassSetStatus(_ context.Context, ids []int64, st model.Status) (int, error) {
	f.ids, f.status = ids, st
	return f.n, f.err
}

func TestMassStatusHandler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("applies command", func(t *testing.T) {
		s := &fakeSetter{n: 2}
		h := NewMassStatusHandler(s, zaptest.NewLogger(t))
		ok, err := h.Handle(ctx, model.Message{ID: "1", Body: []byte(`{"registration_ids":[3,4],"status":1}`)})
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []int64{3, 4}, s.ids)
		require.Equal(t, model.StatusApproved, s.status)
	})

	t.Run("declines malformed", func(t *testing.T) {
		s := &fakeSetter{}
		h := NewMassStatusHandler(s, zaptest.NewLogger(t))
		for _, body := range []string{`not json`, `{"registration_ids":[],"status":1}`, `{"registration_ids":[1],"status":9}`} {
			ok, err := h.Handle(ctx, model.Message{Body: []byte(body)})
			require.NoError(t, err, body)
			require.False(t, ok, body)
		}
		require.Nil(t, s.ids)
	})

	t.Run("nothing updated is not found", func(t *testing.T) {
		h := NewMassStatusHandler(&fakeSetter{n: 0}, zaptest.NewLogger(t))
		_, err := h.Handle(ctx, model.Message{Body: []byte(`{"registration_ids":[1],"status":2}`)})
		require.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("connection errors map to connection lost", func(t *testing.T) {
		h := NewMassStatusHandler(&fakeSetter{err: fmt.Errorf("update: %w", io.ErrUnexpectedEOF)}, zaptest.NewLogger(t))
		_, err := h.Handle(ctx, model.Message{Body: []byte(`{"registration_ids":[1],"status":2}`)})
		require.ErrorIs(t, err, errs.ErrConnectionLost)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		boom := errors.New("constraint")
		h := NewMassStatusHandler(&fakeSetter{err: boom}, zaptest.NewLogger(t))
		_, err := h.Handle(ctx, model.Message{Body: []byte(`{"registration_ids":[1],"status":2}`)})
		require.ErrorIs(t, err, boom)
		require.NotErrorIs(t, err, errs.ErrConnectionLost)
	})
}

func TestIsConnectionLost(t *testing.T) {
	t.Parallel()
	require.True(t, isConnectionLost(&pgconn.PgError{Code: "08006"}))
	require.False(t, isConnectionLost(&pgconn.PgError{Code: "23505"}))
	require.True(t, isConnectionLost(errs.ErrConnectionLost))
	require.False(t, isConnectionLost(errors.New("plain")))
	require.True(t, isConnectionLost(&net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")}))
	require.True(t, isConnectionLost(fmt.Errorf("query: %w", io.ErrUnexpectedEOF)))
	require.False(t, isConnectionLost(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	require.False(t, isConnectionLost(fmt.Errorf("x: %w", context.Canceled)))
}

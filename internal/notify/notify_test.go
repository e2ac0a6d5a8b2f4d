package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/and161185/warranty-keeper/internal/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogNotifier(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewLogNotifier(zap.New(core))
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	n.now = func() time.Time { return at }

	require.NoError(t, n.NotifyApproved(context.Background(), model.Registration{ID: 12}))
	entries := logs.FilterMessage("warranty registration approved").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, int64(12), fields["registration_id"])
	require.Equal(t, at, fields["timestamp"])
}

type capturePub struct {
	topic string
	body  []byte
	err   error
}

func (p *capturePub) Publish(_ context.Context, topic string, body []byte) (string, error) {
	p.topic, p.body = topic, body
	return "id-1", p.err
}

func TestQueueNotifier(t *testing.T) {
	t.Parallel()
	pub := &capturePub{}
	n := NewQueueNotifier(pub)
	owner := int64(3)

	require.NoError(t, n.NotifyApproved(context.Background(), model.Registration{
		ID: 9, ProductKey: "SKU1", SerialNumber: "ABC", OwnerID: &owner,
	}))
	require.Equal(t, TopicApproved, pub.topic)

	var ev model.ApprovedEvent
	require.NoError(t, json.Unmarshal(pub.body, &ev))
	require.Equal(t, int64(9), ev.RegistrationID)
	require.Equal(t, "ABC", ev.SerialNumber)
	require.Equal(t, int64(3), *ev.OwnerID)

	pub.err = errors.New("redis down")
	require.Error(t, n.NotifyApproved(context.Background(), model.Registration{ID: 1}))
}

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) NotifyApproved(context.Context, model.Registration) error {
	c.calls++
	return c.err
}

func TestMulti_CallsAllAndJoins(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	a := &countingNotifier{err: boom}
	b := &countingNotifier{}
	err := Multi{a, b}.NotifyApproved(context.Background(), model.Registration{})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, a.calls)
	require.Equal(t, 1, b.calls)

	require.NoError(t, Multi{b}.NotifyApproved(context.Background(), model.Registration{}))
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type call struct {
	op      string
	id      string
	requeue bool
	reason  string
}

// fakeTransport records calls in order.
type fakeTransport struct {
	mu         sync.Mutex
	msgs       []model.Message
	receiveErr error
	calls      []call
}

func (f *fakeTransport) Publish(_ context.Context, topic string, body []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := string(rune('a' + len(f.msgs)))
	f.msgs = append(f.msgs, model.Message{ID: id, Topic: topic, Body: body})
	return id, nil
}

func (f *fakeTransport) Receive(ctx context.Context, _ string, wait time.Duration) (model.Message, error) {
	f.mu.Lock()
	if f.receiveErr != nil {
		err := f.receiveErr
		f.mu.Unlock()
		return model.Message{}, err
	}
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	if wait > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
	return model.Message{}, errs.ErrQueueEmpty
}

func (f *fakeTransport) Ack(_ context.Context, m model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "ack", id: m.ID})
	return nil
}

func (f *fakeTransport) Reject(_ context.Context, m model.Message, requeue bool, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "reject", id: m.ID, requeue: requeue, reason: reason})
	return nil
}

func (f *fakeTransport) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.op)
	}
	return out
}

type fakeLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	released []string
}

func newFakeLocks() *fakeLocks { return &fakeLocks{held: map[string]bool{}} }

func (l *fakeLocks) Acquire(_ context.Context, id, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	if l.held[name+id] {
		return errs.ErrLockFailed
	}
	l.held[name+id] = true
	return nil
}

func (l *fakeLocks) Release(_ context.Context, id, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, name+id)
	l.released = append(l.released, id)
	return nil
}

func newTestConsumer(t *testing.T, tr Transport, locks *fakeLocks, h Handler, errLog *zap.Logger) *Consumer {
	t.Helper()
	return NewConsumer(ConsumerConfig{Name: "test", Topic: TopicMassStatus, PollWait: 10 * time.Millisecond, RetryDelay: time.Millisecond},
		tr, locks, h, zaptest.NewLogger(t), errLog)
}

func handlerReturning(ok bool, err error) (Handler, *int) {
	calls := 0
	return HandlerFunc(func(context.Context, model.Message) (bool, error) {
		calls++
		return ok, err
	}), &calls
}

func TestProcessMessage_Policy(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		ok        bool
		err       error
		want      Outcome
		ops       []string
		released  bool
		stillHeld bool
	}{
		{"success", true, nil, OutcomeProcessed, []string{"ack"}, false, true},
		{"declined", false, nil, OutcomeRejected, []string{"reject", "ack"}, false, true},
		{"connection lost", false, errs.ErrConnectionLost, OutcomeConnectionLost, []string{"ack"}, true, false},
		{"not found", false, errs.ErrNotFound, OutcomeNotFound, []string{"ack"}, false, true},
		{"other error", false, errors.New("boom"), OutcomeFailed, []string{"reject", "ack"}, true, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tr := &fakeTransport{}
			locks := newFakeLocks()
			h, calls := handlerReturning(tc.ok, tc.err)
			c := newTestConsumer(t, tr, locks, h, nil)

			got := c.ProcessMessage(context.Background(), model.Message{ID: "m1"})
			require.Equal(t, tc.want, got)
			require.Equal(t, 1, *calls)
			require.Equal(t, tc.ops, tr.ops())
			require.Equal(t, tc.released, len(locks.released) == 1)
			require.Equal(t, tc.stillHeld, locks.held["testm1"])
		})
	}
}

func TestProcessMessage_RejectCarriesReasonOnlyForErrors(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	h, _ := handlerReturning(false, errors.New("bad things"))
	c := newTestConsumer(t, tr, newFakeLocks(), h, nil)
	c.ProcessMessage(context.Background(), model.Message{ID: "m1"})
	require.Equal(t, call{op: "reject", id: "m1", requeue: false, reason: "bad things"}, tr.calls[0])

	tr = &fakeTransport{}
	h, _ = handlerReturning(false, nil)
	c = newTestConsumer(t, tr, newFakeLocks(), h, nil)
	c.ProcessMessage(context.Background(), model.Message{ID: "m2"})
	require.Equal(t, call{op: "reject", id: "m2", requeue: false}, tr.calls[0])
}

func TestProcessMessage_LockedSkipsHandler(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	locks := newFakeLocks()
	locks.held["testm1"] = true
	h, calls := handlerReturning(true, nil)
	c := newTestConsumer(t, tr, locks, h, nil)

	require.Equal(t, OutcomeLockFailed, c.ProcessMessage(context.Background(), model.Message{ID: "m1"}))
	require.Zero(t, *calls)
	require.Equal(t, []string{"ack"}, tr.ops())
}

func TestProcessMessage_LockStoreErrorRequeues(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	locks := newFakeLocks()
	locks.err = errors.New("db down")
	h, calls := handlerReturning(true, nil)
	c := newTestConsumer(t, tr, locks, h, nil)

	require.Equal(t, OutcomeRequeued, c.ProcessMessage(context.Background(), model.Message{ID: "m1"}))
	require.Zero(t, *calls)
	require.Len(t, tr.calls, 1)
	require.True(t, tr.calls[0].requeue)
}

func TestProcessMessage_NotFoundGoesToErrorLog(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.ErrorLevel)
	h, _ := handlerReturning(false, errors.Join(errs.ErrNotFound, errors.New("registration 5")))
	c := newTestConsumer(t, &fakeTransport{}, newFakeLocks(), h, zap.New(core))

	c.ProcessMessage(context.Background(), model.Message{ID: "m1"})
	require.Equal(t, 1, logs.Len())
	require.Equal(t, "m1", logs.All()[0].ContextMap()["message_id"])
}

func TestProcessMessage_HandlerPanicIsFailure(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	locks := newFakeLocks()
	h := HandlerFunc(func(context.Context, model.Message) (bool, error) { panic("nil map") })
	c := newTestConsumer(t, tr, locks, h, nil)

	require.Equal(t, OutcomeFailed, c.ProcessMessage(context.Background(), model.Message{ID: "m1"}))
	require.Equal(t, []string{"reject", "ack"}, tr.ops())
	require.Len(t, locks.released, 1)
}

func TestProcess_BoundedDrain(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	for i := 0; i < 5; i++ {
		_, _ = tr.Publish(context.Background(), TopicMassStatus, []byte("{}"))
	}
	h, calls := handlerReturning(true, nil)
	c := newTestConsumer(t, tr, newFakeLocks(), h, nil)

	limit := 3
	require.NoError(t, c.Process(context.Background(), &limit))
	require.Equal(t, 3, *calls)
	require.Len(t, tr.msgs, 2)

	limit = 10
	require.NoError(t, c.Process(context.Background(), &limit))
	require.Equal(t, 5, *calls)

	zero := 0
	require.NoError(t, c.Process(context.Background(), &zero))
	neg := -1
	require.ErrorIs(t, c.Process(context.Background(), &neg), errs.ErrInvalidInput)
}

func TestProcess_BoundedStopsOnReceiveError(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{receiveErr: errors.New("redis gone")}
	h, calls := handlerReturning(true, nil)
	c := newTestConsumer(t, tr, newFakeLocks(), h, nil)
	limit := 3
	require.NoError(t, c.Process(context.Background(), &limit))
	require.Zero(t, *calls)
}

func TestProcess_BoundedSkipsMalformedMessage(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	_, _ = tr.Publish(context.Background(), TopicMassStatus, []byte("{}"))
	malformed := &flakyTransport{Transport: tr, failures: 1, err: fmt.Errorf("decode: %w", errs.ErrMalformedMessage)}
	h, calls := handlerReturning(true, nil)
	c := newTestConsumer(t, malformed, newFakeLocks(), h, nil)

	limit := 5
	require.NoError(t, c.Process(context.Background(), &limit))
	require.Equal(t, 1, *calls)
	require.Empty(t, tr.msgs)
}

// flakyTransport fails the first failures receives with err.
type flakyTransport struct {
	Transport
	failures int
	err      error
}

func (f *flakyTransport) Receive(ctx context.Context, topic string, wait time.Duration) (model.Message, error) {
	if f.failures > 0 {
		f.failures--
		return model.Message{}, f.err
	}
	return f.Transport.Receive(ctx, topic, wait)
}

func TestProcess_SubscribeUntilCancelled(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	processed := make(chan string, 4)
	h := HandlerFunc(func(_ context.Context, m model.Message) (bool, error) {
		processed <- m.ID
		return true, nil
	})
	c := newTestConsumer(t, tr, newFakeLocks(), h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Process(ctx, nil) }()

	id, _ := tr.Publish(ctx, TopicMassStatus, []byte("{}"))
	select {
	case got := <-processed:
		require.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatal("message not processed")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
}

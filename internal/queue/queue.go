// Package queue implements the lock-guarded message consumer and its Redis transport.
package queue

import (
	"context"
	"time"

	"github.com/and161185/warranty-keeper/internal/model"
)

// Topic names.
const (
	TopicMassStatus = "warranty.mass_status"
)

// Transport moves messages between producers and consumers.
type Transport interface {
	// Publish enqueues body on topic and returns the message id.
	Publish(ctx context.Context, topic string, body []byte) (string, error)
	// Receive takes the next message from topic, waiting up to wait.
	// It returns errs.ErrQueueEmpty when nothing arrived in time and
	// errs.ErrMalformedMessage when the item was undecodable and dead-lettered.
	Receive(ctx context.Context, topic string, wait time.Duration) (model.Message, error)
	// Ack confirms the message; it will not be delivered again.
	Ack(ctx context.Context, msg model.Message) error
	// Reject drops the message, or puts it back when requeue is set.
	Reject(ctx context.Context, msg model.Message, requeue bool, reason string) error
}

// Handler processes one message. ok=false with a nil error means the
// message was understood but could not be applied.
type Handler interface {
	Handle(ctx context.Context, msg model.Message) (ok bool, err error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg model.Message) (bool, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg model.Message) (bool, error) { return f(ctx, msg) }

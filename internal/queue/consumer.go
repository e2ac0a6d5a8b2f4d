package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/model"
	"github.com/and161185/warranty-keeper/internal/repository"
	"go.uber.org/zap"
)

// Outcome is what the consumer did with one message.
type Outcome string

const (
	OutcomeProcessed      Outcome = "processed"
	OutcomeLockFailed     Outcome = "lock_failed"
	OutcomeRejected       Outcome = "rejected"
	OutcomeConnectionLost Outcome = "connection_lost"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeFailed         Outcome = "failed"
	OutcomeRequeued       Outcome = "requeued"
)

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Name  string // lock owner name, also used in logs
	Topic string
	// PollWait is how long a subscribe-mode receive blocks before checking ctx again.
	PollWait time.Duration
	// RetryDelay is the pause after a transport receive error in subscribe mode.
	RetryDelay time.Duration
}

// Consumer receives messages, guards each with a lock and applies the
// ack/reject/release policy to the handler's result.
type Consumer struct {
	cfg       ConsumerConfig
	transport Transport
	locks     repository.LockStore
	handler   Handler
	log       *zap.Logger
	errLog    *zap.Logger
}

// NewConsumer constructs a consumer. errLog receives not-found failures; when
// nil, a child of log named "queue.errors" is used.
func NewConsumer(cfg ConsumerConfig, transport Transport, locks repository.LockStore, handler Handler, log, errLog *zap.Logger) *Consumer {
	if cfg.PollWait <= 0 {
		cfg.PollWait = time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	if errLog == nil {
		errLog = log.Named("queue.errors")
	}
	return &Consumer{
		cfg:       cfg,
		transport: transport,
		locks:     locks,
		handler:   handler,
		log:       log.With(zap.String("consumer", cfg.Name), zap.String("topic", cfg.Topic)),
		errLog:    errLog,
	}
}

// Process drains at most *maxMessages messages and returns once the queue is
// empty, or, with maxMessages nil, keeps receiving until ctx is cancelled.
// Transport and handler failures are resolved into ack/reject decisions and
// logged; they are never returned.
func (c *Consumer) Process(ctx context.Context, maxMessages *int) error {
	if maxMessages != nil && *maxMessages < 0 {
		return fmt.Errorf("max messages %d: %w", *maxMessages, errs.ErrInvalidInput)
	}
	bounded := maxMessages != nil
	wait := c.cfg.PollWait
	if bounded {
		wait = 0
	}

	for n := 0; !bounded || n < *maxMessages; {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := c.transport.Receive(ctx, c.cfg.Topic, wait)
		switch {
		case err == nil:
		case errors.Is(err, errs.ErrQueueEmpty):
			if bounded {
				return nil
			}
			continue
		case errors.Is(err, errs.ErrMalformedMessage):
			c.log.Warn("dropped undecodable message", zap.Error(err))
			n++
			continue
		default:
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("receive failed", zap.Error(err))
			if bounded {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.cfg.RetryDelay):
			}
			continue
		}
		n++
		c.ProcessMessage(ctx, msg)
	}
	return nil
}

// ProcessMessage applies the per-message policy and reports the outcome.
func (c *Consumer) ProcessMessage(ctx context.Context, msg model.Message) Outcome {
	log := c.log.With(zap.String("message_id", msg.ID))

	if err := c.locks.Acquire(ctx, msg.ID, c.cfg.Name); err != nil {
		if errors.Is(err, errs.ErrLockFailed) {
			log.Debug("message already locked")
			c.ack(ctx, log, msg)
			return OutcomeLockFailed
		}
		// without a lock the message cannot be processed safely; hand it back
		log.Warn("lock acquire failed", zap.Error(err))
		c.reject(ctx, log, msg, true, err.Error())
		return OutcomeRequeued
	}

	ok, err := c.handle(ctx, msg)
	switch {
	case err == nil && ok:
		c.ack(ctx, log, msg)
		return OutcomeProcessed
	case err == nil:
		// the lock stays held on this path
		c.reject(ctx, log, msg, false, "")
		c.ack(ctx, log, msg)
		return OutcomeRejected
	case errors.Is(err, errs.ErrConnectionLost):
		log.Warn("connection lost while processing", zap.Error(err))
		c.ack(ctx, log, msg)
		c.release(ctx, log, msg)
		return OutcomeConnectionLost
	case errors.Is(err, errs.ErrNotFound):
		c.ack(ctx, log, msg)
		c.errLog.Error(err.Error(), zap.String("message_id", msg.ID), zap.String("topic", msg.Topic))
		return OutcomeNotFound
	default:
		log.Error("message processing failed", zap.Error(err))
		c.reject(ctx, log, msg, false, err.Error())
		c.ack(ctx, log, msg)
		c.release(ctx, log, msg)
		return OutcomeFailed
	}
}

// handle converts a handler panic into an error.
func (c *Consumer) handle(ctx context.Context, msg model.Message) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.handler.Handle(ctx, msg)
}

func (c *Consumer) ack(ctx context.Context, log *zap.Logger, msg model.Message) {
	if err := c.transport.Ack(ctx, msg); err != nil {
		log.Warn("ack failed", zap.Error(err))
	}
}

func (c *Consumer) reject(ctx context.Context, log *zap.Logger, msg model.Message, requeue bool, reason string) {
	if err := c.transport.Reject(ctx, msg, requeue, reason); err != nil {
		log.Warn("reject failed", zap.Error(err))
	}
}

func (c *Consumer) release(ctx context.Context, log *zap.Logger, msg model.Message) {
	if err := c.locks.Release(ctx, msg.ID, c.cfg.Name); err != nil {
		log.Warn("lock release failed", zap.Error(err))
	}
}

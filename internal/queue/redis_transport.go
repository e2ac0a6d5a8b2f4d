package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
)

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// envelope is the on-list representation of a message.
type envelope struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	Body       []byte    `json:"body"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type deadLetter struct {
	envelope
	Reason     string    `json:"reason,omitempty"`
	RejectedAt time.Time `json:"rejected_at"`
}

// RedisTransport is a reliable list queue: receiving moves an item from the
// pending list to a processing list, ack removes it there, and reject either
// moves it back or onto a dead-letter list.
type RedisTransport struct {
	client *redis.Client
	prefix string

	mu       sync.Mutex
	inflight map[string]string // message id -> raw list item
	now      func() time.Time
}

var _ Transport = (*RedisTransport)(nil)

// NewRedisTransport constructs a transport; keys are namespaced by prefix.
func NewRedisTransport(client *redis.Client, prefix string) *RedisTransport {
	if prefix == "" {
		prefix = "wk:queue"
	}
	return &RedisTransport{client: client, prefix: prefix, inflight: map[string]string{}, now: time.Now}
}

func (t *RedisTransport) pendingKey(topic string) string    { return t.prefix + ":" + topic }
func (t *RedisTransport) processingKey(topic string) string { return t.prefix + ":" + topic + ":processing" }
func (t *RedisTransport) deadKey(topic string) string       { return t.prefix + ":" + topic + ":dead" }

// Publish appends a new message to the topic.
func (t *RedisTransport) Publish(ctx context.Context, topic string, body []byte) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(envelope{ID: id.String(), Topic: topic, Body: body, EnqueuedAt: t.now().UTC()})
	if err != nil {
		return "", err
	}
	if err := t.client.LPush(ctx, t.pendingKey(topic), raw).Err(); err != nil {
		return "", err
	}
	return id.String(), nil
}

// Receive moves the oldest pending message to the processing list.
func (t *RedisTransport) Receive(ctx context.Context, topic string, wait time.Duration) (model.Message, error) {
	var (
		raw string
		err error
	)
	if wait > 0 {
		raw, err = t.client.BLMove(ctx, t.pendingKey(topic), t.processingKey(topic), "RIGHT", "LEFT", wait).Result()
	} else {
		raw, err = t.client.LMove(ctx, t.pendingKey(topic), t.processingKey(topic), "RIGHT", "LEFT").Result()
	}
	if errors.Is(err, redis.Nil) {
		return model.Message{}, errs.ErrQueueEmpty
	}
	if err != nil {
		return model.Message{}, err
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// unreadable items go straight to the dead list
		_ = t.client.LRem(ctx, t.processingKey(topic), 1, raw).Err()
		_ = t.client.LPush(ctx, t.deadKey(topic), raw).Err()
		return model.Message{}, fmt.Errorf("decode envelope: %w: %v", errs.ErrMalformedMessage, err)
	}
	t.mu.Lock()
	t.inflight[env.ID] = raw
	t.mu.Unlock()
	return model.Message{ID: env.ID, Topic: env.Topic, Body: env.Body, EnqueuedAt: env.EnqueuedAt}, nil
}

func (t *RedisTransport) take(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	raw, ok := t.inflight[id]
	delete(t.inflight, id)
	return raw, ok
}

// Ack removes the message from the processing list. Acking twice is a no-op.
func (t *RedisTransport) Ack(ctx context.Context, msg model.Message) error {
	raw, ok := t.take(msg.ID)
	if !ok {
		return nil
	}
	return t.client.LRem(ctx, t.processingKey(msg.Topic), 1, raw).Err()
}

// Reject removes the message from processing and requeues it or dead-letters it with reason.
func (t *RedisTransport) Reject(ctx context.Context, msg model.Message, requeue bool, reason string) error {
	raw, ok := t.take(msg.ID)
	if !ok {
		return nil
	}
	_, err := t.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, t.processingKey(msg.Topic), 1, raw)
		if requeue {
			p.RPush(ctx, t.pendingKey(msg.Topic), raw)
			return nil
		}
		dl, err := json.Marshal(deadLetter{
			envelope:   envelope{ID: msg.ID, Topic: msg.Topic, Body: msg.Body, EnqueuedAt: msg.EnqueuedAt},
			Reason:     reason,
			RejectedAt: t.now().UTC(),
		})
		if err != nil {
			return err
		}
		p.LPush(ctx, t.deadKey(msg.Topic), dl)
		return nil
	})
	return err
}

// Len reports pending, processing and dead-letter counts for a topic.
func (t *RedisTransport) Len(ctx context.Context, topic string) (pending, processing, dead int64, err error) {
	cmds, err := t.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.LLen(ctx, t.pendingKey(topic))
		p.LLen(ctx, t.processingKey(topic))
		p.LLen(ctx, t.deadKey(topic))
		return nil
	})
	if err != nil {
		return 0, 0, 0, err
	}
	return cmds[0].(*redis.IntCmd).Val(), cmds[1].(*redis.IntCmd).Val(), cmds[2].(*redis.IntCmd).Val(), nil
}

// RecoverProcessing moves messages left on the processing list by a crashed
// consumer back to pending. Call it before starting a consumer.
func (t *RedisTransport) RecoverProcessing(ctx context.Context, topic string) (int, error) {
	n := 0
	for {
		_, err := t.client.LMove(ctx, t.processingKey(topic), t.pendingKey(topic), "LEFT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

package queue

import (
	"context"
	"time"

	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/repository"
	"github.com/redis/go-redis/v9"
)

// RedisLocks implements repository.LockStore with SET NX keys that expire after ttl.
type RedisLocks struct {
	client *redis.Client
	ttl    time.Duration
}

var _ repository.LockStore = (*RedisLocks)(nil)

// NewRedisLocks constructs a Redis lock store. ttl <= 0 means locks never expire.
func NewRedisLocks(client *redis.Client, ttl time.Duration) *RedisLocks {
	return &RedisLocks{client: client, ttl: ttl}
}

func lockKey(messageID, consumerName string) string {
	return "wk:lock:" + consumerName + ":" + messageID
}

// Acquire sets the lock key if absent.
func (l *RedisLocks) Acquire(ctx context.Context, messageID, consumerName string) error {
	ok, err := l.client.SetNX(ctx, lockKey(messageID, consumerName), time.Now().UTC().Unix(), l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrLockFailed
	}
	return nil
}

// Release deletes the lock key.
func (l *RedisLocks) Release(ctx context.Context, messageID, consumerName string) error {
	return l.client.Del(ctx, lockKey(messageID, consumerName)).Err()
}

package postgres

import (
	"context"
	"time"

	"github.com/and161185/warranty-keeper/internal/errs"
)

// LockRepo implements LockStore on the queue_lock table.
type LockRepo struct{ db *DB }

// NewLockRepo constructs a message lock repository.
func NewLockRepo(db *DB) *LockRepo { return &LockRepo{db: db} }

// Acquire inserts the (message, consumer) lock row unless it already exists.
func (r *LockRepo) Acquire(ctx context.Context, messageID, consumerName string) error {
	const q = `
INSERT INTO queue_lock (message_id, consumer_name)
VALUES ($1, $2)
ON CONFLICT (message_id, consumer_name) DO NOTHING`
	tag, err := r.db.Pool.Exec(ctx, q, messageID, consumerName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrLockFailed
	}
	return nil
}

// Release deletes the lock row.
func (r *LockRepo) Release(ctx context.Context, messageID, consumerName string) error {
	const q = `DELETE FROM queue_lock WHERE message_id=$1 AND consumer_name=$2`
	_, err := r.db.Pool.Exec(ctx, q, messageID, consumerName)
	return err
}

// PurgeStale removes locks older than ttl and returns how many were dropped.
func (r *LockRepo) PurgeStale(ctx context.Context, ttl time.Duration) (int64, error) {
	const q = `DELETE FROM queue_lock WHERE created_at < now() - $1::interval`
	tag, err := r.db.Pool.Exec(ctx, q, ttl)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

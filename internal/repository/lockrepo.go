package repository

import (
	"context"
)

// LockStore guards a message against concurrent processing by the same consumer.
type LockStore interface {
	// Acquire takes the lock or returns errs.ErrLockFailed when it is already held.
	Acquire(ctx context.Context, messageID, consumerName string) error
	// Release drops the lock. Releasing a missing lock is not an error.
	Release(ctx context.Context, messageID, consumerName string) error
}

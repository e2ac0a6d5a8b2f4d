// Package scheduler runs periodic maintenance: the pending-registration expiry
// sweep and stale queue-lock cleanup.
package scheduler

import (
	"context"
	"time"

	"github.com/and161185/warranty-keeper/internal/model"
	"go.uber.org/zap"
)

// Expirer is the workflow operation the sweep calls.
type Expirer interface {
	ExpirePending(ctx context.Context, maxAgeDays int) (int, error)
}

// LockPurger drops queue locks older than a TTL.
type LockPurger interface {
	PurgeStale(ctx context.Context, ttl time.Duration) (int64, error)
}

// Config configures a Sweeper.
type Config struct {
	Interval          time.Duration
	PendingExpiryDays int
	LockTTL           time.Duration // <= 0 disables lock cleanup
}

// Sweeper periodically expires stale pending registrations.
type Sweeper struct {
	cfg     Config
	expirer Expirer
	locks   LockPurger
	log     *zap.Logger
}

// NewSweeper constructs the sweep loop. locks may be nil.
func NewSweeper(cfg Config, expirer Expirer, locks LockPurger, log *zap.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.PendingExpiryDays <= 0 {
		cfg.PendingExpiryDays = model.DefaultPendingExpiryDays
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{cfg: cfg, expirer: expirer, locks: locks, log: log}
}

// Run sweeps once immediately and then every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep. Failures are logged.
func (s *Sweeper) RunOnce(ctx context.Context) {
	start := time.Now()
	n, err := s.expirer.ExpirePending(ctx, s.cfg.PendingExpiryDays)
	if err != nil {
		s.log.Error("expire pending", zap.Int("rejected", n), zap.Error(err))
	} else if n > 0 {
		s.log.Info("expired pending registrations",
			zap.Int("rejected", n),
			zap.Int("max_age_days", s.cfg.PendingExpiryDays),
			zap.Duration("dur", time.Since(start)),
		)
	}

	if s.locks == nil || s.cfg.LockTTL <= 0 {
		return
	}
	purged, err := s.locks.PurgeStale(ctx, s.cfg.LockTTL)
	if err != nil {
		s.log.Error("purge stale locks", zap.Error(err))
		return
	}
	if purged > 0 {
		s.log.Info("purged stale queue locks", zap.Int64("count", purged))
	}
}

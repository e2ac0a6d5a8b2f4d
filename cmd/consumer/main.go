// Command wk-consumer applies queued mass-status commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/warranty-keeper/internal/catalog"
	"github.com/and161185/warranty-keeper/internal/config"
	"github.com/and161185/warranty-keeper/internal/notify"
	"github.com/and161185/warranty-keeper/internal/queue"
	"github.com/and161185/warranty-keeper/internal/repository"
	"github.com/and161185/warranty-keeper/internal/repository/postgres"
	"github.com/and161185/warranty-keeper/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main consumes warranty.mass_status until stopped or until --max-messages were taken.
func main() {
	cfg, err := config.Load("wk-consumer", os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("consumer", cfg.ConsumerName),
		zap.String("locks", cfg.LockBackend),
	)

	if cfg.RedisURL == "" {
		logger.Fatal("missing redis url (--redis or WK_REDIS_URL)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	rdb, err := queue.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()
	transport := queue.NewRedisTransport(rdb, "")

	// Messages left in processing by a crashed run go back to the queue.
	if n, err := transport.RecoverProcessing(ctx, queue.TopicMassStatus); err != nil {
		logger.Warn("recover processing", zap.Error(err))
	} else if n > 0 {
		logger.Info("requeued unfinished messages", zap.Int("count", n))
	}

	var locks repository.LockStore
	switch cfg.LockBackend {
	case "redis":
		locks = queue.NewRedisLocks(rdb, cfg.LockTTL)
	default:
		locks = postgres.NewLockRepo(db)
	}

	regRepo := postgres.NewRegistrationRepo(db)
	catalogRepo := postgres.NewCatalogRepo(db)
	regSvc := service.NewRegistrationService(
		regRepo,
		service.NewUniquenessValidator(regRepo),
		catalog.NewCached(catalogRepo, 5*time.Minute, 30*time.Second),
		catalogRepo,
		notify.Multi{notify.NewLogNotifier(logger.Named("notify")), notify.NewQueueNotifier(transport)},
		logger.Named("registrations"),
	)

	consumer := queue.NewConsumer(queue.ConsumerConfig{
		Name:       cfg.ConsumerName,
		Topic:      queue.TopicMassStatus,
		PollWait:   cfg.PollWait,
		RetryDelay: time.Second,
	}, transport, locks, queue.NewMassStatusHandler(regSvc, logger.Named("handler")), logger.Named("consumer"), nil)

	var limit *int
	if cfg.MaxMessages > 0 {
		limit = &cfg.MaxMessages
	}
	if err := consumer.Process(ctx, limit); err != nil {
		logger.Error("consumer stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("consumer done")
}

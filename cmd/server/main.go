// Command wk-server runs the warranty registration HTTP API, the admin gRPC
// service and the pending-registration expiry sweep.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/and161185/warranty-keeper/internal/catalog"
	"github.com/and161185/warranty-keeper/internal/config"
	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/limiter"
	"github.com/and161185/warranty-keeper/internal/migrate"
	"github.com/and161185/warranty-keeper/internal/notify"
	"github.com/and161185/warranty-keeper/internal/queue"
	"github.com/and161185/warranty-keeper/internal/repository/postgres"
	"github.com/and161185/warranty-keeper/internal/scheduler"
	grpcserver "github.com/and161185/warranty-keeper/internal/server/grpc"
	httpserver "github.com/and161185/warranty-keeper/internal/server/http"
	"github.com/and161185/warranty-keeper/internal/service"
	"github.com/and161185/warranty-keeper/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func newLogger(dev bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// main parses configuration, runs migrations and serves until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load("wk-server", os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.HTTPAddr),
		zap.String("grpc", cfg.GRPCAddr),
	)

	if err := cfg.RequireJWTKey(); err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN, logger); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	regRepo := postgres.NewRegistrationRepo(db)
	accountRepo := postgres.NewAccountRepo(db)
	catalogRepo := postgres.NewCatalogRepo(db)
	lockRepo := postgres.NewLockRepo(db)
	products := catalog.NewCached(catalogRepo, 5*time.Minute, 30*time.Second)

	// Notifications: always logged; also queued when Redis is configured.
	notifiers := notify.Multi{notify.NewLogNotifier(logger.Named("notify"))}
	var publisher grpcserver.Publisher
	if cfg.RedisURL != "" {
		rdb, err := queue.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		transport := queue.NewRedisTransport(rdb, "")
		publisher = transport
		notifiers = append(notifiers, notify.NewQueueNotifier(transport))
	}

	// Services
	tokens := token.NewManager([]byte(cfg.JWTKey), cfg.AccessTTL)
	var loginLimiter limiter.Limiter = limiter.NewPG(db.Pool, limiter.DefaultPolicy)
	if cfg.LoginLimiter == "memory" {
		loginLimiter = limiter.NewMemory(limiter.DefaultPolicy)
	}
	authSvc := service.NewAuthService(accountRepo, tokens, loginLimiter)
	regSvc := service.NewRegistrationService(
		regRepo,
		service.NewUniquenessValidator(regRepo),
		products,
		catalogRepo,
		notifiers,
		logger.Named("registrations"),
	)

	if cfg.BootstrapAdminEmail != "" && cfg.BootstrapAdminPassword != "" {
		id, err := authSvc.Register(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword, true)
		switch {
		case err == nil:
			logger.Info("bootstrap admin created", zap.Int64("account_id", id))
		case errors.Is(err, errs.ErrAlreadyExists):
		default:
			logger.Fatal("bootstrap admin", zap.Error(err))
		}
	}

	// gRPC admin server with interceptors
	grpcOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.AdminAuthUnary(tokens, "/grpc.health.v1.Health/"),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		grpcOpts = append(grpcOpts, grpc.Creds(creds))
	}
	gs := grpc.NewServer(grpcOpts...)
	grpcserver.RegisterAdminServer(gs, grpcserver.NewAdmin(regSvc, publisher, logger.Named("admin")))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	// HTTP API
	h := httpserver.NewHandler(authSvc, regSvc, tokens, db,
		httpserver.Config{RatePerSecond: cfg.RatePerSecond, Burst: cfg.RateBurst}, logger.Named("http"))
	hsrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpserver.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", cfg.TLSCert != ""))
		errCh <- gs.Serve(lis)
	}()
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sweeper := scheduler.NewSweeper(scheduler.Config{
		Interval:          cfg.SweepInterval,
		PendingExpiryDays: cfg.PendingExpiryDays,
		LockTTL:           cfg.LockTTL,
	}, regSvc, lockRepo, logger.Named("sweeper"))
	go func() { _ = sweeper.Run(ctx) }()

	// Wait for stop
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		stop()
	}

	hs.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hsrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		gs.Stop()
	}

	logger.Info("shutdown complete")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	rediscache "github.com/simaogato/fundsflow-backend/internal/adapter/cache/redis"
	grpcadapter "github.com/simaogato/fundsflow-backend/internal/adapter/grpc"
	"github.com/simaogato/fundsflow-backend/internal/adapter/ops"
	"github.com/simaogato/fundsflow-backend/internal/adapter/repository/memory"
	"github.com/simaogato/fundsflow-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/fundsflow-backend/internal/config"
	"github.com/simaogato/fundsflow-backend/internal/domain"
	"github.com/simaogato/fundsflow-backend/internal/logger"
	"github.com/simaogato/fundsflow-backend/internal/metrics"
	"github.com/simaogato/fundsflow-backend/internal/usecase/dailylimit"
	"github.com/simaogato/fundsflow-backend/internal/usecase/duplicate"
	"github.com/simaogato/fundsflow-backend/internal/usecase/seeder"
	"github.com/simaogato/fundsflow-backend/internal/usecase/transfer"
)

const (
	dbConnectAttempts = 10
	dbConnectBackoff  = 2 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("Server exited with error", zap.Error(err))
	}
	zl.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	location, err := cfg.Location()
	if err != nil {
		return err
	}

	// 1. Setup Database
	db, err := postgres.NewDBWithRetry(ctx, cfg.DBConnStr, dbConnectAttempts, dbConnectBackoff)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	zl.Info("Database ready")

	// 2. Initialize Repositories (Postgres)
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	uow := postgres.NewUnitOfWork(db)
	uow.TxTimeout = cfg.TxTimeout
	uow.LockTimeout = cfg.LockTimeout

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	checkers := map[string]ops.Checker{"postgres": db.Check}

	// 3. Daily total cache: Redis when configured, in-process otherwise
	var cache domain.Cache
	redisClient, err := rediscache.NewClient(ctx, rediscache.ClientConfig{URL: cfg.RedisURL})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		rc := rediscache.NewCache(redisClient, rediscache.DefaultBreakerConfig, zl)
		checkers["redis"] = rc.Check
		cache = rc
		zl.Info("Using Redis cache for daily totals")
	} else {
		cache = memory.NewCache(time.Now)
		zl.Warn("REDIS_URL not set, using in-process cache for daily totals")
	}

	// 4. Initialize Services (Use Cases)
	tracker := dailylimit.NewTracker(transactionRepo, cache)
	tracker.TTL = cfg.DailyLimitCacheTTL
	tracker.Location = location
	tracker.Logger = zl
	tracker.Metrics = m

	guard := duplicate.NewGuard(transactionRepo)
	guard.Window = cfg.DuplicateWindow

	transferService := transfer.NewTransferService(uow, accountRepo, transactionRepo, tracker, guard)
	transferService.Logger = zl
	transferService.Metrics = m

	if cfg.SeedAccounts {
		created, err := seeder.NewAccountSeeder(accountRepo, seeder.DemoAccounts).Seed(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed accounts: %w", err)
		}
		zl.Info("Demo accounts seeded", zap.Int("created", created))
	}

	// 5. Start gRPC and ops HTTP servers
	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			grpcadapter.LoggingInterceptor(zl),
			grpcadapter.AuthInterceptor([]byte(cfg.JWTSigningKey)),
		),
	)
	grpcadapter.RegisterTransferServiceServer(grpcServer, grpcadapter.NewServer(transferService, tracker))
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
	}

	httpServer := ops.NewServer(cfg.HTTPAddr, ops.NewOpsRouter(registry, checkers, zl))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		zl.Info("Ops HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("Shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		httpErr := httpServer.Shutdown(shutdownCtx)

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
		return httpErr
	})

	if err := g.Wait(); err != nil && !errors.Is(err, grpclib.ErrServerStopped) {
		return err
	}
	return nil
}

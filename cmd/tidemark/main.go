package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tidemark-io/tidemark/internal/app"
	"github.com/tidemark-io/tidemark/internal/cluster"
	"github.com/tidemark-io/tidemark/internal/dimension"
	"github.com/tidemark-io/tidemark/internal/ingest"
	"github.com/tidemark-io/tidemark/internal/observability"
	"github.com/tidemark-io/tidemark/internal/platform/cache"
	"github.com/tidemark-io/tidemark/internal/platform/db"
	"github.com/tidemark-io/tidemark/internal/sales"
	"github.com/tidemark-io/tidemark/internal/statement"
	"github.com/tidemark-io/tidemark/jobs"
)

// warmupEnqueuer adapts the jobs client to the dimension service's warmup hook.
type warmupEnqueuer struct {
	client *jobs.Client
}

func (w warmupEnqueuer) EnqueueWarmup(ctx context.Context) error {
	_, err := w.client.EnqueueReportsWarmup(ctx, jobs.ReportsWarmupPayload{})
	return err
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{
		MaxConns:        cfg.PGMaxConns,
		MaxConnLifetime: cfg.PGConnLife,
	})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, reports run uncached", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	reportCache := sales.NewCache(redisClient, cfg.CacheTTL)
	if err := reportCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	dimensionRepo := dimension.NewRepository(pool)
	dimensionService := dimension.NewService(dimensionRepo, logger, metrics, reportCache)
	if redisClient != nil {
		jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer jobsClient.Close() //nolint:errcheck
		dimensionService.SetWarmer(warmupEnqueuer{client: jobsClient})
	}
	dimensionHandler := dimension.NewHandler(logger, dimensionService)

	salesRepo := sales.NewRepository(pool)
	salesProvider := sales.NewProvider(salesRepo, metrics)
	salesService := sales.NewService(salesProvider, reportCache, logger)
	salesHandler := sales.NewHandler(logger, salesService)

	clusterRepo := cluster.NewRepository(pool)
	clusterService := cluster.NewService(clusterRepo, salesProvider, logger, reportCache)
	clusterHandler := cluster.NewHandler(logger, clusterService)

	statementRepo := statement.NewRepository(pool)
	statementService := statement.NewService(statementRepo, logger)
	statementHandler := statement.NewHandler(logger, statementService)

	ingestRepo := ingest.NewRepository(pool)
	ingestService := ingest.NewService(ingestRepo, logger, reportCache)
	ingestHandler := ingest.NewHandler(logger, ingestService, cfg.IngestTokenHash)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DimensionHandler: dimensionHandler,
		ClusterHandler:   clusterHandler,
		SalesHandler:     salesHandler,
		StatementHandler: statementHandler,
		IngestHandler:    ingestHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

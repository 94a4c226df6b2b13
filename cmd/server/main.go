package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/logistics-billing/internal/aggregation"
	"github.com/odyssey-erp/logistics-billing/internal/analytics"
	analytichttp "github.com/odyssey-erp/logistics-billing/internal/analytics/http"
	"github.com/odyssey-erp/logistics-billing/internal/app"
	"github.com/odyssey-erp/logistics-billing/internal/billing"
	"github.com/odyssey-erp/logistics-billing/internal/ingest"
	"github.com/odyssey-erp/logistics-billing/internal/observability"
	"github.com/odyssey-erp/logistics-billing/internal/platform/cache"
	"github.com/odyssey-erp/logistics-billing/internal/platform/db"
	"github.com/odyssey-erp/logistics-billing/internal/uploads"
	"github.com/odyssey-erp/logistics-billing/jobs"
)

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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	aggregationService := aggregation.NewService(aggregation.NewRepository(pool), aggregation.Config{
		Table:     cfg.SlabTable,
		CountMode: cfg.CountMode,
		Locker:    cache.NewLocker(redisClient),
		Logger:    logger,
	})

	analyticsCache := analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL)
	if err := analyticsCache.ListenForInvalidation(ctx, func(version int64) {
		logger.Debug("analytics cache bumped", slog.Int64("version", version))
	}); err != nil {
		logger.Warn("subscribe cache invalidation", slog.Any("error", err))
	}
	analyticsService := analytics.NewService(analytics.NewRepository(pool), analyticsCache, cfg.SlabTable)

	uploadService := uploads.NewService(uploads.NewRepository(pool), ingest.NewParser(logger), uploads.Config{
		Refresher:     aggregationService,
		Cache:         analyticsCache,
		Archive:       uploads.NewArchive(cfg.UploadDir),
		Metrics:       uploads.NewMetrics(metrics.Registerer()),
		OutboundDedup: cfg.OutboundDedup,
		Logger:        logger,
	})

	assembler := billing.NewAssembler(billing.NewRepository(pool), cfg.SlabTable, cfg.Minimum, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,
		Readiness: map[string]app.Pinger{
			"postgres": pool,
			"redis":    app.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		},
		UploadHandler:      uploads.NewHandler(logger, uploadService, cfg.UploadMaxBytes),
		AnalyticsHandler:   analytichttp.NewHandler(logger, analyticsService),
		BillingHandler:     billing.NewHandler(logger, assembler),
		AggregationHandler: aggregation.NewHandler(logger, jobClient, aggregationService),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("slab_table", cfg.SlabTable.Name()),
			slog.String("invoice_count_mode", string(cfg.CountMode)),
			slog.Bool("outbound_dedup", cfg.OutboundDedup))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

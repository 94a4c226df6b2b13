package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/logistics-billing/internal/aggregation"
	"github.com/odyssey-erp/logistics-billing/internal/analytics"
	"github.com/odyssey-erp/logistics-billing/internal/app"
	jobmetrics "github.com/odyssey-erp/logistics-billing/internal/jobs"
	"github.com/odyssey-erp/logistics-billing/internal/platform/cache"
	"github.com/odyssey-erp/logistics-billing/internal/platform/db"
	"github.com/odyssey-erp/logistics-billing/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
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

	aggregationService := aggregation.NewService(aggregation.NewRepository(pool), aggregation.Config{
		Table:     cfg.SlabTable,
		CountMode: cfg.CountMode,
		Locker:    cache.NewLocker(redisClient),
		Logger:    logger,
	})
	analyticsCache := analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL)
	rebuildJob := jobs.NewAggregationRebuildJob(aggregationService, analyticsCache, logger, jobmetrics.NewMetrics(nil))

	var cron []jobs.CronRegistration
	if cfg.RebuildCron != "" {
		task, err := jobs.NewRebuildTask(time.Time{}, time.Time{})
		if err != nil {
			logger.Error("build rebuild task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.RebuildCron, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAggregationRebuild, Handler: rebuildJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("rebuild_cron", cfg.RebuildCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

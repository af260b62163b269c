package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/appmato/gestion/internal/app"
	"github.com/appmato/gestion/internal/dashboard"
	"github.com/appmato/gestion/internal/dossiers"
	jobmetrics "github.com/appmato/gestion/internal/jobs"
	"github.com/appmato/gestion/internal/obligations"
	"github.com/appmato/gestion/internal/platform/cache"
	"github.com/appmato/gestion/internal/platform/db"
	"github.com/appmato/gestion/internal/shared"
	"github.com/appmato/gestion/jobs"
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
	loc, _ := cfg.Location()
	now := app.Clock(loc)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	audit := shared.NewAuditLogger(pool)
	dossierService := dossiers.NewService(dossiers.NewRepository(pool), audit, logger)
	obligationService := obligations.NewService(obligations.NewRepository(pool), dossierService, audit, logger)
	dashboardService := dashboard.NewService(dossierService, obligationService, dashboard.NewCache(redisClient, cfg.DashboardCacheTTL), logger)
	dossierService.WithNow(now)
	obligationService.WithNow(now)
	obligationService.WithInvalidator(dashboardService)
	dashboardService.WithNow(now)

	metrics := jobmetrics.NewMetrics(nil)
	generateJob := jobs.NewGenerateJob(obligationService, cache.NewLocker(redisClient), logger, metrics, now)
	warmupJob := jobs.NewWarmupJob(dashboardService, dossierService, logger, metrics)

	generateTask, err := jobs.NewGenerateTask(jobs.GeneratePayload{})
	if err != nil {
		logger.Error("build generate task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    loc,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskObligationsGenerate, Handler: generateJob.Handle},
			{Type: jobs.TaskDashboardWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ScheduleCron, Task: generateTask},
			{Spec: cfg.WarmupCron, Task: jobs.NewWarmupTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

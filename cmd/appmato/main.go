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

	"github.com/appmato/gestion/internal/app"
	"github.com/appmato/gestion/internal/audit"
	audithttp "github.com/appmato/gestion/internal/audit/http"
	"github.com/appmato/gestion/internal/dashboard"
	dashboardhttp "github.com/appmato/gestion/internal/dashboard/http"
	"github.com/appmato/gestion/internal/dossiers"
	dossiershttp "github.com/appmato/gestion/internal/dossiers/http"
	calendarhttp "github.com/appmato/gestion/internal/fiscal/http"
	"github.com/appmato/gestion/internal/obligations"
	obligationshttp "github.com/appmato/gestion/internal/obligations/http"
	"github.com/appmato/gestion/internal/observability"
	"github.com/appmato/gestion/internal/platform/cache"
	"github.com/appmato/gestion/internal/platform/db"
	"github.com/appmato/gestion/internal/shared"
	"github.com/appmato/gestion/internal/vat"
	vathttp "github.com/appmato/gestion/internal/vat/http"
	"github.com/appmato/gestion/jobs"
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
	loc, _ := cfg.Location()
	now := app.Clock(loc)

	if cfg.AutoMigrate {
		if err := db.NewMigrator(cfg.MigrationsPath, cfg.PGDSN).Up(); err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// The dashboard falls back to uncached builds.
		logger.Warn("redis unavailable, dashboard cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	var dashboardCache *dashboard.Cache
	if redisClient != nil {
		dashboardCache = dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)
	}

	dossierService := dossiers.NewService(dossiers.NewRepository(pool), auditLogger, logger)
	obligationService := obligations.NewService(obligations.NewRepository(pool), dossierService, auditLogger, logger)
	vatService := vat.NewService(vat.NewRepository(pool), dossierService, auditLogger, logger)
	dashboardService := dashboard.NewService(dossierService, obligationService, dashboardCache, logger)

	dossierService.WithNow(now)
	dossierService.WithScheduler(obligationService)
	dossierService.WithInvalidator(dashboardService)
	obligationService.WithNow(now)
	obligationService.WithInvalidator(dashboardService)
	vatService.WithNow(now)
	vatService.WithInvalidator(dashboardService)
	dashboardService.WithNow(now)
	dashboardService.WithObserver(metrics)
	if err := dashboardService.Listen(ctx); err != nil {
		logger.Warn("dashboard invalidation listener", slog.Any("error", err))
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		DossierHandler:    dossiershttp.NewHandler(logger, dossierService),
		ObligationHandler: obligationshttp.NewHandler(logger, obligationService, now),
		VATHandler:        vathttp.NewHandler(logger, vatService, now),
		DashboardHandler:  dashboardhttp.NewHandler(logger, dashboardService),
		CalendarHandler:   calendarhttp.NewHandler(now),
		AuditHandler:      audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(pool)), now),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
		Checks: map[string]app.HealthChecker{
			"postgres": func(r *http.Request) error { return pool.Ping(r.Context()) },
		},
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

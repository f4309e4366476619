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

	"github.com/meridian-dms/meridian-dms/internal/app"
	"github.com/meridian-dms/meridian-dms/internal/auth"
	"github.com/meridian-dms/meridian-dms/internal/inventory"
	"github.com/meridian-dms/meridian-dms/internal/masterdata/branches"
	"github.com/meridian-dms/meridian-dms/internal/masterdata/items"
	"github.com/meridian-dms/meridian-dms/internal/masterdata/suppliers"
	"github.com/meridian-dms/meridian-dms/internal/observability"
	"github.com/meridian-dms/meridian-dms/internal/platform/cache"
	"github.com/meridian-dms/meridian-dms/internal/platform/db"
	"github.com/meridian-dms/meridian-dms/internal/procurement"
	"github.com/meridian-dms/meridian-dms/internal/sales"
	"github.com/meridian-dms/meridian-dms/internal/shared"
	"github.com/meridian-dms/meridian-dms/jobs"
	"github.com/meridian-dms/meridian-dms/report"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessions := auth.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessions)
	authMW := auth.Middleware{Sessions: sessions, Logger: logger}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	metrics := observability.NewMetrics()
	inventoryEvents := observability.NewInventoryEvents(metrics.Registerer())

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, idempotencyStore, inventoryEvents)
	inventoryHandler := inventory.NewHandler(logger, inventoryService, authMW)

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(procurementRepo, inventoryService, auditLogger)
	procurementHandler := procurement.NewHandler(logger, procurementService, authMW)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, inventoryService, auditLogger)
	salesHandler := sales.NewHandler(logger, salesService, authMW)

	branchesHandler := branches.NewHandler(logger, branches.NewService(branches.NewRepository(pool)), authMW)
	itemsHandler := items.NewHandler(logger, items.NewService(items.NewRepository(pool)), authMW)
	suppliersHandler := suppliers.NewHandler(logger, suppliers.NewService(suppliers.NewRepository(pool)), authMW)

	reportBuilder := report.NewBuilder(inventoryService)
	reportClient := report.NewClient(cfg.GotenbergURL)
	reportHandler := report.NewHandler(logger, reportBuilder, reportClient, authMW)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthMiddleware:     authMW,
		AuthHandler:        authHandler,
		InventoryHandler:   inventoryHandler,
		ProcurementHandler: procurementHandler,
		SalesHandler:       salesHandler,
		BranchesHandler:    branchesHandler,
		ItemsHandler:       itemsHandler,
		SuppliersHandler:   suppliersHandler,
		ReportHandler:      reportHandler,
		JobsHandler:        jobsHandler,
		Metrics:            metrics,
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

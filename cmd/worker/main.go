package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-dms/meridian-dms/internal/app"
	"github.com/meridian-dms/meridian-dms/internal/inventory"
	jobmetrics "github.com/meridian-dms/meridian-dms/internal/jobs"
	"github.com/meridian-dms/meridian-dms/internal/platform/db"
	"github.com/meridian-dms/meridian-dms/internal/procurement"
	"github.com/meridian-dms/meridian-dms/internal/sales"
	"github.com/meridian-dms/meridian-dms/internal/shared"
	"github.com/meridian-dms/meridian-dms/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, nil, nil)
	procurementService := procurement.NewService(procurement.NewRepository(pool), inventoryService, auditLogger)
	salesService := sales.NewService(sales.NewRepository(pool), inventoryService, auditLogger)

	metrics := jobmetrics.NewMetrics(nil)

	inventoryScan := &jobs.InventoryScan{
		Reconciler: inventoryService,
		Logger:     logger,
		Metrics:    metrics,
	}
	paymentsScan := &jobs.PaymentsDueScan{
		Payables:    procurementService,
		Receivables: salesService,
		Logger:      logger,
		Metrics:     metrics,
	}

	inventoryTask, err := jobs.NewInventoryScanTask(time.Now())
	if err != nil {
		logger.Error("build inventory scan task", slog.Any("error", err))
		os.Exit(1)
	}
	paymentsTask, err := jobs.NewPaymentsDueScanTask(time.Now())
	if err != nil {
		logger.Error("build payments scan task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInventoryScan, Handler: inventoryScan.Handle},
			{Type: jobs.TaskPaymentsDueScan, Handler: paymentsScan.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 1 * * *", Task: inventoryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 7 * * *", Task: paymentsTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meatflow/meatflow/internal/app"
	"github.com/meatflow/meatflow/internal/document"
	jobmetrics "github.com/meatflow/meatflow/internal/jobs"
	"github.com/meatflow/meatflow/internal/ordersheet"
	"github.com/meatflow/meatflow/internal/platform/cache"
	"github.com/meatflow/meatflow/internal/platform/db"
	"github.com/meatflow/meatflow/internal/salesorder"
	"github.com/meatflow/meatflow/internal/shipment"
	"github.com/meatflow/meatflow/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
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

	metrics := jobmetrics.NewMetrics(nil)

	documentRepo := document.NewRepository(pool)
	documentService := document.NewService(documentRepo, logger)

	salesOrderRepo := salesorder.NewRepository(pool)
	salesOrderService := salesorder.NewService(salesOrderRepo, logger)

	gateSessions := shipment.NewGateSessionStore(redisClient, cfg.GateSessionTTL)
	shipmentRepo := shipment.NewRepository(pool)
	shipmentService := shipment.NewService(shipmentRepo, gateSessions, salesOrderService, logger)

	inviteTokens := ordersheet.NewInviteTokenStore(redisClient)
	sheetRepo := ordersheet.NewRepository(pool)
	sheetService := ordersheet.NewService(sheetRepo, inviteTokens, salesOrderService, shipmentService, logger)

	parseJob := jobs.NewDocumentParseJob(documentService, logger, metrics)
	sweepJob := jobs.NewCutoffSweepJob(sheetService, documentService, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDocumentParse, Handler: parseJob.Handle},
			{Type: jobs.TaskCutoffSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.CutoffSweepSpec, Task: jobs.NewCutoffSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
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

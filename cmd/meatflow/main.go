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

	"github.com/meatflow/meatflow/internal/app"
	"github.com/meatflow/meatflow/internal/document"
	"github.com/meatflow/meatflow/internal/identity"
	"github.com/meatflow/meatflow/internal/observability"
	"github.com/meatflow/meatflow/internal/ordersheet"
	"github.com/meatflow/meatflow/internal/platform/cache"
	"github.com/meatflow/meatflow/internal/platform/db"
	"github.com/meatflow/meatflow/internal/recon"
	"github.com/meatflow/meatflow/internal/salesorder"
	"github.com/meatflow/meatflow/internal/shipment"
	"github.com/meatflow/meatflow/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	metrics := observability.NewMetrics()

	identityRepo := identity.NewRepository(dbpool)
	identityService := identity.NewService(identityRepo, redisClient, cfg.TokenTTL)
	identityHandler := identity.NewHandler(logger, identityService)
	authz := identity.NewMiddleware(logger, identityService)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	documentRepo := document.NewRepository(dbpool)
	documentService := document.NewService(documentRepo, logger)
	documentService.SetEnqueuer(jobClient)
	documentHandler := document.NewHandler(logger, documentService, authz)

	salesOrderRepo := salesorder.NewRepository(dbpool)
	salesOrderService := salesorder.NewService(salesOrderRepo, logger)
	salesOrderHandler := salesorder.NewHandler(logger, salesOrderService, authz)

	gateSessions := shipment.NewGateSessionStore(redisClient, cfg.GateSessionTTL)
	shipmentRepo := shipment.NewRepository(dbpool)
	shipmentService := shipment.NewService(shipmentRepo, gateSessions, salesOrderService, logger)
	shipmentService.SetGateHook(metrics.ObserveGateCompletion)
	shipmentHandler := shipment.NewHandler(logger, shipmentService, authz)

	inviteTokens := ordersheet.NewInviteTokenStore(redisClient)
	sheetRepo := ordersheet.NewRepository(dbpool)
	sheetService := ordersheet.NewService(sheetRepo, inviteTokens, salesOrderService, shipmentService, logger)
	sheetService.SetTransitionHook(func(from, to ordersheet.SheetStatus) {
		metrics.ObserveSheetTransition(string(from), string(to))
	})
	sheetHandler := ordersheet.NewHandler(logger, sheetService, authz)

	reconRepo := recon.NewRepository(dbpool)
	reconService := recon.NewService(reconRepo, documentService, salesOrderService, logger)
	reconService.SetOutcomeHook(metrics.ObserveReconciliation)
	reconHandler := recon.NewHandler(logger, reconService, authz)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AuthMiddleware:    &authz,
		AuthHandler:       identityHandler,
		OrderSheetHandler: sheetHandler,
		SalesOrderHandler: salesOrderHandler,
		DocumentHandler:   documentHandler,
		ReconHandler:      reconHandler,
		ShipmentHandler:   shipmentHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
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

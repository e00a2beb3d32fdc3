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

	"github.com/velora-crm/velora-pos/internal/app"
	"github.com/velora-crm/velora-pos/internal/bulk"
	"github.com/velora-crm/velora-pos/internal/cashflow"
	"github.com/velora-crm/velora-pos/internal/compensation"
	"github.com/velora-crm/velora-pos/internal/ledger"
	"github.com/velora-crm/velora-pos/internal/observability"
	"github.com/velora-crm/velora-pos/internal/platform/cache"
	"github.com/velora-crm/velora-pos/internal/platform/db"
	"github.com/velora-crm/velora-pos/internal/receipts"
	"github.com/velora-crm/velora-pos/internal/selection"
	"github.com/velora-crm/velora-pos/internal/shared"
	"github.com/velora-crm/velora-pos/jobs"
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

	ledgerClient, err := ledger.New(ledger.Config{
		BaseURL: cfg.LedgerBaseURL,
		Token:   cfg.LedgerToken,
		Timeout: cfg.LedgerTimeout,
	}, logger)
	if err != nil {
		logger.Error("init ledger client", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	metrics := observability.NewMetrics()

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
	alerter := jobs.NewAlerter(jobClient, metrics, logger)

	dispatcher := compensation.NewDispatcher(ledgerClient, metrics, logger)
	cashflowService := cashflow.NewService(ledgerClient, dispatcher, approvalRecorder, auditLogger, alerter, logger)
	receiptService := receipts.NewService(ledgerClient, approvalRecorder, auditLogger, alerter, idempotencyStore, logger)
	coordinator := bulk.NewCoordinator(ledgerClient, dispatcher, metrics, logger)

	selectionStore := selection.NewStore(redisClient, cfg.SelectionTTL)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CashFlowHandler:  cashflow.NewHandler(logger, cashflowService, selectionStore),
		ReceiptsHandler:  receipts.NewHandler(logger, receiptService),
		BulkHandler:      bulk.NewHandler(logger, coordinator, selectionStore),
		SelectionHandler: selection.NewHandler(logger, selectionStore),
		JobHandler:       jobs.NewHandler(inspector, logger),
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

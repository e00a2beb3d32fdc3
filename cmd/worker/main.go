package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/velora-crm/velora-pos/internal/app"
	jobmetrics "github.com/velora-crm/velora-pos/internal/jobs"
	"github.com/velora-crm/velora-pos/internal/ledger"
	"github.com/velora-crm/velora-pos/internal/observability"
	"github.com/velora-crm/velora-pos/internal/platform/db"
	"github.com/velora-crm/velora-pos/internal/shared"
	"github.com/velora-crm/velora-pos/jobs"
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

	ledgerClient, err := ledger.New(ledger.Config{
		BaseURL: cfg.LedgerBaseURL,
		Token:   cfg.LedgerToken,
		Timeout: cfg.LedgerTimeout,
	}, logger)
	if err != nil {
		logger.Error("init ledger client", slog.Any("error", err))
		os.Exit(1)
	}

	idempotencyStore := shared.NewIdempotencyStore(pool)
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
	sweepMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	sweeper := jobs.NewReceiptSweeper(ledgerClient, idempotencyStore, alerter, sweepMetrics, logger)
	sweepTask, err := jobs.NewReceiptSweepTask(time.Now().UTC())
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReceiptSweep, Handler: sweeper.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 1 * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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

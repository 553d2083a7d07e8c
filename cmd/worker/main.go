package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/SagarSreekumarPillai/ledgerfy-sub000/internal/app"
	jobmetrics "github.com/SagarSreekumarPillai/ledgerfy-sub000/internal/jobs"
	"github.com/SagarSreekumarPillai/ledgerfy-sub000/internal/ledgerimport"
	"github.com/SagarSreekumarPillai/ledgerfy-sub000/internal/platform/cache"
	"github.com/SagarSreekumarPillai/ledgerfy-sub000/internal/platform/db"
	"github.com/SagarSreekumarPillai/ledgerfy-sub000/internal/shared"
	"github.com/SagarSreekumarPillai/ledgerfy-sub000/jobs"
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

	repo := ledgerimport.NewRepository(pool)
	auditLogger := shared.NewAuditLogger(pool)
	idemStore := shared.NewIdempotencyStore(pool)
	statsCache := ledgerimport.NewCache(redisClient, cfg.StatsCacheTTL)
	importService := ledgerimport.NewService(repo, auditLogger, idemStore, statsCache, nil, logger)

	metrics := jobmetrics.NewMetrics(nil)
	importJob := jobs.NewLedgerImportJob(importService, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerImport, Handler: importJob.Handle},
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

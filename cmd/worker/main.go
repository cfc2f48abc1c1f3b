package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"qrattend/internal/app"
	"qrattend/internal/config"
	"qrattend/internal/history"
)

// Worker drains queued history entries into the durable history store.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if cfg.QueueBackend != "redis" {
		logger.Error("worker needs QUEUE_BACKEND=redis; the memory queue is drained inside the api process")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if !a.Redis.Healthy(ctx) {
		logger.Warn("redis not reachable yet, will keep retrying", "addr", cfg.RedisAddr)
	}

	backlog, err := a.Queue.Len(ctx)
	if err != nil {
		logger.Warn("could not read queue backlog", "error", err)
	}
	logger.Info("worker started, waiting for history entries", "history", cfg.HistoryBackend, "backlog", backlog)
	if err := history.Drain(ctx, a.Queue, a.History, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", "error", err)
		return
	}
	logger.Info("worker stopped")
}

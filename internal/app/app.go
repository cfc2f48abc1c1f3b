// Package app wires configuration into the stores and services shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"qrattend/internal/attendance"
	"qrattend/internal/config"
	"qrattend/internal/history"
	"qrattend/internal/queue"
	"qrattend/internal/store"
)

// HistoryQueueKey is the redis list carrying deferred history entries.
const HistoryQueueKey = "qrattend:history:queue"

// App bundles the long-lived dependencies of one process.
type App struct {
	Config  config.App
	DB      *store.DB
	Redis   *store.Redis
	Repo    *attendance.Repository
	History history.Store
	Queue   queue.Queue
	Log     *slog.Logger

	closers []func() error
	// draining is set once this process consumes its own memory queue.
	draining bool
}

// Open connects the remote store, history and queue according to cfg.
func Open(ctx context.Context, cfg config.App, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Log: logger}

	db, err := store.NewDB(ctx, cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	if cfg.MigrateOnStart {
		if err := store.Migrate(db.Client, cfg.StoreDriver); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	a.Repo = attendance.NewRepository(db.Client, cfg.StoreDriver)

	if cfg.QueueBackend == "redis" || cfg.HistoryBackend == "redis" {
		a.Redis = store.NewRedis(cfg.RedisAddr)
		a.closers = append(a.closers, a.Redis.Close)
	}

	switch cfg.HistoryBackend {
	case "redis":
		a.History = history.NewRedisStore(a.Redis.Client, "")
	default:
		hs, err := history.OpenSQLite(cfg.HistoryPath)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.History = hs
		a.closers = append(a.closers, hs.Close)
	}

	if cfg.QueueBackend == "redis" {
		a.Queue = queue.NewRedisQueue(a.Redis.Client, HistoryQueueKey)
	} else {
		a.Queue = queue.NewInMemory(256)
	}
	return a, nil
}

// Recorder picks where the reconciler writes history. Entries go through the
// queue only when HISTORY_ASYNC is set and something consumes it: the worker
// for a redis queue, or StartDrain for the memory queue. Otherwise they go
// straight to the store.
func (a *App) Recorder() attendance.Recorder {
	if a.Config.HistoryAsync && (a.Config.QueueBackend == "redis" || a.draining) {
		return history.NewQueueRecorder(a.Queue)
	}
	return a.History
}

// StartDrain consumes the memory queue in this process until ctx ends. Call it
// before NewReconciler. The returned wait blocks until the consumer stops,
// then stores whatever was still buffered. It is a no-op for a redis queue.
func (a *App) StartDrain(ctx context.Context) (wait func()) {
	mem, ok := a.Queue.(*queue.InMemory)
	if !ok || !a.Config.HistoryAsync {
		return func() {}
	}
	a.draining = true
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := history.Drain(ctx, mem, a.History, a.Log); err != nil && !errors.Is(err, context.Canceled) {
			a.Log.Error("history drain stopped", "error", err)
		}
	}()
	return func() {
		<-done
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if n := history.Flush(flushCtx, mem.TakePending(), a.History, a.Log); n > 0 {
			a.Log.Info("flushed queued history entries", "count", n)
		}
	}
}

// NewReconciler builds the reconciler for the configured mode.
func (a *App) NewReconciler(observer attendance.Observer) (*attendance.Reconciler, error) {
	r, err := attendance.NewReconciler(a.Repo, attendance.Options{
		Timeout:  a.Config.ReconcileTimeout,
		Atomic:   a.Config.ReconcileMode == "atomic",
		Recorder: a.Recorder(),
		Observer: observer,
		Logger:   a.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("reconciler: %w", err)
	}
	return r, nil
}

// Close releases everything Open acquired, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
